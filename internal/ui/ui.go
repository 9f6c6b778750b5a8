// Package ui renders the status glyphs used in console output.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
)

// RenderPass renders s as a success marker.
func RenderPass(s string) string {
	return passStyle.Render(s)
}

// RenderWarn renders s as a warning marker.
func RenderWarn(s string) string {
	return warnStyle.Render(s)
}

// RenderFail renders s as a failure marker.
func RenderFail(s string) string {
	return failStyle.Render(s)
}

// RenderAccent renders s as an informational marker.
func RenderAccent(s string) string {
	return accentStyle.Render(s)
}
