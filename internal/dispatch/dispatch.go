// Package dispatch invokes the external bench reload and cache-clear
// actions for classified records.
package dispatch

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/synthlane/docwatch/internal/docpath"
	"github.com/synthlane/docwatch/internal/ui"
)

// Config holds dispatcher configuration.
type Config struct {
	// Site passed to bench via --site.
	Site string

	// Bin is the bench executable name or path (default: "bench").
	Bin string

	// BenchPath is the working directory for bench invocations.
	BenchPath string

	// ReloadTimeout bounds the reload-doc invocation.
	ReloadTimeout time.Duration

	// CacheClearTimeout bounds the clear-cache invocation.
	CacheClearTimeout time.Duration

	// Runner executes the external commands. Defaults to an ExecRunner
	// rooted at BenchPath.
	Runner Runner

	// Logger for dispatch activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Bin:               "bench",
		ReloadTimeout:     30 * time.Second,
		CacheClearTimeout: 10 * time.Second,
		Logger:            log.Default(),
	}
}

// Outcome reports the two dispatched actions for one record.
type Outcome struct {
	// Reload is the reload-doc result.
	Reload Result

	// CacheClearRun is true when the clear-cache action was attempted.
	// It is skipped entirely when the reload fails.
	CacheClearRun bool

	// CacheClear is the clear-cache result, meaningful only when
	// CacheClearRun is true.
	CacheClear Result
}

// Dispatcher runs the reload pipeline tail: reload-doc, then clear-cache.
// A failed or timed-out reload skips cache clearing; a failed cache clear
// does not retroactively fail the reload. Dispatch never terminates the
// process.
type Dispatcher struct {
	site              string
	bin               string
	reloadTimeout     time.Duration
	cacheClearTimeout time.Duration
	runner            Runner
	logger            *log.Logger
}

// New creates a dispatcher from config.
func New(config *Config) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Bin == "" {
		config.Bin = "bench"
	}
	if config.ReloadTimeout <= 0 {
		config.ReloadTimeout = 30 * time.Second
	}
	if config.CacheClearTimeout <= 0 {
		config.CacheClearTimeout = 10 * time.Second
	}
	if config.Runner == nil {
		config.Runner = &ExecRunner{Dir: config.BenchPath}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	return &Dispatcher{
		site:              config.Site,
		bin:               config.Bin,
		reloadTimeout:     config.ReloadTimeout,
		cacheClearTimeout: config.CacheClearTimeout,
		runner:            config.Runner,
		logger:            config.Logger,
	}
}

// Dispatch reloads one record and, on success, clears the site cache.
func (d *Dispatcher) Dispatch(key docpath.RecordKey) Outcome {
	args := []string{"--site", d.site, "reload-doc", key.Module, key.DocType, key.Name, "--force"}
	d.logger.Printf("Running: %s %s", d.bin, strings.Join(args, " "))

	ctx, cancel := context.WithTimeout(context.Background(), d.reloadTimeout)
	reload := d.runner.Run(ctx, d.bin, args...)
	cancel()

	outcome := Outcome{Reload: reload}

	switch {
	case reload.TimedOut:
		d.logger.Printf("%s Timeout reloading %s > %s", ui.RenderFail("✗"), key.DocType, key.Name)
		return outcome
	case !reload.OK():
		d.logger.Printf("%s Error reloading %s > %s", ui.RenderFail("✗"), key.DocType, key.Name)
		if reload.Stderr != "" {
			d.logger.Printf("Error: %s", strings.TrimSpace(reload.Stderr))
		}
		if reload.Stdout != "" {
			d.logger.Printf("Output: %s", strings.TrimSpace(reload.Stdout))
		}
		return outcome
	}

	d.logger.Printf("%s Reloaded %s > %s", ui.RenderPass("✓"), key.DocType, key.Name)
	if reload.Stdout != "" {
		d.logger.Printf("Output: %s", strings.TrimSpace(reload.Stdout))
	}

	d.logger.Printf("Clearing cache...")
	ctx, cancel = context.WithTimeout(context.Background(), d.cacheClearTimeout)
	cache := d.runner.Run(ctx, d.bin, "--site", d.site, "clear-cache")
	cancel()

	outcome.CacheClearRun = true
	outcome.CacheClear = cache

	switch {
	case cache.TimedOut:
		d.logger.Printf("%s Cache clear timed out", ui.RenderWarn("⚠"))
	case !cache.OK():
		d.logger.Printf("%s Cache clear had issues: %s", ui.RenderWarn("⚠"), strings.TrimSpace(cache.Stderr))
	default:
		d.logger.Printf("%s Cache cleared", ui.RenderPass("✓"))
	}

	return outcome
}
