// Command docwatch watches bench app trees for DocType JSON changes and
// hot-reloads the affected records via bench.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docwatch",
	Short: "Hot-reload watcher for bench DocType JSON files",
	Long: `docwatch watches the apps/ trees of a bench for modifications to
DocType JSON files and hot-reloads the affected records.

For every qualifying change it:
  1. Debounces repeated events for the same record
  2. Rewrites the record's "modified" timestamp
  3. Runs 'bench --site <SITE> reload-doc <module> <doctype> <name> --force'
  4. On success, runs 'bench --site <SITE> clear-cache'

Configuration comes from flags, DOCWATCH_* environment variables
(FRAPPE_SITE and BENCH_PATH are honored for compatibility), and an
optional docwatch.yaml in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
