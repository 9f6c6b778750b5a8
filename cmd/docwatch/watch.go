package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/synthlane/docwatch/internal/config"
	"github.com/synthlane/docwatch/internal/debounce"
	"github.com/synthlane/docwatch/internal/dispatch"
	"github.com/synthlane/docwatch/internal/docpath"
	"github.com/synthlane/docwatch/internal/status"
	"github.com/synthlane/docwatch/internal/ui"
	"github.com/synthlane/docwatch/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the bench apps for DocType changes and reload them",
	Long: `Start the file watcher and block until interrupted.

Changes to files matching
  apps/<app>/<app>/<module>/<doctype>/<name>/<name>.json
trigger a timestamp rewrite and a bench reload-doc followed by a
clear-cache. Everything else is ignored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := config.NewViper()
		bindFlags(v, cmd)

		cfg, err := config.Load(v)
		if err != nil {
			return err
		}

		logger := newLogger(cfg.LogFile)
		return runWatch(cfg, logger)
	},
}

func init() {
	flags := watchCmd.Flags()
	flags.String("site", config.DefaultSite, "bench site identifier")
	flags.String("bench-path", config.DefaultBenchPath, "bench root directory")
	flags.StringSlice("apps", config.DefaultApps(), "app names to watch")
	flags.String("bench-bin", config.DefaultBenchBin, "bench executable")
	flags.Duration("debounce", config.DefaultDebounce, "minimum time between reloads of one record")
	flags.Duration("reload-timeout", config.DefaultReloadTimeout, "timeout for reload-doc")
	flags.Duration("cache-clear-timeout", config.DefaultCacheClearTimeout, "timeout for clear-cache")
	flags.String("status-addr", "", "address for the live status server (disabled when empty)")
	flags.String("log-file", "", "rotate logs into this file in addition to stderr")
}

// bindFlags maps CLI flags onto viper keys so flags override file and
// environment values.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	bindings := map[string]string{
		"site":                "site",
		"bench_path":          "bench-path",
		"apps":                "apps",
		"bench_bin":           "bench-bin",
		"debounce":            "debounce",
		"reload_timeout":      "reload-timeout",
		"cache_clear_timeout": "cache-clear-timeout",
		"status_addr":         "status-addr",
		"log_file":            "log-file",
	}
	for key, flag := range bindings {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

// newLogger builds the watcher logger. With a log file configured, output
// goes to stderr and to a size-rotated file.
func newLogger(logFile string) *log.Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		})
	}
	return log.New(out, "[docwatch] ", log.LstdFlags)
}

func runWatch(cfg *config.Config, logger *log.Logger) error {
	logger.Printf("Starting DocType JSON file watcher...")
	logger.Printf("Site: %s", cfg.Site)
	logger.Printf("Watching apps: %s", strings.Join(cfg.Apps, ", "))

	classifier, err := docpath.NewClassifier(cfg.BenchPath, cfg.Apps)
	if err != nil {
		return err
	}

	var notifier watcher.Notifier
	var statusServer *status.Server
	if cfg.StatusAddr != "" {
		statusServer = status.NewServer(cfg.StatusAddr, logger)
		if err := statusServer.Start(); err != nil {
			return err
		}
		defer func() {
			if err := statusServer.Stop(); err != nil {
				logger.Printf("Error stopping status server: %v", err)
			}
		}()
		notifier = statusServer
	}

	dispatcher := dispatch.New(&dispatch.Config{
		Site:              cfg.Site,
		Bin:               cfg.BenchBin,
		BenchPath:         cfg.BenchPath,
		ReloadTimeout:     cfg.ReloadTimeout,
		CacheClearTimeout: cfg.CacheClearTimeout,
		Logger:            logger,
	})

	w, err := watcher.New(&watcher.Config{
		Classifier: classifier,
		Apps:       cfg.Apps,
		Gate:       debounce.NewGate(cfg.Debounce),
		Dispatcher: dispatcher,
		Logger:     logger,
		Notifier:   notifier,
	})
	if err != nil {
		return err
	}

	if err := w.Start(); err != nil {
		return err
	}

	logger.Printf("%s Ready! Changes to JSON files will be automatically reloaded.", ui.RenderPass("✓"))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	signal.Stop(stop)

	logger.Printf("Received %s, stopping...", sig)
	if err := w.Stop(); err != nil {
		return fmt.Errorf("failed to stop watcher: %w", err)
	}

	logger.Printf("Stopped")
	return nil
}
