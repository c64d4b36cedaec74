// Command trackerctl inspects and edits a tracker SQLite database from the
// shell.
package main

import (
	"os"

	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	applog "expensetracker/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(envOr("LOG_LEVEL", "warn")),
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)

	if err := newRootCmd(logger, config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
