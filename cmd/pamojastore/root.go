package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/anyamene/pamojastore/internal/app"
	"github.com/anyamene/pamojastore/internal/config"
	"github.com/anyamene/pamojastore/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pamojastore",
	Short: "Offline-first field data store with multi-device sync",
	Long: `pamojastore is the local data store behind the field data app:
an embedded SQLite database with a change log, field-level conflict
resolution, and tombstone-backed deletes that survive device sync.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
}

// loadApp builds a fully wired App from the configured environment.
func loadApp() (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logging.Init(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return app.New(cfg)
}
