package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anyamene/pamojastore/internal/config"
	"github.com/anyamene/pamojastore/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		database, err := db.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer database.Close()

		migrator := db.NewMigrator(database)
		if err := migrator.Up(); err != nil {
			return err
		}
		version, err := migrator.CurrentVersion()
		if err != nil {
			return err
		}
		fmt.Printf("schema at version %d\n", version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
