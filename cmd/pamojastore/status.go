package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync bookkeeping counts for this device",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		changeCount, err := a.Changes.Count()
		if err != nil {
			return err
		}
		unprocessed, err := a.Changes.Unprocessed(0)
		if err != nil {
			return err
		}
		tombstoneCount, err := a.Tombstones.Count()
		if err != nil {
			return err
		}
		pendingFiles, err := a.Documents.CountPending()
		if err != nil {
			return err
		}

		fmt.Printf("device:                  %s\n", a.DeviceID())
		fmt.Printf("change log entries:      %d\n", changeCount)
		fmt.Printf("pending push:            %d\n", len(unprocessed))
		fmt.Printf("tombstones:              %d\n", tombstoneCount)
		fmt.Printf("pending file deletions:  %d\n", pendingFiles)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
