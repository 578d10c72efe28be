package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var purgeBefore string

// Tombstones never expire on their own. This command is the only way to
// reclaim them, and it is on the operator to confirm every device has synced
// past the cutoff first; a purged tombstone cannot block resurrection.
var purgeTombstonesCmd = &cobra.Command{
	Use:   "purge-tombstones",
	Short: "Remove tombstones older than a cutoff date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cutoff, err := time.Parse("2006-01-02", purgeBefore)
		if err != nil {
			return fmt.Errorf("invalid --before date %q, want YYYY-MM-DD: %w", purgeBefore, err)
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Tombstones.PurgeBefore(cutoff.UnixMilli())
		if err != nil {
			return err
		}
		fmt.Printf("purged %d tombstone(s) older than %s\n", n, purgeBefore)
		return nil
	},
}

func init() {
	purgeTombstonesCmd.Flags().StringVar(&purgeBefore, "before", "", "cutoff date (YYYY-MM-DD), required")
	_ = purgeTombstonesCmd.MarkFlagRequired("before")
	rootCmd.AddCommand(purgeTombstonesCmd)
}
