package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Runs a full manual sync cycle: clears the puzzle pool depletion
flag, replenishes the puzzle cache, pulls daily challenges, pushes
unsynced game progress, and applies remote changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		orch, _ := buildEngine(s, logger)

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		if err := orch.ManualSync(ctx); err != nil {
			color.Red("✗ Sync failed: %v\n", err)
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Sync complete in %s\n", green("✓"), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	syncCmd.Flags().Duration("timeout", 2*time.Minute, "Abort the cycle after this long")
	rootCmd.AddCommand(syncCmd)
}
