package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sudokodus/sudokodus/internal/schema"
	"github.com/sudokodus/sudokodus/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local sync state",
	Long:  `Shows the last sync time, unused puzzle counts per difficulty, available daily challenge dates, and the depletion flag.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := context.Background()

		lastSync, err := s.GetSettingTime(ctx, store.KeyLastSyncTime)
		if err != nil {
			return err
		}
		counts, err := s.UnusedPuzzleCounts(ctx)
		if err != nil {
			return err
		}
		depleted, err := s.IsPuzzlePoolDepleted(ctx)
		if err != nil {
			return err
		}
		dates, err := s.AvailableChallengeDates(ctx)
		if err != nil {
			return err
		}

		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"last_sync_time":  lastSync,
				"unused_puzzles":  counts,
				"pool_depleted":   depleted,
				"challenge_dates": len(dates),
			})
		}

		bold := color.New(color.Bold).SprintFunc()
		fmt.Printf("%s %s\n", bold("Database:"), s.Path())

		if lastSync.IsZero() {
			color.Yellow("Never synced\n")
		} else {
			fmt.Printf("%s %s (%s ago)\n", bold("Last sync:"),
				lastSync.Local().Format(time.RFC1123),
				time.Since(lastSync).Round(time.Second))
		}

		fmt.Printf("\n%s\n", bold("Unused puzzles:"))
		for _, d := range schema.Difficulties() {
			count := counts[d]
			line := fmt.Sprintf("  %-11s %d", d, count)
			switch {
			case count == 0:
				color.Red("%s\n", line)
			case count < 50:
				color.Yellow("%s\n", line)
			default:
				fmt.Println(line)
			}
		}

		fmt.Printf("\n%s %d dates cached\n", bold("Daily challenges:"), len(dates))

		if depleted {
			color.Yellow("\n⚠ Puzzle pool depleted; run 'sudokodus-sync sync' to retry\n")
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output in JSON format")
	rootCmd.AddCommand(statusCmd)
}
