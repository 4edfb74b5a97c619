// Command sudokodus-sync keeps the local sudokodus database in sync
// with the backend: puzzle cache replenishment, daily challenges, and
// bidirectional game state sync.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/sudokodus/sudokodus/internal/cache"
	"github.com/sudokodus/sudokodus/internal/config"
	"github.com/sudokodus/sudokodus/internal/remote"
	"github.com/sudokodus/sudokodus/internal/retry"
	"github.com/sudokodus/sudokodus/internal/store"
	enginesync "github.com/sudokodus/sudokodus/internal/sync"
)

// Version is set at build time.
var (
	Version = "dev"
	Build   = "unknown"
)

var (
	dbPath    string
	remoteURL string
	apiKey    string
)

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: from config)")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote-url", "", "Backend URL (default: from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Backend API key (default: from config)")

	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "sudokodus-sync",
	Short: "sudokodus-sync - Offline-first sync engine for sudokodus",
	Long: `Keeps the local game database in sync with the backend.

Replenishes the puzzle cache per difficulty, pulls daily challenges,
pushes local game progress, and applies remote changes with
last-write-wins conflict resolution. Works fully offline; syncing
resumes when the backend is reachable.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("sudokodus-sync version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Flags win over config file and env.
		if !cmd.Flags().Changed("db") {
			dbPath = config.GetString(config.KeyDBPath)
		}
		if !cmd.Flags().Changed("remote-url") {
			remoteURL = config.GetString(config.KeyRemoteURL)
		}
		if !cmd.Flags().Changed("api-key") {
			apiKey = config.GetString(config.KeyRemoteAPIKey)
		}
	},
}

// openStore opens the local database and ensures the schema exists.
func openStore() (*store.Store, error) {
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	if err := s.InitSchema(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// buildEngine wires the sync components from configuration.
func buildEngine(s *store.Store, logger *log.Logger) (*enginesync.Orchestrator, *cache.Manager) {
	cfg := config.Load()

	client := remote.New(remoteURL, apiKey, &remote.Options{Logger: logger})
	retryCfg := retry.Config{
		MaxAttempts: cfg.MaxRetryAttempts,
		Delay:       cfg.RetryDelay,
	}

	cm := cache.NewManager(s, client, cache.Config{
		MinPuzzleCount:     cfg.MinPuzzleCount,
		FetchBatchSize:     cfg.FetchBatchSize,
		ReplenishThreshold: cfg.ReplenishThreshold,
		Retry:              retryCfg,
	}, logger)

	games := enginesync.NewGameSync(s, client, retryCfg, logger)
	challenges := enginesync.NewChallengeSync(s, client, retryCfg, logger)
	challenges.WindowDays = cfg.DailyChallengeWindowDays
	challenges.PerDate = cfg.DailyChallengesPerDate

	orch := enginesync.NewOrchestrator(s, client, cm, games, challenges, logger)
	orch.PuzzleSyncCooldown = cfg.PuzzleSyncCooldown
	return orch, cm
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
