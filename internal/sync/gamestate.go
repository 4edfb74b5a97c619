package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sudokodus/sudokodus/internal/remote"
	"github.com/sudokodus/sudokodus/internal/retry"
	"github.com/sudokodus/sudokodus/internal/schema"
	"github.com/sudokodus/sudokodus/internal/store"
)

// GameSync pushes local game state changes to the backend and pulls
// remote changes down.
type GameSync struct {
	store  *store.Store
	remote remote.Client
	retry  retry.Config
	logger *log.Logger
}

// NewGameSync creates a game state synchronizer. A nil logger logs to
// stderr.
func NewGameSync(s *store.Store, r remote.Client, retryCfg retry.Config, logger *log.Logger) *GameSync {
	if logger == nil {
		logger = log.New(os.Stderr, "[gamesync] ", log.LstdFlags)
	}
	return &GameSync{store: s, remote: r, retry: retryCfg, logger: logger}
}

// Push uploads every unsynced local game state for userID. Rows are
// pushed independently: a failure on one row is logged and the rest
// still go out. Returns the number of rows pushed and the count of row
// failures.
func (g *GameSync) Push(ctx context.Context, userID string) (pushed, failed int, err error) {
	states, err := g.store.UnsyncedGameStates(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list unsynced game states: %w", err)
	}
	if len(states) == 0 {
		return 0, 0, nil
	}

	if !g.remote.IsAvailable() {
		return 0, 0, remote.ErrUnavailable
	}

	for _, state := range states {
		if err := g.pushOne(ctx, state); err != nil {
			g.logger.Printf("failed to push game state %s: %v", state.ID, err)
			failed++
			continue
		}
		if err := g.store.MarkGameStateSynced(ctx, state.ID); err != nil {
			return pushed, failed, fmt.Errorf("failed to mark %s synced: %w", state.ID, err)
		}
		pushed++
	}

	if pushed > 0 || failed > 0 {
		g.logger.Printf("pushed %d game states (%d failed)", pushed, failed)
	}
	return pushed, failed, nil
}

func (g *GameSync) pushOne(ctx context.Context, state *schema.GameState) error {
	return retry.Do(ctx, g.retry, func(ctx context.Context) error {
		exists, err := g.remote.GameStateExists(ctx, state.ID)
		if err != nil {
			return err
		}
		if exists {
			return g.remote.UpdateGameState(ctx, state)
		}
		return g.remote.InsertGameState(ctx, state)
	})
}

// Pull applies remote game state changes newer than the stored
// watermark. The whole batch lands in one local transaction, and the
// watermark only advances when that transaction commits. Puzzles
// referenced by incoming states but missing locally are fetched from
// the backend on demand. Returns the number of rows applied.
func (g *GameSync) Pull(ctx context.Context, userID string) (int, error) {
	if !g.remote.IsAvailable() {
		return 0, remote.ErrUnavailable
	}

	since, err := g.store.GetSettingTime(ctx, store.KeyLastRemoteSync)
	if err != nil {
		return 0, fmt.Errorf("failed to read pull watermark: %w", err)
	}

	var states []*schema.GameState
	err = retry.Do(ctx, g.retry, func(ctx context.Context) error {
		var ferr error
		states, ferr = g.remote.FetchGameStatesSince(ctx, userID, since)
		return ferr
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch remote game states: %w", err)
	}

	syncTime := time.Now().UTC()
	if len(states) == 0 {
		if err := g.store.SetSettingTime(ctx, store.KeyLastRemoteSync, syncTime); err != nil {
			return 0, fmt.Errorf("failed to advance pull watermark: %w", err)
		}
		return 0, nil
	}

	applied, err := g.store.ApplyRemoteGameStates(ctx, states, g.resolvePuzzle,
		store.KeyLastRemoteSync, syncTime)
	if err != nil {
		return 0, fmt.Errorf("failed to apply remote game states: %w", err)
	}

	g.logger.Printf("pulled %d game states, applied %d", len(states), applied)
	return applied, nil
}

// resolvePuzzle fetches a single puzzle from the backend for pulls that
// reference a puzzle not yet cached locally.
func (g *GameSync) resolvePuzzle(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
	p, err := g.remote.FetchPuzzle(ctx, puzzleString)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("puzzle %s not found on backend", puzzleString)
	}
	return p, nil
}
