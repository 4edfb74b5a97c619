// Package game implements the local game lifecycle: starting a game
// from the puzzle cache, saving progress, and completing it. All writes
// go through the store and leave the row unsynced so the next sync
// cycle pushes them.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/sudokodus/sudokodus/internal/schema"
	"github.com/sudokodus/sudokodus/internal/store"
)

// ErrCacheEmpty is returned by Start when no unused puzzle of the
// requested difficulty is cached.
var ErrCacheEmpty = errors.New("no unused puzzles cached for difficulty")

// Service drives game state transitions against the local store.
type Service struct {
	store  *store.Store
	logger *log.Logger
}

// NewService creates a game service. A nil logger logs to stderr.
func NewService(s *store.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[game] ", log.LstdFlags)
	}
	return &Service{store: s, logger: logger}
}

// Start consumes an unused cached puzzle of the given difficulty and
// creates a new in-progress game for the device's user.
func (s *Service) Start(ctx context.Context, d schema.Difficulty) (*schema.GameState, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("unknown difficulty %q", d)
	}

	cached, err := s.store.RandomUnusedPuzzle(ctx, d)
	if err != nil {
		if errors.Is(err, store.ErrNoUnusedPuzzles) {
			return nil, ErrCacheEmpty
		}
		return nil, fmt.Errorf("failed to pick puzzle: %w", err)
	}

	if err := s.store.UpsertPuzzle(ctx, &cached.Puzzle); err != nil {
		return nil, fmt.Errorf("failed to record puzzle: %w", err)
	}
	if err := s.store.MarkPuzzleUsed(ctx, cached.PuzzleString); err != nil {
		return nil, fmt.Errorf("failed to mark puzzle used: %w", err)
	}

	cells, err := schema.InitialCells(cached.PuzzleString)
	if err != nil {
		return nil, fmt.Errorf("failed to build initial grid: %w", err)
	}
	state, err := schema.EncodeCells(cells)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initial grid: %w", err)
	}

	userID, err := s.store.AnonymousUserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user id: %w", err)
	}

	now := time.Now().UTC()
	g := &schema.GameState{
		ID:           uuid.NewString(),
		UserID:       userID,
		PuzzleString: cached.PuzzleString,
		CurrentState: state,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertGameState(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	s.logger.Printf("started %s game %s", d, g.ID)
	return g, nil
}

// SaveProgress persists a new grid for an in-progress game. The grid
// must keep every given cell of the puzzle intact.
func (s *Service) SaveProgress(ctx context.Context, id string, cells []schema.Cell) (*schema.GameState, error) {
	g, err := s.store.GetGameState(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, store.ErrGameNotFound
	}
	if g.IsCompleted {
		return nil, fmt.Errorf("game %s is already completed", id)
	}

	if err := validateAgainstGivens(g.PuzzleString, cells); err != nil {
		return nil, err
	}

	state, err := schema.EncodeCells(cells)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grid: %w", err)
	}
	g.CurrentState = state

	if err := s.store.UpdateGameState(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// UseHint bumps the hint counter for an in-progress game.
func (s *Service) UseHint(ctx context.Context, id string) (*schema.GameState, error) {
	g, err := s.store.GetGameState(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, store.ErrGameNotFound
	}
	if g.IsCompleted {
		return nil, fmt.Errorf("game %s is already completed", id)
	}

	g.HintsUsed++
	if err := s.store.UpdateGameState(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Complete marks a game finished. Completion is terminal; further saves
// are rejected.
func (s *Service) Complete(ctx context.Context, id string) (*schema.GameState, error) {
	g, err := s.store.GetGameState(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, store.ErrGameNotFound
	}
	if g.IsCompleted {
		return g, nil
	}

	g.IsCompleted = true
	if err := s.store.UpdateGameState(ctx, g); err != nil {
		return nil, err
	}

	s.logger.Printf("completed game %s", id)
	return g, nil
}

// validateAgainstGivens rejects grids that changed or cleared a given
// cell of the original puzzle.
func validateAgainstGivens(puzzleString string, cells []schema.Cell) error {
	if len(cells) != schema.PuzzleLength {
		return fmt.Errorf("grid must have %d cells (got %d)", schema.PuzzleLength, len(cells))
	}
	for i := 0; i < schema.PuzzleLength; i++ {
		given := int(puzzleString[i] - '0')
		if given == 0 {
			continue
		}
		if !cells[i].IsGiven || cells[i].Value != given {
			return fmt.Errorf("cell %d is a given (%d) and cannot be changed", i, given)
		}
	}
	return nil
}
