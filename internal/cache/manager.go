// Package cache keeps the local puzzle pool stocked.
//
// The manager tracks one replenishment state per difficulty. A check
// counts unused puzzles and, when the count falls below the configured
// floor, fetches a batch from the backend excluding every puzzle string
// already cached. A fetch that returns zero new puzzles marks the pool
// depleted, which suppresses further network attempts until a manual
// sync clears the flag.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sudokodus/sudokodus/internal/remote"
	"github.com/sudokodus/sudokodus/internal/retry"
	"github.com/sudokodus/sudokodus/internal/schema"
	"github.com/sudokodus/sudokodus/internal/store"
)

// Status describes a difficulty's replenishment state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusChecking Status = "checking"
	StatusFetching Status = "fetching"
	StatusError    Status = "error"
	StatusDepleted Status = "depleted"
)

// Config holds cache sizing knobs.
type Config struct {
	// MinPuzzleCount is the target unused count per difficulty after an
	// initial fill.
	MinPuzzleCount int

	// FetchBatchSize is the most puzzles requested in one fetch.
	FetchBatchSize int

	// ReplenishThreshold triggers a background top-up when the unused
	// count drops below it.
	ReplenishThreshold int

	// Retry bounds fetch attempts.
	Retry retry.Config
}

// DefaultConfig returns production cache sizing.
func DefaultConfig() Config {
	return Config{
		MinPuzzleCount:     100,
		FetchBatchSize:     500,
		ReplenishThreshold: 50,
		Retry:              retry.DefaultConfig(),
	}
}

// DifficultyStatus is one entry of a status snapshot.
type DifficultyStatus struct {
	Status  Status
	Unused  int
	LastErr error
}

// Manager replenishes the local puzzle cache from the backend.
type Manager struct {
	store  *store.Store
	remote remote.Client
	cfg    Config
	logger *log.Logger

	mu     sync.Mutex
	status map[schema.Difficulty]*DifficultyStatus
}

// NewManager creates a cache manager. A nil logger logs to stderr.
func NewManager(s *store.Store, r remote.Client, cfg Config, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	status := make(map[schema.Difficulty]*DifficultyStatus, len(schema.Difficulties()))
	for _, d := range schema.Difficulties() {
		status[d] = &DifficultyStatus{Status: StatusIdle}
	}
	return &Manager{
		store:  s,
		remote: r,
		cfg:    cfg,
		logger: logger,
		status: status,
	}
}

// Status returns a snapshot of per-difficulty replenishment state.
func (m *Manager) Status() map[schema.Difficulty]DifficultyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[schema.Difficulty]DifficultyStatus, len(m.status))
	for d, st := range m.status {
		out[d] = *st
	}
	return out
}

// EnsureInitialCache fills every difficulty up to MinPuzzleCount. Used
// on first run; difficulties that already meet the target are skipped.
func (m *Manager) EnsureInitialCache(ctx context.Context) error {
	var firstErr error
	for _, d := range schema.Difficulties() {
		if err := m.checkAndReplenish(ctx, d, m.cfg.MinPuzzleCount); err != nil {
			m.logger.Printf("initial fill for %s failed: %v", d, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Replenish tops up every difficulty whose unused count has dropped
// below ReplenishThreshold.
func (m *Manager) Replenish(ctx context.Context) error {
	var firstErr error
	for _, d := range schema.Difficulties() {
		if err := m.checkAndReplenish(ctx, d, m.cfg.ReplenishThreshold); err != nil {
			m.logger.Printf("replenish for %s failed: %v", d, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ReplenishDifficulty tops up a single difficulty, for use after a
// puzzle is consumed mid-game.
func (m *Manager) ReplenishDifficulty(ctx context.Context, d schema.Difficulty) error {
	return m.checkAndReplenish(ctx, d, m.cfg.ReplenishThreshold)
}

// checkAndReplenish counts unused puzzles for d and fetches a batch if
// the count is below target. Re-entrant calls while a fetch is in
// flight are no-ops.
func (m *Manager) checkAndReplenish(ctx context.Context, d schema.Difficulty, target int) error {
	m.mu.Lock()
	st := m.status[d]
	if st.Status == StatusChecking || st.Status == StatusFetching {
		m.mu.Unlock()
		return nil
	}
	st.Status = StatusChecking
	m.mu.Unlock()

	err := m.replenishOne(ctx, d, target)

	m.mu.Lock()
	switch {
	case err == errPoolDepleted:
		st.Status = StatusDepleted
		st.LastErr = nil
		err = nil
	case err != nil:
		st.Status = StatusError
		st.LastErr = err
	default:
		st.Status = StatusIdle
		st.LastErr = nil
	}
	if count, cerr := m.store.CountUnusedPuzzles(ctx, d); cerr == nil {
		st.Unused = count
	}
	m.mu.Unlock()

	return err
}

// errPoolDepleted signals that the backend had no new puzzles for a
// difficulty. Internal to checkAndReplenish's status handling.
var errPoolDepleted = errors.New("puzzle pool depleted")

func (m *Manager) replenishOne(ctx context.Context, d schema.Difficulty, target int) error {
	depleted, err := m.store.IsPuzzlePoolDepleted(ctx)
	if err != nil {
		return fmt.Errorf("failed to read depletion flag: %w", err)
	}
	if depleted {
		return errPoolDepleted
	}

	count, err := m.store.CountUnusedPuzzles(ctx, d)
	if err != nil {
		return fmt.Errorf("failed to count unused puzzles: %w", err)
	}
	if count >= target {
		return nil
	}

	if !m.remote.IsAvailable() {
		return remote.ErrUnavailable
	}

	needed := target - count
	if needed < m.cfg.FetchBatchSize {
		needed = m.cfg.FetchBatchSize
	}

	m.mu.Lock()
	m.status[d].Status = StatusFetching
	m.mu.Unlock()

	exclude, err := m.store.CachedPuzzleStrings(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cached puzzles: %w", err)
	}

	var fetched []schema.Puzzle
	err = retry.Do(ctx, m.cfg.Retry, func(ctx context.Context) error {
		var ferr error
		fetched, ferr = m.remote.FetchPuzzles(ctx, remote.PuzzleQuery{
			Difficulty: d,
			Exclude:    exclude,
			Limit:      needed,
		})
		return ferr
	})
	if err != nil {
		return fmt.Errorf("failed to fetch %s puzzles: %w", d, err)
	}

	if len(fetched) == 0 {
		m.logger.Printf("backend returned no new %s puzzles, marking pool depleted", d)
		if err := m.store.SetPuzzlePoolDepleted(ctx); err != nil {
			return fmt.Errorf("failed to set depletion flag: %w", err)
		}
		return errPoolDepleted
	}

	now := time.Now().UTC()
	batch := make([]schema.CachedPuzzle, 0, len(fetched))
	for _, p := range fetched {
		batch = append(batch, schema.CachedPuzzle{Puzzle: p, FetchedAt: now})
	}

	added, err := m.store.AddPuzzlesToCache(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to cache fetched puzzles: %w", err)
	}
	m.logger.Printf("cached %d new %s puzzles (%d fetched, had %d unused)",
		added, d, len(fetched), count)

	return nil
}

// ClearDepletion removes the depletion flag so the next check can hit
// the network again. Called from manual sync.
func (m *Manager) ClearDepletion(ctx context.Context) error {
	if err := m.store.ClearPuzzlePoolDepleted(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	for _, st := range m.status {
		if st.Status == StatusDepleted {
			st.Status = StatusIdle
		}
	}
	m.mu.Unlock()
	return nil
}
