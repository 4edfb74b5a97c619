// Package remotetest provides an in-memory Client implementation for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sudokodus/sudokodus/internal/remote"
	"github.com/sudokodus/sudokodus/internal/schema"
)

// Fake is an in-memory backend. All methods are safe for concurrent use.
//
// The zero value is unusable; construct with NewFake, which starts
// available with empty tables.
type Fake struct {
	mu sync.Mutex

	available bool

	puzzles    map[string]schema.Puzzle            // keyed by puzzle string
	games      map[string]*schema.GameState        // keyed by id
	challenges map[string][]*schema.DailyChallenge // keyed by date

	// Err, when set, is returned by every data method until cleared.
	Err error

	// failIDs makes writes for specific game state ids fail.
	failIDs map[string]bool

	// Call counters, keyed by method name.
	calls map[string]int
}

// NewFake returns an available fake with no data.
func NewFake() *Fake {
	return &Fake{
		available:  true,
		puzzles:    make(map[string]schema.Puzzle),
		games:      make(map[string]*schema.GameState),
		challenges: make(map[string][]*schema.DailyChallenge),
		failIDs:    make(map[string]bool),
		calls:      make(map[string]int),
	}
}

// FailGameStateWrites makes InsertGameState and UpdateGameState fail for
// the given ids while other rows keep working.
func (f *Fake) FailGameStateWrites(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.failIDs[id] = true
	}
}

// SetAvailable toggles what IsAvailable reports.
func (f *Fake) SetAvailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = v
}

// SetErr injects an error into every subsequent data call. Pass nil to clear.
func (f *Fake) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// AddPuzzles seeds server-side puzzles.
func (f *Fake) AddPuzzles(puzzles ...schema.Puzzle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range puzzles {
		f.puzzles[p.PuzzleString] = p
	}
}

// PutGameState seeds or replaces a server-side game state.
func (f *Fake) PutGameState(g *schema.GameState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	f.games[g.ID] = &cp
}

// GameState returns the stored state for id, or nil.
func (f *Fake) GameState(id string) *schema.GameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[id]
	if !ok {
		return nil
	}
	cp := *g
	return &cp
}

// SetChallenges seeds the challenge rows returned for date.
func (f *Fake) SetChallenges(date string, challenges []*schema.DailyChallenge) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.challenges[date] = challenges
}

// Calls reports how many times the named Client method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) begin(method string) error {
	f.calls[method]++
	if f.Err != nil {
		return f.Err
	}
	if !f.available {
		return remote.ErrUnavailable
	}
	return nil
}

// IsAvailable implements remote.Client.
func (f *Fake) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

// FetchPuzzles implements remote.Client.
func (f *Fake) FetchPuzzles(ctx context.Context, q remote.PuzzleQuery) ([]schema.Puzzle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchPuzzles"); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(q.Exclude))
	for _, s := range q.Exclude {
		excluded[s] = true
	}

	var out []schema.Puzzle
	for _, p := range f.puzzles {
		if q.Difficulty != "" && p.Difficulty != q.Difficulty {
			continue
		}
		if excluded[p.PuzzleString] {
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// FetchPuzzle implements remote.Client.
func (f *Fake) FetchPuzzle(ctx context.Context, puzzleString string) (*schema.Puzzle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchPuzzle"); err != nil {
		return nil, err
	}
	p, ok := f.puzzles[puzzleString]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// FetchDailyChallenges implements remote.Client.
func (f *Fake) FetchDailyChallenges(ctx context.Context, date string) ([]*schema.DailyChallenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchDailyChallenges"); err != nil {
		return nil, err
	}
	return f.challenges[date], nil
}

// FetchGameStatesSince implements remote.Client.
func (f *Fake) FetchGameStatesSince(ctx context.Context, userID string, since time.Time) ([]*schema.GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchGameStatesSince"); err != nil {
		return nil, err
	}

	var out []*schema.GameState
	for _, g := range f.games {
		if g.UserID != userID || !g.UpdatedAt.After(since) {
			continue
		}
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

// GameStateExists implements remote.Client.
func (f *Fake) GameStateExists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("GameStateExists"); err != nil {
		return false, err
	}
	_, ok := f.games[id]
	return ok, nil
}

// InsertGameState implements remote.Client.
func (f *Fake) InsertGameState(ctx context.Context, g *schema.GameState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("InsertGameState"); err != nil {
		return err
	}
	if f.failIDs[g.ID] {
		return fmt.Errorf("injected failure for %s", g.ID)
	}
	if _, ok := f.games[g.ID]; ok {
		return fmt.Errorf("duplicate game state %s", g.ID)
	}
	cp := *g
	f.games[g.ID] = &cp
	return nil
}

// UpdateGameState implements remote.Client.
func (f *Fake) UpdateGameState(ctx context.Context, g *schema.GameState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("UpdateGameState"); err != nil {
		return err
	}
	if f.failIDs[g.ID] {
		return fmt.Errorf("injected failure for %s", g.ID)
	}
	if _, ok := f.games[g.ID]; !ok {
		return fmt.Errorf("game state %s not found", g.ID)
	}
	cp := *g
	f.games[g.ID] = &cp
	return nil
}

var _ remote.Client = (*Fake)(nil)
