// Package remote provides the client for the hosted backend.
//
// The backend is a hosted Postgres exposing table-style REST operations
// (PostgREST dialect): equality/range filters, not-in set exclusion, row
// limits, inserts and updates, and row-level created_at/updated_at
// timestamps for incremental sync.
//
// The client is deliberately thin: operations either succeed or return the
// error as-is. Retrying is the caller's job (see the retry package), so a
// single failure policy applies across every remote operation.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sudokodus/sudokodus/internal/schema"
)

// ErrUnavailable is returned when the client was never configured with a
// reachable backend. Callers short-circuit sync entirely rather than retry.
var ErrUnavailable = errors.New("remote backend is not available")

// PuzzleQuery filters a puzzle fetch.
type PuzzleQuery struct {
	// Difficulty restricts results to one tier.
	Difficulty schema.Difficulty

	// Exclude lists puzzle strings the caller already has; the backend
	// never returns them, saving bandwidth on replenishment.
	Exclude []string

	// Limit caps the number of returned rows. Zero means no limit.
	Limit int
}

// Client is the remote backend surface the sync engine consumes.
//
// Implementations must be safe for concurrent use. All operations are
// fallible with transparent errors; none retry internally.
type Client interface {
	// IsAvailable reports whether the backend can be reached at all.
	// False short-circuits every sync attempt without touching the
	// network.
	IsAvailable() bool

	// FetchPuzzles returns puzzles matching the query. An empty result is
	// not an error; it signals the remote pool is exhausted for that
	// difficulty.
	FetchPuzzles(ctx context.Context, q PuzzleQuery) ([]schema.Puzzle, error)

	// FetchPuzzle returns one puzzle by its string, or nil if the backend
	// doesn't have it.
	FetchPuzzle(ctx context.Context, puzzleString string) (*schema.Puzzle, error)

	// FetchDailyChallenges returns the challenge set for one date.
	FetchDailyChallenges(ctx context.Context, date string) ([]*schema.DailyChallenge, error)

	// FetchGameStatesSince returns a user's rows with updated_at strictly
	// after since.
	FetchGameStatesSince(ctx context.Context, userID string, since time.Time) ([]*schema.GameState, error)

	// GameStateExists probes for a row by primary key.
	GameStateExists(ctx context.Context, id string) (bool, error)

	// InsertGameState creates a remote row.
	InsertGameState(ctx context.Context, g *schema.GameState) error

	// UpdateGameState overwrites an existing remote row by id.
	UpdateGameState(ctx context.Context, g *schema.GameState) error
}
