package schema

import (
	"fmt"
	"time"
)

// PuzzleLength is the length of a serialized puzzle: one digit per cell of
// the 9x9 grid, '0' for empty cells. The puzzle string doubles as the
// primary key everywhere.
const PuzzleLength = 81

// DefaultSource is recorded on puzzles that arrive without a source.
const DefaultSource = "sudokodus"

// Puzzle is an immutable puzzle row. Once created it is never modified,
// locally or remotely.
type Puzzle struct {
	PuzzleString string     `json:"puzzle_string"`
	Rating       float64    `json:"rating"`
	Difficulty   Difficulty `json:"difficulty"`
	IsSymmetric  bool       `json:"is_symmetric"`
	ClueCount    int        `json:"clue_count"`
	Source       string     `json:"source,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate checks that the puzzle is well formed.
func (p *Puzzle) Validate() error {
	if err := ValidatePuzzleString(p.PuzzleString); err != nil {
		return err
	}
	if !p.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", p.Difficulty)
	}
	if p.ClueCount <= 0 || p.ClueCount > PuzzleLength {
		return fmt.Errorf("clue_count must be between 1 and %d (got %d)", PuzzleLength, p.ClueCount)
	}
	return nil
}

// ValidatePuzzleString checks that s is exactly 81 digits.
func ValidatePuzzleString(s string) error {
	if len(s) != PuzzleLength {
		return fmt.Errorf("puzzle string must be %d characters (got %d)", PuzzleLength, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return fmt.Errorf("puzzle string contains non-digit %q at index %d", s[i], i)
		}
	}
	return nil
}

// CachedPuzzle is a puzzle held in the local unused-puzzle pool, together
// with pool bookkeeping. Cache entries are local-only and never pushed back
// to the backend.
//
// IsUsed transitions false to true exactly once, when a game is started
// from the entry. Used entries stay in the cache so replenishment can
// exclude them from remote fetches.
type CachedPuzzle struct {
	Puzzle
	FetchedAt time.Time `json:"fetched_at"`
	IsUsed    bool      `json:"is_used"`
}
