package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cell is one entry of a game's 81-cell grid.
type Cell struct {
	Value   int   `json:"value"`
	IsGiven bool  `json:"isGiven"`
	Notes   []int `json:"notes,omitempty"`
}

// GameState is an in-progress or completed game.
//
// CurrentState, Notes and MovesHistory hold serialized JSON; the backend
// stores them as jsonb, the local store as TEXT. CurrentState always
// decodes to exactly 81 cells.
//
// Synced is local bookkeeping: false whenever the row has edits the backend
// has not confirmed, true only after a successful round-trip. It is never
// part of the wire format.
type GameState struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	PuzzleString string    `json:"puzzle_string"`
	CurrentState string    `json:"current_state"`
	Notes        string    `json:"notes,omitempty"`
	IsCompleted  bool      `json:"is_completed"`
	HintsUsed    int       `json:"hints_used"`
	MovesHistory string    `json:"moves_history,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Synced       bool      `json:"-"`
}

// Validate checks that the game state is well formed, including the 81-cell
// grid invariant.
func (g *GameState) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if err := ValidatePuzzleString(g.PuzzleString); err != nil {
		return fmt.Errorf("invalid puzzle reference: %w", err)
	}
	if g.CurrentState != "" {
		if _, err := DecodeCells(g.CurrentState); err != nil {
			return fmt.Errorf("invalid current_state: %w", err)
		}
	}
	if g.HintsUsed < 0 {
		return fmt.Errorf("hints_used cannot be negative (got %d)", g.HintsUsed)
	}
	if g.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if g.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// DecodeCells parses a serialized grid and enforces the 81-cell invariant.
func DecodeCells(state string) ([]Cell, error) {
	var cells []Cell
	if err := json.Unmarshal([]byte(state), &cells); err != nil {
		return nil, fmt.Errorf("failed to decode cells: %w", err)
	}
	if len(cells) != PuzzleLength {
		return nil, fmt.Errorf("grid must have %d cells (got %d)", PuzzleLength, len(cells))
	}
	for i, c := range cells {
		if c.Value < 0 || c.Value > 9 {
			return nil, fmt.Errorf("cell %d has value %d outside 0-9", i, c.Value)
		}
	}
	return cells, nil
}

// EncodeCells serializes a grid, enforcing the 81-cell invariant.
func EncodeCells(cells []Cell) (string, error) {
	if len(cells) != PuzzleLength {
		return "", fmt.Errorf("grid must have %d cells (got %d)", PuzzleLength, len(cells))
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("failed to encode cells: %w", err)
	}
	return string(data), nil
}

// InitialCells builds the starting grid for a puzzle string: given cells
// carry their digit with IsGiven set, empty cells are zero.
func InitialCells(puzzleString string) ([]Cell, error) {
	if err := ValidatePuzzleString(puzzleString); err != nil {
		return nil, err
	}
	cells := make([]Cell, PuzzleLength)
	for i := 0; i < PuzzleLength; i++ {
		v := int(puzzleString[i] - '0')
		cells[i] = Cell{Value: v, IsGiven: v != 0}
	}
	return cells, nil
}
