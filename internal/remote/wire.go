package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sudokodus/sudokodus/internal/schema"
)

// wirePuzzle is the puzzles row as the backend serializes it. Nullable
// columns come back as JSON null, hence the pointers.
type wirePuzzle struct {
	PuzzleString string     `json:"puzzle_string"`
	Rating       float64    `json:"rating"`
	Difficulty   string     `json:"difficulty"`
	IsSymmetric  *bool      `json:"is_symmetric"`
	ClueCount    int        `json:"clue_count"`
	Source       *string    `json:"source"`
	CreatedAt    *time.Time `json:"created_at"`
}

func (w *wirePuzzle) toPuzzle() schema.Puzzle {
	p := schema.Puzzle{
		PuzzleString: w.PuzzleString,
		Rating:       w.Rating,
		Difficulty:   schema.Difficulty(w.Difficulty),
		ClueCount:    w.ClueCount,
		Source:       schema.DefaultSource,
	}
	if w.IsSymmetric != nil {
		p.IsSymmetric = *w.IsSymmetric
	}
	if w.Source != nil && *w.Source != "" {
		p.Source = *w.Source
	}
	if w.CreatedAt != nil {
		p.CreatedAt = *w.CreatedAt
	}
	return p
}

// wireGameState is the game_states row on the wire. The grid, notes and
// history are jsonb columns remotely but serialized TEXT locally, so they
// cross as raw JSON.
type wireGameState struct {
	ID           string          `json:"id"`
	UserID       *string         `json:"user_id"`
	PuzzleString string          `json:"puzzle_string"`
	CurrentState json.RawMessage `json:"current_state"`
	Notes        json.RawMessage `json:"notes,omitempty"`
	IsCompleted  bool            `json:"is_completed"`
	HintsUsed    int             `json:"hints_used"`
	MovesHistory json.RawMessage `json:"moves_history,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toWireGameState(g *schema.GameState) (*wireGameState, error) {
	w := &wireGameState{
		ID:           g.ID,
		PuzzleString: g.PuzzleString,
		IsCompleted:  g.IsCompleted,
		HintsUsed:    g.HintsUsed,
		CreatedAt:    g.CreatedAt.UTC(),
		UpdatedAt:    g.UpdatedAt.UTC(),
	}
	if g.UserID != "" {
		w.UserID = &g.UserID
	}

	for _, f := range []struct {
		name  string
		value string
		dst   *json.RawMessage
	}{
		{"current_state", g.CurrentState, &w.CurrentState},
		{"notes", g.Notes, &w.Notes},
		{"moves_history", g.MovesHistory, &w.MovesHistory},
	} {
		if f.value == "" {
			continue
		}
		if !json.Valid([]byte(f.value)) {
			return nil, fmt.Errorf("game %s has invalid %s JSON", g.ID, f.name)
		}
		*f.dst = json.RawMessage(f.value)
	}

	return w, nil
}

func (w *wireGameState) toGameState() *schema.GameState {
	g := &schema.GameState{
		ID:           w.ID,
		PuzzleString: w.PuzzleString,
		CurrentState: rawToString(w.CurrentState),
		Notes:        rawToString(w.Notes),
		IsCompleted:  w.IsCompleted,
		HintsUsed:    w.HintsUsed,
		MovesHistory: rawToString(w.MovesHistory),
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if w.UserID != nil {
		g.UserID = *w.UserID
	}
	return g
}

// rawToString collapses JSON null to the empty string.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}
