package schema

import (
	"fmt"
	"time"
)

// DateFormat is the layout for daily challenge dates.
const DateFormat = "2006-01-02"

// DailyChallenge assigns one puzzle per difficulty tier to a calendar date.
// Rows are unique on (date, difficulty) and read-mostly: the sync layer
// replaces a date's set wholesale.
type DailyChallenge struct {
	ID           string     `json:"id"`
	Date         string     `json:"date"`
	Difficulty   Difficulty `json:"difficulty"`
	PuzzleString string     `json:"puzzle_string"`
}

// Validate checks that the challenge is well formed.
func (c *DailyChallenge) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if _, err := time.Parse(DateFormat, c.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", c.Date, err)
	}
	if !c.Difficulty.Valid() {
		return fmt.Errorf("unknown difficulty %q", c.Difficulty)
	}
	if err := ValidatePuzzleString(c.PuzzleString); err != nil {
		return fmt.Errorf("invalid puzzle reference: %w", err)
	}
	return nil
}
