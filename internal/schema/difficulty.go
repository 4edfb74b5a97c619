package schema

import "fmt"

// Difficulty identifies one of the four puzzle tiers. The string values
// match the difficulty_level enum on the backend and the CHECK constraints
// in the local database.
type Difficulty string

const (
	Easy       Difficulty = "easy"
	Medium     Difficulty = "medium"
	Hard       Difficulty = "hard"
	Diabolical Difficulty = "diabolical"
)

// Difficulties returns all tiers in ascending order of difficulty.
func Difficulties() []Difficulty {
	return []Difficulty{Easy, Medium, Hard, Diabolical}
}

// Valid reports whether d is one of the known tiers.
func (d Difficulty) Valid() bool {
	switch d {
	case Easy, Medium, Hard, Diabolical:
		return true
	}
	return false
}

// ParseDifficulty converts a string into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}
