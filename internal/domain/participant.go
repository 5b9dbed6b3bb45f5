package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// Participant represents a named entrant of a game
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// foldName returns the case-folded form used for name uniqueness.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// SameName reports whether two display names collide once case-folded.
func SameName(a, b string) bool {
	return foldName(a) == foldName(b)
}
