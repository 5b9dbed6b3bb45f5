package domain

// Phase represents the current phase of a game
type Phase string

const (
	PhaseSubmission Phase = "SUBMISSION" // Participants join and submit songs
	PhaseVoting     Phase = "VOTING"     // Everyone guesses who brought each song
	PhaseReveal     Phase = "REVEAL"     // Moderator reveals songs one by one
	PhaseResults    Phase = "RESULTS"    // Final ranking, terminal until reset
)

// String returns the string representation of the phase
func (p Phase) String() string {
	return string(p)
}

// Valid reports whether p is one of the known phases
func (p Phase) Valid() bool {
	switch p {
	case PhaseSubmission, PhaseVoting, PhaseReveal, PhaseResults:
		return true
	}
	return false
}

// Next returns the phase that follows p in normal play.
// RESULTS has no successor; leaving it requires a reset.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhaseSubmission:
		return PhaseVoting, true
	case PhaseVoting:
		return PhaseReveal, true
	case PhaseReveal:
		return PhaseResults, true
	}
	return "", false
}

// CanTransitionTo checks if a transition from current phase to target phase is valid
func (p Phase) CanTransitionTo(target Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhaseSubmission: {PhaseVoting},
		PhaseVoting:     {PhaseReveal},
		PhaseReveal:     {PhaseResults},
		PhaseResults:    {PhaseSubmission}, // Only through a reset
	}

	allowed, ok := validTransitions[p]
	if !ok {
		return false
	}

	for _, phase := range allowed {
		if phase == target {
			return true
		}
	}
	return false
}
