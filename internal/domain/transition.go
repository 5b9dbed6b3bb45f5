package domain

import "fmt"

// MinParticipants is the smallest game that can move on to voting
const MinParticipants = 2

// Requirements lists what is still missing before the game can leave its phase
type Requirements struct {
	MissingParticipants int `json:"missingParticipants"`
	MissingSongs        int `json:"missingSongs"`
	MissingVotes        int `json:"missingVotes"`
	UnrevealedSongs     int `json:"unrevealedSongs"`
}

// Met reports whether nothing is missing
func (r Requirements) Met() bool {
	return r == Requirements{}
}

// Readiness computes the outstanding requirements of the current phase
func Readiness(g *Game) Requirements {
	var r Requirements

	switch g.Phase {
	case PhaseSubmission:
		r.MissingParticipants = max(0, MinParticipants-len(g.Participants))
		r.MissingSongs = max(0, len(g.Participants)-len(g.Songs))
	case PhaseVoting:
		r.MissingVotes = missingVotes(g)
	case PhaseReveal:
		for _, s := range g.Songs {
			if !g.IsRevealed(s.ID) {
				r.UnrevealedSongs++
			}
		}
	}

	return r
}

// missingVotes counts (participant, song) pairs that have no vote yet
func missingVotes(g *Game) int {
	cast := make(map[VoteKey]struct{}, len(g.Votes))
	for _, v := range g.Votes {
		cast[v.Key()] = struct{}{}
	}

	missing := 0
	for _, p := range g.Participants {
		for _, s := range g.Songs {
			if _, ok := cast[VoteKey{VoterID: p.ID, SongID: s.ID}]; !ok {
				missing++
			}
		}
	}
	return missing
}

// CanTransition reports whether the game may move to target right now.
// It is advisory: SetPhase never consults it.
func CanTransition(g *Game, target Phase) bool {
	return CheckTransition(g, target) == nil
}

// CheckTransition explains why a transition to target is not allowed
func CheckTransition(g *Game, target Phase) error {
	if !g.Phase.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s to %s", ErrTransitionNotAllowed, g.Phase, target)
	}

	// RESULTS to SUBMISSION is the unconditional reset
	if g.Phase == PhaseResults {
		return nil
	}

	r := Readiness(g)
	if r.Met() {
		return nil
	}

	switch g.Phase {
	case PhaseSubmission:
		return fmt.Errorf("%w: missing %d participants and %d songs",
			ErrTransitionNotAllowed, r.MissingParticipants, r.MissingSongs)
	case PhaseVoting:
		return fmt.Errorf("%w: missing %d votes", ErrTransitionNotAllowed, r.MissingVotes)
	default:
		return fmt.Errorf("%w: %d songs not revealed", ErrTransitionNotAllowed, r.UnrevealedSongs)
	}
}
