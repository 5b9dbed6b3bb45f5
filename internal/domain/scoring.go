package domain

import "sort"

// Score is one participant's position in a ranking
type Score struct {
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Rank          int    `json:"rank"` // 1-based, shared between equal scores
}

// ComputeScores counts each participant's correct guesses.
//
// A nil revealed slice scores every song. A non-nil slice, even an empty one,
// restricts scoring to the songs it lists. Equal scores keep participant order.
func ComputeScores(participants []Participant, songs []Song, votes []Vote, revealed []string) []Score {
	submitters := make(map[string]string, len(songs))
	for _, s := range songs {
		submitters[s.ID] = s.SubmittedBy
	}

	var inScope map[string]bool
	if revealed != nil {
		inScope = make(map[string]bool, len(revealed))
		for _, id := range revealed {
			inScope[id] = true
		}
	}

	correct := make(map[string]int, len(participants))
	for _, v := range votes {
		if inScope != nil && !inScope[v.SongID] {
			continue
		}
		submitter, ok := submitters[v.SongID]
		if !ok || submitter != v.GuessedParticipantID {
			continue
		}
		correct[v.VoterID]++
	}

	scores := make([]Score, 0, len(participants))
	for _, p := range participants {
		scores = append(scores, Score{
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         correct[p.ID],
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	for i := range scores {
		if i > 0 && scores[i].Score == scores[i-1].Score {
			scores[i].Rank = scores[i-1].Rank
		} else {
			scores[i].Rank = i + 1
		}
	}

	return scores
}

// FinalScores ranks participants over every song
func FinalScores(g *Game) []Score {
	return ComputeScores(g.Participants, g.Songs, g.Votes, nil)
}

// LiveScores ranks participants over revealed songs only
func LiveScores(g *Game) []Score {
	revealed := g.RevealedSongIDs
	if revealed == nil {
		revealed = []string{}
	}
	return ComputeScores(g.Participants, g.Songs, g.Votes, revealed)
}
