package domain

import "fmt"

// Game is the root aggregate of one play session, replicated by ID
type Game struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Phase           Phase         `json:"gameState"`
	CreatorID       string        `json:"creatorId"`
	Participants    []Participant `json:"participants"`
	Songs           []Song        `json:"songs"`
	Votes           []Vote        `json:"votes"`
	RevealedSongIDs []string      `json:"revealedSongIds"`
	Version         int64         `json:"version,omitempty"` // Incremented on every publish
}

// NewGame creates a new game in the submission phase
func NewGame(id, name, creatorID string) *Game {
	return &Game{
		ID:              id,
		Name:            name,
		Phase:           PhaseSubmission,
		CreatorID:       creatorID,
		Participants:    make([]Participant, 0),
		Songs:           make([]Song, 0),
		Votes:           make([]Vote, 0),
		RevealedSongIDs: make([]string, 0),
	}
}

// Clone returns a deep copy of the game.
// Collections are always non-nil in the copy.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}

	c := *g
	c.Participants = append(make([]Participant, 0, len(g.Participants)), g.Participants...)
	c.Songs = append(make([]Song, 0, len(g.Songs)), g.Songs...)
	c.Votes = append(make([]Vote, 0, len(g.Votes)), g.Votes...)
	c.RevealedSongIDs = append(make([]string, 0, len(g.RevealedSongIDs)), g.RevealedSongIDs...)
	return &c
}

// Participant returns a participant by ID
func (g *Game) Participant(id string) (Participant, bool) {
	for _, p := range g.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// ParticipantByName returns the participant whose name matches case-insensitively
func (g *Game) ParticipantByName(name string) (Participant, bool) {
	for _, p := range g.Participants {
		if SameName(p.Name, name) {
			return p, true
		}
	}
	return Participant{}, false
}

// Song returns a song by ID
func (g *Game) Song(id string) (Song, bool) {
	for _, s := range g.Songs {
		if s.ID == id {
			return s, true
		}
	}
	return Song{}, false
}

// VoteFor returns the vote a participant cast for a song
func (g *Game) VoteFor(voterID, songID string) (Vote, bool) {
	for _, v := range g.Votes {
		if v.VoterID == voterID && v.SongID == songID {
			return v, true
		}
	}
	return Vote{}, false
}

// IsRevealed checks if the song has already been revealed
func (g *Game) IsRevealed(songID string) bool {
	for _, id := range g.RevealedSongIDs {
		if id == songID {
			return true
		}
	}
	return false
}

// IsCreator checks if the given client created the game
func (g *Game) IsCreator(clientID string) bool {
	return clientID != "" && g.CreatorID == clientID
}

// Validate reports the first structural invariant the game violates.
// Records coming from other clients are not trusted to be well formed.
func (g *Game) Validate() error {
	if !g.Phase.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, g.Phase)
	}

	names := make(map[string]string, len(g.Participants))
	for _, p := range g.Participants {
		folded := foldName(p.Name)
		if other, ok := names[folded]; ok {
			return fmt.Errorf("%w: %q and %q", ErrDuplicateName, other, p.Name)
		}
		names[folded] = p.Name
	}

	keys := make(map[VoteKey]struct{}, len(g.Votes))
	for _, v := range g.Votes {
		if _, ok := keys[v.Key()]; ok {
			return fmt.Errorf("%w: voter %s song %s", ErrDuplicateVote, v.VoterID, v.SongID)
		}
		keys[v.Key()] = struct{}{}
	}

	for _, id := range g.RevealedSongIDs {
		if _, ok := g.Song(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownRevealedSong, id)
		}
	}

	return nil
}
