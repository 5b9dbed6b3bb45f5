package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Mutation is a pure game transform. It must not modify its input.
type Mutation func(*Game) *Game

// newID generates identifiers for new participants and songs
var newID = uuid.NewString

// AddParticipant appends a participant with the trimmed name.
// Empty names and case-insensitive duplicates leave the game unchanged.
func AddParticipant(g *Game, name string) *Game {
	name = strings.TrimSpace(name)
	if name == "" {
		return g
	}
	if _, exists := g.ParticipantByName(name); exists {
		return g
	}

	next := g.Clone()
	next.Participants = append(next.Participants, Participant{ID: newID(), Name: name})
	return next
}

// AddSong appends a song with a fresh ID.
// SubmittedBy is not checked; the caller restricts it to current participants.
func AddSong(g *Game, in SongInput) *Game {
	next := g.Clone()
	next.Songs = append(next.Songs, Song{
		ID:          newID(),
		Title:       in.Title,
		Artist:      in.Artist,
		YouTubeURL:  in.YouTubeURL,
		SubmittedBy: in.SubmittedBy,
	})
	return next
}

// CastVote replaces the vote with the same voter and song, or appends it
func CastVote(g *Game, vote Vote) *Game {
	next := g.Clone()
	for i, v := range next.Votes {
		if v.Key() == vote.Key() {
			next.Votes[i] = vote
			return next
		}
	}
	next.Votes = append(next.Votes, vote)
	return next
}

// RevealSong marks a song as revealed. Already revealed or unknown songs are a no-op.
func RevealSong(g *Game, songID string) *Game {
	if g.IsRevealed(songID) {
		return g
	}
	if _, ok := g.Song(songID); !ok {
		return g
	}

	next := g.Clone()
	next.RevealedSongIDs = append(next.RevealedSongIDs, songID)
	return next
}

// SetPhase sets the phase unconditionally; legality is checked at the boundary
func SetPhase(g *Game, phase Phase) *Game {
	next := g.Clone()
	next.Phase = phase
	return next
}

// ResetGame clears everything but the identity of the game
func ResetGame(g *Game) *Game {
	next := NewGame(g.ID, g.Name, g.CreatorID)
	next.Version = g.Version
	return next
}

// AddParticipantMutation wraps AddParticipant as a Mutation
func AddParticipantMutation(name string) Mutation {
	return func(g *Game) *Game { return AddParticipant(g, name) }
}

// AddSongMutation wraps AddSong as a Mutation
func AddSongMutation(in SongInput) Mutation {
	return func(g *Game) *Game { return AddSong(g, in) }
}

// CastVoteMutation wraps CastVote as a Mutation
func CastVoteMutation(vote Vote) Mutation {
	return func(g *Game) *Game { return CastVote(g, vote) }
}

// RevealSongMutation wraps RevealSong as a Mutation
func RevealSongMutation(songID string) Mutation {
	return func(g *Game) *Game { return RevealSong(g, songID) }
}

// SetPhaseMutation wraps SetPhase as a Mutation
func SetPhaseMutation(phase Phase) Mutation {
	return func(g *Game) *Game { return SetPhase(g, phase) }
}

// ResetGameMutation wraps ResetGame as a Mutation
func ResetGameMutation() Mutation {
	return ResetGame
}
