package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// recordPrefix is the store namespace holding game records
const recordPrefix = "games/"

// RecordKey returns the store key of a game
func RecordKey(gameID string) string {
	return recordPrefix + gameID
}

// GameIDFromKey extracts the game ID from a store key
func GameIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, recordPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// EncodeGame serializes the whole aggregate
func EncodeGame(g *Game) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode game %s: %w", g.ID, err)
	}
	return data, nil
}

// DecodeGame parses a stored record.
// Older or partial records may lack collections; those become empty.
func DecodeGame(data []byte) (*Game, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrGameNotFound
	}

	var g Game
	if err := json.Unmarshal(trimmed, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if g.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidRecord)
	}

	if g.Phase == "" {
		g.Phase = PhaseSubmission
	}
	if g.Participants == nil {
		g.Participants = make([]Participant, 0)
	}
	if g.Songs == nil {
		g.Songs = make([]Song, 0)
	}
	if g.Votes == nil {
		g.Votes = make([]Vote, 0)
	}
	if g.RevealedSongIDs == nil {
		g.RevealedSongIDs = make([]string, 0)
	}

	return &g, nil
}
