package domain

// Vote represents one participant's guess of who submitted a song
type Vote struct {
	VoterID              string `json:"voterId"`
	SongID               string `json:"songId"`
	GuessedParticipantID string `json:"guessedParticipantId"`
}

// VoteKey identifies a vote. A game holds at most one vote per key.
type VoteKey struct {
	VoterID string
	SongID  string
}

// Key returns the compound identity of the vote
func (v Vote) Key() VoteKey {
	return VoteKey{VoterID: v.VoterID, SongID: v.SongID}
}
