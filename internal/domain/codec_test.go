package domain

import (
	"errors"
	"testing"
)

func TestDecodeGame_FillsMissingCollections(t *testing.T) {
	// Records written before reveals existed carry neither revealedSongIds nor votes.
	data := []byte(`{"id":"g1","name":"Old","gameState":"VOTING","creatorId":"c","participants":[{"id":"p","name":"Ana"}]}`)

	g, err := DecodeGame(data)
	if err != nil {
		t.Fatalf("DecodeGame: %v", err)
	}

	if g.Songs == nil || g.Votes == nil || g.RevealedSongIDs == nil {
		t.Fatalf("expected empty collections, got %+v", g)
	}
	if len(g.Participants) != 1 || g.Phase != PhaseVoting {
		t.Fatalf("unexpected game: %+v", g)
	}
}

func TestDecodeGame_DefaultsPhase(t *testing.T) {
	g, err := DecodeGame([]byte(`{"id":"g1","name":"x"}`))
	if err != nil {
		t.Fatalf("DecodeGame: %v", err)
	}
	if g.Phase != PhaseSubmission {
		t.Fatalf("expected SUBMISSION, got %q", g.Phase)
	}
}

func TestDecodeGame_Absent(t *testing.T) {
	for _, in := range []string{"", "null", "  null \n"} {
		if _, err := DecodeGame([]byte(in)); !errors.Is(err, ErrGameNotFound) {
			t.Fatalf("%q: expected ErrGameNotFound, got %v", in, err)
		}
	}
}

func TestDecodeGame_Invalid(t *testing.T) {
	for _, in := range []string{"{", `{"name":"no id"}`, `[1,2]`} {
		if _, err := DecodeGame([]byte(in)); !errors.Is(err, ErrInvalidRecord) {
			t.Fatalf("%q: expected ErrInvalidRecord, got %v", in, err)
		}
	}
}

func TestEncodeGame_UsesRecordFieldNames(t *testing.T) {
	g := NewGame("g1", "name", "creator")

	data, err := EncodeGame(g)
	if err != nil {
		t.Fatalf("EncodeGame: %v", err)
	}

	want := `{"id":"g1","name":"name","gameState":"SUBMISSION","creatorId":"creator","participants":[],"songs":[],"votes":[],"revealedSongIds":[]}`
	if string(data) != want {
		t.Fatalf("unexpected record\ngot : %s\nwant: %s", data, want)
	}
}

func TestRecordKey(t *testing.T) {
	key := RecordKey("abc")
	if key != "games/abc" {
		t.Fatalf("unexpected key %q", key)
	}

	id, ok := GameIDFromKey(key)
	if !ok || id != "abc" {
		t.Fatalf("GameIDFromKey(%q) = %q, %v", key, id, ok)
	}

	for _, bad := range []string{"games/", "users/abc", "games/a/b", "abc"} {
		if _, ok := GameIDFromKey(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
