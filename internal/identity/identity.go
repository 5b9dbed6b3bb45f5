// Package identity keeps per-game local identity: who this client plays as
// and whether it moderates the game.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"porramusical/internal/domain"
)

// ErrNotFound is returned by a KV when the key has no value
var ErrNotFound = errors.New("identity value not found")

// KV is a small string key-value store local to this client
type KV interface {
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value string) error
}

const clientIDKey = "client-id"

func participantKey(gameID string) string { return "user-" + gameID }
func moderatorKey(gameID string) string   { return "moderator-" + gameID }

// Store reads and writes scoped identity values.
// notFound is the KV's own not-found sentinel.
type Store struct {
	kv       KV
	notFound error
}

// NewStore creates an identity store over kv. notFound is the error kv
// returns for missing keys, matched with errors.Is.
func NewStore(kv KV, notFound error) *Store {
	if notFound == nil {
		notFound = ErrNotFound
	}
	return &Store{kv: kv, notFound: notFound}
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.kv.GetValue(ctx, key)
	if errors.Is(err, s.notFound) || errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// ClientID returns this client's stable ID, generating it on first use.
// It is recorded as creatorId of the games this client creates.
func (s *Store) ClientID(ctx context.Context) (string, error) {
	id, ok, err := s.get(ctx, clientIDKey)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.kv.SetValue(ctx, clientIDKey, id); err != nil {
		return "", fmt.Errorf("save client id: %w", err)
	}
	return id, nil
}

// SetLocalParticipant remembers the name this client plays as in a game
func (s *Store) SetLocalParticipant(ctx context.Context, gameID, name string) error {
	if err := s.kv.SetValue(ctx, participantKey(gameID), strings.TrimSpace(name)); err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

// LocalParticipant resolves the remembered name to a participant of g.
// The name must match exactly; a renamed or missing participant resolves to nothing.
func (s *Store) LocalParticipant(ctx context.Context, g *domain.Game) (domain.Participant, bool, error) {
	name, ok, err := s.get(ctx, participantKey(g.ID))
	if err != nil || !ok {
		return domain.Participant{}, false, err
	}

	for _, p := range g.Participants {
		if p.Name == name {
			return p, true, nil
		}
	}
	return domain.Participant{}, false, nil
}

// SetModerator stores the moderator token of a game, normally the creator's client ID
func (s *Store) SetModerator(ctx context.Context, gameID, token string) error {
	if err := s.kv.SetValue(ctx, moderatorKey(gameID), token); err != nil {
		return fmt.Errorf("save moderator token: %w", err)
	}
	return nil
}

// IsModerator reports whether this client holds the moderator token of g.
// The check is local only; the shared record does not enforce it.
func (s *Store) IsModerator(ctx context.Context, g *domain.Game) (bool, error) {
	token, ok, err := s.get(ctx, moderatorKey(g.ID))
	if err != nil || !ok {
		return false, err
	}
	return g.IsCreator(token), nil
}
