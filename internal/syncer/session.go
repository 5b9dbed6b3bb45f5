// Package syncer keeps a local copy of one game in step with the shared store
// and publishes local mutations back to it.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"porramusical/internal/domain"
	"porramusical/internal/store"
)

var (
	// ErrEmptyGameName is returned when creating a game without a name
	ErrEmptyGameName = errors.New("game name is required")

	// ErrSessionClosed is returned when the session ended before the game resolved
	ErrSessionClosed = errors.New("sync session closed")
)

// Update is one remote change of the synchronized game.
// Exactly one of Game and NotFound is set.
type Update struct {
	Game     *domain.Game
	NotFound bool
}

// Stats counts session activity
type Stats struct {
	Updates     int64
	Publishes   int64
	LostUpdates int64
}

// Session synchronizes one game with a store.
// The store handle is owned by the caller; Close releases only the subscription.
type Session struct {
	store  store.Store
	gameID string
	key    string
	logger *slog.Logger
	cancel context.CancelFunc

	updates chan Update
	ready   chan struct{}
	done    chan struct{}

	mu       sync.RWMutex
	current  *domain.Game
	notFound bool
	resolved bool

	// local is the last game this session published until a snapshot at or
	// above its version arrives; Current and Apply build on it meanwhile.
	local         *domain.Game
	published     int64
	publishedData []byte
	echoed        bool

	applyMu sync.Mutex

	updateCount  atomic.Int64
	publishCount atomic.Int64
	lostCount    atomic.Int64
}

// Open subscribes to the game record and starts synchronizing.
// The session ends when ctx ends or Close is called.
func Open(ctx context.Context, st store.Store, gameID string, logger *slog.Logger) (*Session, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, fmt.Errorf("open session: %w", domain.ErrGameNotFound)
	}

	subCtx, cancel := context.WithCancel(ctx)
	key := domain.RecordKey(gameID)

	snapshots, err := st.Subscribe(subCtx, key)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	s := &Session{
		store:   st,
		gameID:  gameID,
		key:     key,
		logger:  logger.With("gameID", gameID),
		cancel:  cancel,
		updates: make(chan Update, 1),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}

	go s.run(snapshots)

	return s, nil
}

// GameID returns the ID of the synchronized game
func (s *Session) GameID() string {
	return s.gameID
}

// Updates delivers every remote change. A slow reader skips intermediate
// games but always receives the latest one. Closed when the session ends.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// Current returns the latest game, including a local write the store has
// not echoed back yet
func (s *Session) Current() (*domain.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.local != nil {
		return s.local, true
	}
	return s.current, s.current != nil
}

// Wait blocks until the first remote update resolved the game
func (s *Session) Wait(ctx context.Context) (Update, error) {
	select {
	case <-s.ready:
	case <-s.done:
		// The subscription may have resolved right before ending
		select {
		case <-s.ready:
		default:
			return Update{}, ErrSessionClosed
		}
	case <-ctx.Done():
		return Update{}, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Update{Game: s.current, NotFound: s.notFound}, nil
}

// Publish writes the whole game to its record with the version incremented.
// Concurrent publishers overwrite each other; there is no merge.
func (s *Session) Publish(ctx context.Context, g *domain.Game) error {
	next := g.Clone()
	next.Version = g.Version + 1

	data, err := domain.EncodeGame(next)
	if err != nil {
		return err
	}

	// The echo of this write can arrive before Set returns, so the pending
	// write is recorded first.
	own := next.ID == s.gameID
	var restore func()
	if own {
		restore = s.beginWrite(next, data)
	}

	if err := s.store.Set(ctx, domain.RecordKey(next.ID), data); err != nil {
		if own {
			restore()
		}
		s.logger.Warn("publish failed", "version", next.Version, "error", err)
		return fmt.Errorf("publish game %s: %w", next.ID, err)
	}
	s.publishCount.Add(1)

	s.logger.Debug("game published", "version", next.Version)
	return nil
}

// beginWrite makes next the local game and returns a func that undoes it
func (s *Session) beginWrite(next *domain.Game, data []byte) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, published, publishedData, echoed := s.local, s.published, s.publishedData, s.echoed
	s.local = next
	s.published = next.Version
	s.publishedData = data
	s.echoed = false

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.local != next {
			return
		}
		s.local, s.published, s.publishedData, s.echoed = local, published, publishedData, echoed
		// The previous write may have been echoed while this one was in flight
		if s.current != nil && s.current.Version >= s.published {
			s.local = nil
			s.echoed = true
		}
	}
}

// Apply transforms the latest game with m and publishes the result.
// It is a no-op when no game is materialized or m leaves the game unchanged.
// Calls on one session are applied in order, each on top of the previous result.
func (s *Session) Apply(ctx context.Context, m domain.Mutation) (bool, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	current, ok := s.Current()
	if !ok {
		return false, nil
	}

	next := m(current)
	if next == current {
		return false, nil
	}

	if err := s.Publish(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// Stats returns session counters
func (s *Session) Stats() Stats {
	return Stats{
		Updates:     s.updateCount.Load(),
		Publishes:   s.publishCount.Load(),
		LostUpdates: s.lostCount.Load(),
	}
}

// Done is closed when the session has ended
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the subscription and waits for the session to stop
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// run materializes snapshots until the subscription ends
func (s *Session) run(snapshots <-chan store.Snapshot) {
	defer func() {
		close(s.updates)
		close(s.done)
	}()

	for snap := range snapshots {
		update, ok := s.materialize(snap)
		if !ok {
			continue
		}
		s.updateCount.Add(1)
		store.Offer(s.updates, update)
	}
}

// materialize decodes a snapshot and records it as the current game.
// Malformed records are skipped so the session keeps the last good game.
func (s *Session) materialize(snap store.Snapshot) (Update, bool) {
	g, err := domain.DecodeGame(snap.Value)
	if errors.Is(err, domain.ErrGameNotFound) {
		s.resolve(nil, nil)
		return Update{NotFound: true}, true
	}
	if err != nil {
		s.logger.Warn("ignoring malformed game record", "error", err)
		return Update{}, false
	}

	if err := g.Validate(); err != nil {
		s.logger.Warn("game record violates invariants", "error", err)
	}

	s.resolve(g, snap.Value)
	return Update{Game: g}, true
}

// resolve records g as the current game, nil meaning absent.
// The first snapshot at or above the last published version ends the local
// override; a different record at or below that version after it means a
// concurrent writer replaced the local change.
func (s *Session) resolve(g *domain.Game, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g != nil && s.published > 0 {
		switch {
		case !s.echoed && g.Version >= s.published:
			s.echoed = true
			s.local = nil
		case s.echoed && g.Version <= s.published && !bytes.Equal(data, s.publishedData):
			s.lostCount.Add(1)
			s.logger.Warn("concurrent write overwrote a local change",
				"publishedVersion", s.published,
				"remoteVersion", g.Version,
			)
		}
	}

	s.current = g
	s.notFound = g == nil
	if !s.resolved {
		s.resolved = true
		close(s.ready)
	}
}

// Create writes a new game record and returns the game.
// The name is trimmed; creatorID is the creating client's identity.
func Create(ctx context.Context, st store.Store, name, creatorID string) (*domain.Game, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyGameName
	}

	g := domain.NewGame(uuid.NewString(), name, creatorID)
	g.Version = 1

	data, err := domain.EncodeGame(g)
	if err != nil {
		return nil, err
	}
	if err := st.Set(ctx, domain.RecordKey(g.ID), data); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	return g, nil
}
