package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"porramusical/internal/app"
	"porramusical/internal/domain"
	"porramusical/internal/store"
	"porramusical/internal/transport/ws"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) *app.RecordHub {
	t.Helper()
	hub := app.NewRecordHub(nil, time.Minute, testLogger())
	t.Cleanup(hub.Close)
	return hub
}

func openSession(t *testing.T, st store.Store, gameID string) *Session {
	t.Helper()
	s, err := Open(context.Background(), st, gameID, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitGame(t *testing.T, s *Session) *domain.Game {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	u, err := s.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if u.NotFound {
		t.Fatal("game not found")
	}
	return u.Game
}

// nextUpdate waits for an update matching pred, skipping coalesced intermediates
func nextUpdate(t *testing.T, s *Session, pred func(Update) bool) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u, ok := <-s.Updates():
			if !ok {
				t.Fatal("updates closed")
			}
			if pred(u) {
				return u
			}
		case <-deadline:
			t.Fatal("timed out waiting for update")
		}
	}
}

func TestCreate_RejectsEmptyName(t *testing.T) {
	hub := newTestHub(t)
	if _, err := Create(context.Background(), hub, "   ", "c"); !errors.Is(err, ErrEmptyGameName) {
		t.Fatalf("expected ErrEmptyGameName, got %v", err)
	}
}

func TestSession_NotFound(t *testing.T) {
	hub := newTestHub(t)
	s := openSession(t, hub, "missing")

	u, err := s.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !u.NotFound || u.Game != nil {
		t.Fatalf("expected NotFound, got %+v", u)
	}

	applied, err := s.Apply(context.Background(), domain.AddParticipantMutation("Ana"))
	if err != nil || applied {
		t.Fatalf("Apply on absent game = %v, %v", applied, err)
	}
	if v, _ := hub.Get(context.Background(), domain.RecordKey("missing")); v != nil {
		t.Fatalf("absent game was written: %s", v)
	}
}

func TestSession_CreateJoinAndObserve(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	g, err := Create(ctx, hub, "  Fiesta  ", "creator")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.Name != "Fiesta" || g.Phase != domain.PhaseSubmission || g.CreatorID != "creator" {
		t.Fatalf("unexpected game %+v", g)
	}

	alice := openSession(t, hub, g.ID)
	bob := openSession(t, hub, g.ID)
	waitGame(t, alice)
	waitGame(t, bob)

	applied, err := alice.Apply(ctx, domain.AddParticipantMutation("Ana"))
	if err != nil || !applied {
		t.Fatalf("Apply = %v, %v", applied, err)
	}

	u := nextUpdate(t, bob, func(u Update) bool {
		return u.Game != nil && len(u.Game.Participants) == 1
	})
	if u.Game.Participants[0].Name != "Ana" {
		t.Fatalf("unexpected participants %+v", u.Game.Participants)
	}
	if u.Game.Version != 2 {
		t.Fatalf("expected version 2, got %d", u.Game.Version)
	}
}

func TestSession_ApplyNoOpDoesNotPublish(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	g, err := Create(ctx, hub, "Fiesta", "creator")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s := openSession(t, hub, g.ID)
	waitGame(t, s)

	if _, err := s.Apply(ctx, domain.AddParticipantMutation("Ana")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	writes := hub.Stats().Writes

	applied, err := s.Apply(ctx, domain.AddParticipantMutation("ana"))
	if err != nil || applied {
		t.Fatalf("duplicate join = %v, %v", applied, err)
	}
	if hub.Stats().Writes != writes {
		t.Fatal("no-op mutation was published")
	}
}

func TestSession_ApplyChainsOnOptimisticState(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	g, err := Create(ctx, hub, "Fiesta", "creator")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s := openSession(t, hub, g.ID)
	waitGame(t, s)

	for _, name := range []string{"Ana", "Bea", "Carlos"} {
		if _, err := s.Apply(ctx, domain.AddParticipantMutation(name)); err != nil {
			t.Fatalf("Apply %s: %v", name, err)
		}
	}

	current, ok := s.Current()
	if !ok || len(current.Participants) != 3 {
		t.Fatalf("expected 3 participants locally, got %+v", current)
	}

	value, err := hub.Get(ctx, domain.RecordKey(g.ID))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	stored, err := domain.DecodeGame(value)
	if err != nil {
		t.Fatalf("DecodeGame: %v", err)
	}
	if len(stored.Participants) != 3 || stored.Version != 4 {
		t.Fatalf("unexpected stored game: %+v", stored)
	}
}

func TestSession_LastWriteWins(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	g, err := Create(ctx, hub, "Fiesta", "creator")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a := openSession(t, hub, g.ID)
	b := openSession(t, hub, g.ID)
	base := waitGame(t, a)
	waitGame(t, b)

	// Both publish from the same base; the later write replaces the earlier one
	if err := a.Publish(ctx, domain.AddParticipant(base, "Ana")); err != nil {
		t.Fatalf("Publish a: %v", err)
	}
	nextUpdate(t, a, func(u Update) bool { return u.Game != nil && len(u.Game.Participants) == 1 })

	if err := b.Publish(ctx, domain.AddParticipant(base, "Bea")); err != nil {
		t.Fatalf("Publish b: %v", err)
	}

	u := nextUpdate(t, a, func(u Update) bool {
		return u.Game != nil && len(u.Game.Participants) == 1 && u.Game.Participants[0].Name == "Bea"
	})
	if len(u.Game.Participants) != 1 {
		t.Fatalf("expected whole-record overwrite, got %+v", u.Game.Participants)
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.Stats().LostUpdates == 0 {
		if time.Now().After(deadline) {
			t.Fatal("lost update not detected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSession_SkipsMalformedRecords(t *testing.T) {
	hub := newTestHub(t)
	ctx := context.Background()

	g, err := Create(ctx, hub, "Fiesta", "creator")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s := openSession(t, hub, g.ID)
	waitGame(t, s)

	if err := hub.Set(ctx, domain.RecordKey(g.ID), []byte(`{"name":"no id"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := hub.Set(ctx, domain.RecordKey(g.ID), []byte(`{"id":"`+g.ID+`","name":"Renamed"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	u := nextUpdate(t, s, func(u Update) bool { return u.Game != nil && u.Game.Name == "Renamed" })
	if u.Game.Phase != domain.PhaseSubmission || u.Game.Participants == nil {
		t.Fatalf("partial record not defaulted: %+v", u.Game)
	}
}

func TestSession_CloseEndsUpdates(t *testing.T) {
	hub := newTestHub(t)
	s, err := Open(context.Background(), hub, "g", testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	for range s.Updates() {
	}
	if _, err := s.Wait(context.Background()); err != nil && !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("unexpected Wait error %v", err)
	}
}

// scriptedStore hands snapshots to its subscriber one at a time and echoes
// every write to it before Set returns, the order a websocket server uses.
type scriptedStore struct {
	snapshots chan store.Snapshot
	failSet   error
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{snapshots: make(chan store.Snapshot)}
}

func (s *scriptedStore) Subscribe(ctx context.Context, key string) (<-chan store.Snapshot, error) {
	return s.snapshots, nil
}

func (s *scriptedStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSet != nil {
		return s.failSet
	}

	select {
	case s.snapshots <- store.Snapshot{Key: key, Value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver sends g as a remote change and returns once the session took it
func (s *scriptedStore) deliver(t *testing.T, g *domain.Game) {
	t.Helper()

	data, err := domain.EncodeGame(g)
	if err != nil {
		t.Fatalf("EncodeGame: %v", err)
	}
	select {
	case s.snapshots <- store.Snapshot{Key: domain.RecordKey(g.ID), Value: data}:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not take the snapshot")
	}
}

// openScripted opens a session on st and resolves it with g
func openScripted(t *testing.T, st *scriptedStore, g *domain.Game) *Session {
	t.Helper()

	s := openSession(t, st, g.ID)
	// Registered after openSession so the channel closes before Close waits
	t.Cleanup(func() { close(st.snapshots) })

	st.deliver(t, g)
	waitGame(t, s)
	return s
}

func TestSession_EchoBeforeAckThenStaleWriter(t *testing.T) {
	st := newScriptedStore()
	ctx := context.Background()

	base := domain.NewGame("g1", "Fiesta", "creator")
	base.Version = 1
	s := openScripted(t, st, base)

	for _, name := range []string{"Ana", "Alba"} {
		if _, err := s.Apply(ctx, domain.AddParticipantMutation(name)); err != nil {
			t.Fatalf("Apply %s: %v", name, err)
		}
	}

	// Another client publishes from the version it last saw
	stale := domain.AddParticipant(base, "Bea")
	stale.Version = 2
	st.deliver(t, stale)

	u := nextUpdate(t, s, func(u Update) bool {
		return u.Game != nil && len(u.Game.Participants) == 1 && u.Game.Participants[0].Name == "Bea"
	})
	if u.Game.Version != 2 {
		t.Fatalf("expected the stored version, got %d", u.Game.Version)
	}

	current, _ := s.Current()
	if len(current.Participants) != 1 || current.Participants[0].Name != "Bea" {
		t.Fatalf("session kept its overwritten game: %+v", current.Participants)
	}
	if lost := s.Stats().LostUpdates; lost != 1 {
		t.Fatalf("expected one lost update, got %d", lost)
	}

	// The next local change builds on what the store holds
	if _, err := s.Apply(ctx, domain.AddParticipantMutation("Carla")); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	current, _ = s.Current()
	if len(current.Participants) != 2 || current.Version != 3 {
		t.Fatalf("unexpected game after overwrite: %+v", current)
	}
}

func TestSession_OlderSnapshotBeforeEchoKeepsLocalGame(t *testing.T) {
	st := newScriptedStore()

	base := domain.NewGame("g1", "Fiesta", "creator")
	base.Version = 1
	s := openScripted(t, st, base)

	// A write whose echo has not come back yet
	next := domain.AddParticipant(base, "Ana")
	next.Version = 2
	data, err := domain.EncodeGame(next)
	if err != nil {
		t.Fatalf("EncodeGame: %v", err)
	}
	s.beginWrite(next, data)

	older := base.Clone()
	older.Name = "Old name"
	st.deliver(t, older)
	nextUpdate(t, s, func(u Update) bool { return u.Game != nil && u.Game.Name == "Old name" })

	if current, _ := s.Current(); len(current.Participants) != 1 {
		t.Fatalf("older snapshot replaced the local write: %+v", current)
	}

	st.deliver(t, next)
	nextUpdate(t, s, func(u Update) bool { return u.Game != nil && u.Game.Version == 2 })
	if s.Stats().LostUpdates != 0 {
		t.Fatal("own echo counted as lost")
	}
	if current, _ := s.Current(); current.Name != "Fiesta" || len(current.Participants) != 1 {
		t.Fatalf("unexpected game after echo: %+v", current)
	}
}

func TestSession_FailedPublishRestoresGame(t *testing.T) {
	st := newScriptedStore()
	ctx := context.Background()

	base := domain.NewGame("g1", "Fiesta", "creator")
	base.Version = 1
	s := openScripted(t, st, base)

	st.failSet = store.ErrClosed
	applied, err := s.Apply(ctx, domain.AddParticipantMutation("Ana"))
	if applied || !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Apply = %v, %v", applied, err)
	}

	current, _ := s.Current()
	if len(current.Participants) != 0 || current.Version != 1 {
		t.Fatalf("failed write left a local game: %+v", current)
	}

	st.failSet = nil
	if _, err := s.Apply(ctx, domain.AddParticipantMutation("Ana")); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if current, _ := s.Current(); len(current.Participants) != 1 {
		t.Fatalf("retry not applied: %+v", current)
	}
}

func TestSession_OverWebsocketFollowsStaleWriter(t *testing.T) {
	hub := newTestHub(t)
	server := httptest.NewServer(ws.NewHandler(hub, testLogger()))
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial := func() *ws.RemoteStore {
		rs, err := ws.Dial(ctx, url, testLogger())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		t.Cleanup(func() { rs.Close() })
		return rs
	}
	storeA, storeB := dial(), dial()

	g, err := Create(ctx, storeA, "Fiesta", "creator")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a := openSession(t, storeA, g.ID)
	b := openSession(t, storeB, g.ID)
	waitGame(t, a)
	baseB := waitGame(t, b)

	for _, name := range []string{"Ana", "Alba"} {
		if _, err := a.Apply(ctx, domain.AddParticipantMutation(name)); err != nil {
			t.Fatalf("Apply %s: %v", name, err)
		}
	}
	nextUpdate(t, a, func(u Update) bool { return u.Game != nil && u.Game.Version == 3 })

	if err := b.Publish(ctx, domain.AddParticipant(baseB, "Bea")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	nextUpdate(t, a, func(u Update) bool {
		return u.Game != nil && len(u.Game.Participants) == 1 && u.Game.Participants[0].Name == "Bea"
	})
	current, _ := a.Current()
	if len(current.Participants) != 1 || current.Version != 2 {
		t.Fatalf("session disagrees with the store: %+v", current)
	}
	if lost := a.Stats().LostUpdates; lost != 1 {
		t.Fatalf("expected one lost update, got %d", lost)
	}
}
