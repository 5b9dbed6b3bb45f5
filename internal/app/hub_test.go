package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"porramusical/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memPersister struct {
	mu      sync.Mutex
	values  map[string][]byte
	saveErr error
	saves   int
}

func newMemPersister() *memPersister {
	return &memPersister{values: make(map[string][]byte)}
}

func (p *memPersister) LoadRecord(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *memPersister) SaveRecord(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saveErr != nil {
		return p.saveErr
	}
	p.saves++
	p.values[key] = value
	return nil
}

func newTestHub(t *testing.T, p Persister) *RecordHub {
	t.Helper()
	hub := NewRecordHub(p, time.Minute, testLogger())
	t.Cleanup(hub.Close)
	return hub
}

func receive(t *testing.T, ch <-chan store.Snapshot) store.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return store.Snapshot{}
}

func TestRecordHub_SubscribeAbsentThenSet(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()

	ch, err := hub.Subscribe(ctx, "games/g1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if snap := receive(t, ch); snap.Exists() {
		t.Fatalf("expected absent first snapshot, got %q", snap.Value)
	}

	if err := hub.Set(ctx, "games/g1", []byte(`{"id":"g1"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	snap := receive(t, ch)
	if snap.Key != "games/g1" || string(snap.Value) != `{"id":"g1"}` {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestRecordHub_SubscribeSeesCurrentValue(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()

	if err := hub.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ch, err := hub.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if snap := receive(t, ch); string(snap.Value) != "v1" {
		t.Fatalf("expected current value v1, got %q", snap.Value)
	}
}

func TestRecordHub_SlowSubscriberGetsLatest(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()

	ch, err := hub.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, v := range []string{"1", "2", "3", "4", "5"} {
		if err := hub.Set(ctx, "k", []byte(v)); err != nil {
			t.Fatalf("Set %s: %v", v, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if string(snap.Value) == "5" {
				return
			}
		case <-deadline:
			t.Fatal("latest value never delivered")
		}
	}
}

func TestRecordHub_CancelClosesSubscription(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	receive(t, ch)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestRecordHub_CloseClosesSubscriptions(t *testing.T) {
	hub := NewRecordHub(nil, time.Minute, testLogger())

	ch, err := hub.Subscribe(context.Background(), "k")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	receive(t, ch)
	hub.Close()

	for range ch {
	}

	if err := hub.Set(context.Background(), "k", []byte("x")); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRecordHub_PersistsBeforeBroadcast(t *testing.T) {
	p := newMemPersister()
	hub := newTestHub(t, p)
	ctx := context.Background()

	if err := hub.Set(ctx, "games/g1", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if string(p.values["games/g1"]) != "v1" {
		t.Fatalf("value not persisted: %q", p.values["games/g1"])
	}

	ch, err := hub.Subscribe(ctx, "games/g1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	receive(t, ch)

	p.saveErr = errors.New("disk full")
	if err := hub.Set(ctx, "games/g1", []byte("v2")); err == nil {
		t.Fatal("expected persistence error")
	}

	select {
	case snap := <-ch:
		t.Fatalf("failed write was broadcast: %q", snap.Value)
	case <-time.After(100 * time.Millisecond):
	}

	got, err := hub.Get(ctx, "games/g1")
	if err != nil || string(got) != "v1" {
		t.Fatalf("expected v1 after failed write, got %q, %v", got, err)
	}
}

func TestRecordHub_LoadsFromPersister(t *testing.T) {
	p := newMemPersister()
	p.values["games/old"] = []byte("stored")
	hub := newTestHub(t, p)

	got, err := hub.Get(context.Background(), "games/old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "stored" {
		t.Fatalf("expected stored value, got %q", got)
	}
}

func TestRecordHub_GetAbsentKeyLoadsNothing(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		got, err := hub.Get(ctx, fmt.Sprintf("games/missing-%d", i))
		if err != nil || got != nil {
			t.Fatalf("Get = %q, %v", got, err)
		}
	}
	if n := hub.Stats().Records; n != 0 {
		t.Fatalf("absent keys were loaded into %d records", n)
	}
}

func TestRecordHub_MemoryOnlyEvictsAbsentRecords(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()

	if err := hub.Set(ctx, "games/kept", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	for i := 0; i < 10; i++ {
		ch, err := hub.Subscribe(subCtx, fmt.Sprintf("games/missing-%d", i))
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		receive(t, ch)
	}

	// Subscribed records stay however idle they are
	if n := hub.evictStaleRecords(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Fatalf("evicted %d subscribed records", n)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Stats().Subscribers != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriptions not released")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if n := hub.evictStaleRecords(time.Now().Add(24 * time.Hour)); n != 10 {
		t.Fatalf("expected 10 evictions, got %d", n)
	}

	got, err := hub.Get(ctx, "games/kept")
	if err != nil || string(got) != "v" {
		t.Fatalf("memory-only value lost: %q, %v", got, err)
	}
}

func TestRecordHub_EvictsIdleRecordsWithPersister(t *testing.T) {
	ctx := context.Background()

	p := newMemPersister()
	hub := newTestHub(t, p)
	if err := hub.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if n := hub.evictStaleRecords(time.Now()); n != 0 {
		t.Fatalf("fresh record evicted")
	}
	if n := hub.evictStaleRecords(time.Now().Add(time.Hour)); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if hub.Stats().Records != 0 {
		t.Fatalf("unexpected stats %+v", hub.Stats())
	}

	// Evicted records reload from the persister
	got, err := hub.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected reload, got %q, %v", got, err)
	}
}

func TestRecordHub_Stats(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()

	ch, err := hub.Subscribe(ctx, "a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	receive(t, ch)
	if err := hub.Set(ctx, "b", []byte("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	stats := hub.Stats()
	if stats.Records != 2 || stats.Subscribers != 1 || stats.Writes != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
