package store

import "testing"

func TestOfferReplacesPendingSnapshot(t *testing.T) {
	ch := make(chan Snapshot, 1)

	Offer(ch, Snapshot{Key: "k", Value: []byte("1")})
	Offer(ch, Snapshot{Key: "k", Value: []byte("2")})

	snap := <-ch
	if string(snap.Value) != "2" {
		t.Fatalf("expected latest snapshot, got %q", snap.Value)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %q", extra.Value)
	default:
	}
}

func TestSnapshotExists(t *testing.T) {
	if (Snapshot{Key: "k"}).Exists() {
		t.Fatal("nil value should be absent")
	}
	if !(Snapshot{Key: "k", Value: []byte{}}).Exists() {
		t.Fatal("empty value should exist")
	}
}

func TestOfferAnyValue(t *testing.T) {
	ch := make(chan int, 1)

	for i := 1; i <= 3; i++ {
		Offer(ch, i)
	}

	if got := <-ch; got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}
