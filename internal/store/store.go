// Package store defines the realtime key-value contract game records are replicated through.
package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a store that has been shut down
var ErrClosed = errors.New("store closed")

// Snapshot is the value of a key at one point in time.
// A nil Value means the key is absent.
type Snapshot struct {
	Key   string
	Value []byte
}

// Exists reports whether the key held a value
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Store is a realtime key-value store with whole-value writes.
//
// Subscribe delivers the current value first and then one snapshot per change.
// Deliveries to a slow subscriber may be coalesced, but the latest snapshot is
// always delivered. The channel is closed when ctx ends or the store shuts down.
//
// Set replaces the value of key. Concurrent writers overwrite each other.
type Store interface {
	Subscribe(ctx context.Context, key string) (<-chan Snapshot, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Offer hands v to a subscriber channel with a buffer of one without blocking.
// An undelivered older value is replaced, so the latest one always wins.
// ch must have a single sender.
func Offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
