package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"porramusical/internal/store"
)

const (
	// DefaultStaleRecordTimeout is how long an idle record stays in memory
	DefaultStaleRecordTimeout = 2 * time.Hour

	cleanupInterval = 10 * time.Minute
)

// Persister stores record values durably
type Persister interface {
	LoadRecord(ctx context.Context, key string) ([]byte, bool, error)
	SaveRecord(ctx context.Context, key string, value []byte) error
}

// Stats is a point-in-time view of the hub
type Stats struct {
	Records     int   `json:"records"`
	Subscribers int   `json:"subscribers"`
	Writes      int64 `json:"writes"`
}

// RecordHub is the in-process realtime store. It serves every record key,
// fans changes out to subscribers and writes through to an optional persister.
type RecordHub struct {
	records      map[string]*Record
	mu           sync.RWMutex
	persister    Persister
	staleTimeout time.Duration
	writes       atomic.Int64
	logger       *slog.Logger
	done         chan struct{}
	closeOnce    sync.Once
}

var _ store.Store = (*RecordHub)(nil)

// NewRecordHub creates a record hub. persister may be nil, in which case
// records live only in memory and only absent ones are evicted.
func NewRecordHub(persister Persister, staleTimeout time.Duration, logger *slog.Logger) *RecordHub {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleRecordTimeout
	}

	hub := &RecordHub{
		records:      make(map[string]*Record),
		persister:    persister,
		staleTimeout: staleTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}

	// Start cleanup goroutine
	go hub.cleanupLoop()

	return hub
}

// Subscribe implements store.Store
func (h *RecordHub) Subscribe(ctx context.Context, key string) (<-chan store.Snapshot, error) {
	for {
		record, err := h.record(ctx, key)
		if err != nil {
			return nil, err
		}

		ch, err := record.Subscribe(ctx)
		if errors.Is(err, store.ErrClosed) && !h.isClosed() {
			// Evicted between lookup and subscribe
			continue
		}
		return ch, err
	}
}

// Set implements store.Store
func (h *RecordHub) Set(ctx context.Context, key string, value []byte) error {
	if value != nil {
		value = append([]byte(nil), value...)
	}

	var save func(context.Context, []byte) error
	if h.persister != nil {
		save = func(ctx context.Context, v []byte) error {
			if err := h.persister.SaveRecord(ctx, key, v); err != nil {
				return fmt.Errorf("persist %s: %w", key, err)
			}
			return nil
		}
	}

	for {
		record, err := h.record(ctx, key)
		if err != nil {
			return err
		}

		err = record.Set(ctx, value, save)
		if errors.Is(err, store.ErrClosed) && !h.isClosed() {
			continue
		}
		if err != nil {
			h.logger.Warn("record write failed", "key", key, "error", err)
			return err
		}

		h.writes.Add(1)
		return nil
	}
}

// Get returns the current value of key, nil when absent.
// A key nobody subscribed to is read without being loaded into memory.
func (h *RecordHub) Get(ctx context.Context, key string) ([]byte, error) {
	if h.isClosed() {
		return nil, store.ErrClosed
	}

	h.mu.RLock()
	record, ok := h.records[key]
	h.mu.RUnlock()
	if ok {
		return record.Value(), nil
	}

	if h.persister == nil {
		return nil, nil
	}
	value, found, err := h.persister.LoadRecord(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return value, nil
}

// record returns the in-memory record for key, loading it on first use
func (h *RecordHub) record(ctx context.Context, key string) (*Record, error) {
	if h.isClosed() {
		return nil, store.ErrClosed
	}

	h.mu.RLock()
	record, ok := h.records[key]
	h.mu.RUnlock()
	if ok {
		return record, nil
	}

	var value []byte
	if h.persister != nil {
		stored, found, err := h.persister.LoadRecord(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		if found {
			value = stored
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.isClosed() {
		return nil, store.ErrClosed
	}
	// Another caller may have loaded it meanwhile
	if record, ok := h.records[key]; ok {
		return record, nil
	}

	record = NewRecord(key, value, h.logger)
	h.records[key] = record
	h.logger.Debug("record loaded", "key", key, "exists", value != nil)

	return record, nil
}

// Stats returns record, subscriber and write counters
func (h *RecordHub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{Records: len(h.records), Writes: h.writes.Load()}
	for _, record := range h.records {
		stats.Subscribers += record.SubscriberCount()
	}
	return stats
}

// Close shuts down the hub and all records
func (h *RecordHub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()

		for _, record := range h.records {
			record.Close()
		}
		h.records = make(map[string]*Record)
	})
}

func (h *RecordHub) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// cleanupLoop periodically evicts idle records
func (h *RecordHub) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.evictStaleRecords(time.Now())
		}
	}
}

// evictStaleRecords drops idle, unsubscribed records from memory.
// Without a persister memory is the only copy, so only absent keys are evicted.
func (h *RecordHub) evictStaleRecords(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := 0
	for key, record := range h.records {
		if record.SubscriberCount() > 0 || now.Sub(record.LastActive()) <= h.staleTimeout {
			continue
		}
		if h.persister == nil && record.Value() != nil {
			continue
		}
		record.Close()
		delete(h.records, key)
		evicted++
		h.logger.Info("stale record evicted", "key", key)
	}
	return evicted
}
