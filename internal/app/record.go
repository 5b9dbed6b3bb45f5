package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"porramusical/internal/store"
)

// eventQueueSize bounds the number of pending events per record
const eventQueueSize = 100

type eventKind int

const (
	eventChanged eventKind = iota
	eventSubscribed
	eventUnsubscribed
)

// recordEvent is processed in order by the record's event loop
type recordEvent struct {
	kind  eventKind
	value []byte
	sub   *subscriber
}

// subscriber holds at most one undelivered snapshot
type subscriber struct {
	ch chan store.Snapshot
}

// Record wraps one key with its current value and its subscribers
type Record struct {
	key     string
	value   []byte
	logger  *slog.Logger
	writeMu sync.Mutex

	mu     sync.RWMutex
	closed bool

	lastActive  atomic.Int64
	subscribers atomic.Int32

	events chan recordEvent
	done   chan struct{}
}

// NewRecord creates a record holding value and starts its event loop
func NewRecord(key string, value []byte, logger *slog.Logger) *Record {
	r := &Record{
		key:    key,
		value:  value,
		logger: logger,
		events: make(chan recordEvent, eventQueueSize),
		done:   make(chan struct{}),
	}
	r.touch()

	go r.eventLoop(value)

	return r
}

// Key returns the record key
func (r *Record) Key() string {
	return r.key
}

// Value returns the current value, nil when absent
func (r *Record) Value() []byte {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.value
}

// SubscriberCount returns the number of live subscriptions
func (r *Record) SubscriberCount() int {
	return int(r.subscribers.Load())
}

// LastActive returns when the record was last written or subscribed to
func (r *Record) LastActive() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

func (r *Record) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

// Subscribe registers a subscriber that receives the current value first.
// The returned channel is closed when ctx ends or the record is closed.
func (r *Record) Subscribe(ctx context.Context) (<-chan store.Snapshot, error) {
	sub := &subscriber{ch: make(chan store.Snapshot, 1)}

	// Touched first so the record is not evicted before the event is handled
	r.touch()
	if err := r.queueEvent(ctx, recordEvent{kind: eventSubscribed, sub: sub}); err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			// Best effort; on close the event loop releases every subscriber
			_ = r.queueEvent(context.Background(), recordEvent{kind: eventUnsubscribed, sub: sub})
		case <-r.done:
		}
	}()

	return sub.ch, nil
}

// Set persists the value with save, when given, and then broadcasts it.
// Nothing is broadcast if saving fails.
func (r *Record) Set(ctx context.Context, value []byte, save func(context.Context, []byte) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if save != nil {
		if err := save(ctx, value); err != nil {
			return err
		}
	}

	r.value = value
	r.touch()
	return r.queueEvent(ctx, recordEvent{kind: eventChanged, value: value})
}

// queueEvent adds an event to the record queue.
// Change events must not be dropped, so a full queue applies backpressure to the writer.
func (r *Record) queueEvent(ctx context.Context, ev recordEvent) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return store.ErrClosed
	}

	select {
	case r.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// eventLoop applies subscription changes and broadcasts values in queue order
func (r *Record) eventLoop(initial []byte) {
	subs := make(map[*subscriber]struct{})
	current := initial

	handle := func(ev recordEvent) {
		switch ev.kind {
		case eventChanged:
			current = ev.value
			r.broadcast(subs, current)
		case eventSubscribed:
			subs[ev.sub] = struct{}{}
			r.subscribers.Add(1)
			store.Offer(ev.sub.ch, store.Snapshot{Key: r.key, Value: current})
		case eventUnsubscribed:
			if _, ok := subs[ev.sub]; ok {
				delete(subs, ev.sub)
				r.subscribers.Add(-1)
				close(ev.sub.ch)
			}
		}
	}

	for {
		select {
		case <-r.done:
			// Close waited for in-flight senders, so the queue can be drained safely
			for {
				select {
				case ev := <-r.events:
					if ev.kind == eventSubscribed {
						subs[ev.sub] = struct{}{}
					}
				default:
					for sub := range subs {
						close(sub.ch)
					}
					r.subscribers.Store(0)
					return
				}
			}
		case ev := <-r.events:
			handle(ev)
		}
	}
}

// broadcast delivers the value to every subscriber
func (r *Record) broadcast(subs map[*subscriber]struct{}, value []byte) {
	snap := store.Snapshot{Key: r.key, Value: value}
	for sub := range subs {
		store.Offer(sub.ch, snap)
	}
	r.logger.Debug("record broadcast", "key", r.key, "subscribers", len(subs), "bytes", len(value))
}

// Close shuts down the record and closes all subscriber channels
func (r *Record) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
}
