package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"porramusical/internal/store"
)

// ErrRemote is returned when the server rejects a request
var ErrRemote = errors.New("remote store error")

// RemoteStore is a store.Store backed by a store server over one WebSocket connection.
// Local subscriptions to the same key share one server subscription.
type RemoteStore struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu      sync.Mutex
	subs    map[string]map[*remoteSub]struct{}
	last    map[string]store.Snapshot
	pending map[string]chan error
	closed  bool
	err     error
	done    chan struct{}
}

var _ store.Store = (*RemoteStore)(nil)

type remoteSub struct {
	ch chan store.Snapshot
}

// Dial connects to a store server at url (ws:// or wss://)
func Dial(ctx context.Context, url string, logger *slog.Logger) (*RemoteStore, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMessageSize)

	rs := &RemoteStore{
		conn:    conn,
		logger:  logger,
		subs:    make(map[string]map[*remoteSub]struct{}),
		last:    make(map[string]store.Snapshot),
		pending: make(map[string]chan error),
		done:    make(chan struct{}),
	}

	go rs.readLoop()

	return rs, nil
}

// Subscribe implements store.Store
func (rs *RemoteStore) Subscribe(ctx context.Context, key string) (<-chan store.Snapshot, error) {
	sub := &remoteSub{ch: make(chan store.Snapshot, 1)}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return nil, rs.closedErr()
	}
	subs, shared := rs.subs[key]
	if !shared {
		subs = make(map[*remoteSub]struct{})
		rs.subs[key] = subs
	}
	subs[sub] = struct{}{}
	if snap, ok := rs.last[key]; ok {
		store.Offer(sub.ch, snap)
	}
	rs.mu.Unlock()

	if !shared {
		if err := rs.write(MsgSubscribe, "", KeyPayload{Key: key}); err != nil {
			rs.removeSub(key, sub)
			return nil, err
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			rs.removeSub(key, sub)
		case <-rs.done:
		}
	}()

	return sub.ch, nil
}

// removeSub closes a local subscription and drops the server subscription
// once no local subscriber is left
func (rs *RemoteStore) removeSub(key string, sub *remoteSub) {
	rs.mu.Lock()
	subs, ok := rs.subs[key]
	if !ok {
		rs.mu.Unlock()
		return
	}
	if _, ok := subs[sub]; !ok {
		rs.mu.Unlock()
		return
	}
	delete(subs, sub)
	close(sub.ch)

	last := len(subs) == 0
	if last {
		delete(rs.subs, key)
		delete(rs.last, key)
	}
	closed := rs.closed
	rs.mu.Unlock()

	if last && !closed {
		if err := rs.write(MsgUnsubscribe, "", KeyPayload{Key: key}); err != nil {
			rs.logger.Debug("unsubscribe failed", "key", key, "error", err)
		}
	}
}

// Set implements store.Store. It returns once the server acknowledged the write.
func (rs *RemoteStore) Set(ctx context.Context, key string, value []byte) error {
	if value != nil && !json.Valid(value) {
		return fmt.Errorf("set %s: value is not a JSON document", key)
	}

	requestID := strconv.FormatUint(rs.nextID.Add(1), 10)
	result := make(chan error, 1)

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return rs.closedErr()
	}
	rs.pending[requestID] = result
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		delete(rs.pending, requestID)
		rs.mu.Unlock()
	}()

	if err := rs.write(MsgSet, requestID, SetPayload{Key: key, Value: encodeValue(value)}); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("set %s: %w", key, ctx.Err())
	}
}

// Close closes the connection. Open subscriptions are closed and pending writes fail.
func (rs *RemoteStore) Close() error {
	rs.writeMu.Lock()
	rs.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = rs.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	rs.writeMu.Unlock()

	err := rs.conn.Close()
	rs.shutdown(store.ErrClosed)
	return err
}

// Done is closed when the connection is gone
func (rs *RemoteStore) Done() <-chan struct{} {
	return rs.done
}

// write sends one client message
func (rs *RemoteStore) write(msgType MessageType, requestID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	data, err := json.Marshal(ClientMessage{Type: msgType, RequestID: requestID, Payload: raw})
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}

	rs.writeMu.Lock()
	defer rs.writeMu.Unlock()

	rs.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := rs.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	return nil
}

// readLoop dispatches server messages until the connection drops
func (rs *RemoteStore) readLoop() {
	for {
		_, data, err := rs.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				rs.logger.Warn("store connection lost", "error", err)
			}
			rs.shutdown(fmt.Errorf("%w: %v", store.ErrClosed, err))
			return
		}

		// The server batches queued messages into one frame, newline separated
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			rs.dispatch(line)
		}
	}
}

func (rs *RemoteStore) dispatch(line []byte) {
	var msg serverEnvelope
	if err := json.Unmarshal(line, &msg); err != nil {
		rs.logger.Warn("invalid server message", "error", err)
		return
	}

	switch msg.Type {
	case MsgSnapshot:
		var payload SnapshotPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			rs.logger.Warn("invalid snapshot", "error", err)
			return
		}
		snap := store.Snapshot{Key: payload.Key, Value: decodeValue(payload.Value)}

		rs.mu.Lock()
		subs, ok := rs.subs[payload.Key]
		if ok {
			rs.last[payload.Key] = snap
			for sub := range subs {
				store.Offer(sub.ch, snap)
			}
		}
		rs.mu.Unlock()
	case MsgAck:
		rs.resolve(msg.RequestID, nil)
	case MsgError:
		var payload ErrorPayload
		_ = json.Unmarshal(msg.Payload, &payload)
		err := fmt.Errorf("%w: %s: %s", ErrRemote, payload.Code, payload.Message)
		if msg.RequestID == "" {
			rs.logger.Warn("store server error", "code", payload.Code, "message", payload.Message)
			return
		}
		rs.resolve(msg.RequestID, err)
	case MsgPong:
	default:
		rs.logger.Debug("unknown server message", "type", msg.Type)
	}
}

func (rs *RemoteStore) resolve(requestID string, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if result, ok := rs.pending[requestID]; ok {
		delete(rs.pending, requestID)
		result <- err
	}
}

// shutdown releases every subscriber and pending write exactly once
func (rs *RemoteStore) shutdown(cause error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return
	}
	rs.closed = true
	rs.err = cause
	close(rs.done)

	for key, subs := range rs.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(rs.subs, key)
	}
	for id, result := range rs.pending {
		result <- cause
		delete(rs.pending, id)
	}
}

func (rs *RemoteStore) closedErr() error {
	if rs.err != nil {
		return rs.err
	}
	return store.ErrClosed
}
