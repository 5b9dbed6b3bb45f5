package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"porramusical/internal/store"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 256 * 1024

	// Size of the send channel buffer
	sendBufferSize = 256

	// Time allowed for a store write requested by the peer
	setTimeout = 10 * time.Second
)

// Client represents a WebSocket client connection
type Client struct {
	conn   *websocket.Conn
	store  store.Store
	id     string
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger
	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	subsMu sync.Mutex
	subs   map[string]*subscription
}

// subscription is one forwarded key; a replaced one stops forwarding
type subscription struct {
	cancel context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(conn *websocket.Conn, st store.Store, id string, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:   conn,
		store:  st,
		id:     id,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("clientID", id),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[string]*subscription),
	}
}

// ID returns the connection ID
func (c *Client) ID() string {
	return c.id
}

// Send queues a message for the write pump.
// A client that cannot keep up is disconnected, since dropping a snapshot
// could leave it on a stale value.
func (c *Client) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	select {
	case c.send <- data:
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		c.logger.Warn("send buffer full, closing connection")
		return c.Close()
	}
}

// Close closes the connection and cancels its subscriptions
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()
	close(c.done)
	return c.conn.Close()
}

// Run starts the client's read and write pumps
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps messages from the WebSocket connection
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming message from the client
func (c *Client) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", ErrCodeInvalidMessage, "Invalid message format")
		return
	}

	switch msg.Type {
	case MsgSubscribe:
		c.handleSubscribe(msg)
	case MsgUnsubscribe:
		c.handleUnsubscribe(msg)
	case MsgSet:
		c.handleSet(msg)
	case MsgPing:
		c.sendPong(msg.RequestID)
	default:
		c.sendError(msg.RequestID, ErrCodeInvalidMessage, "Unknown message type")
	}
}

// handleSubscribe starts forwarding snapshots of a key.
// Subscribing again to the same key restarts the subscription.
func (c *Client) handleSubscribe(msg ClientMessage) {
	var payload KeyPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Key == "" {
		c.sendError(msg.RequestID, ErrCodeInvalidMessage, "Key is required")
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	snapshots, err := c.store.Subscribe(ctx, payload.Key)
	if err != nil {
		cancel()
		c.logger.Warn("subscribe failed", "key", payload.Key, "error", err)
		c.sendError(msg.RequestID, errorCode(err), "Subscribe failed")
		return
	}

	sub := &subscription{cancel: cancel}

	c.subsMu.Lock()
	if previous, ok := c.subs[payload.Key]; ok {
		previous.cancel()
	}
	c.subs[payload.Key] = sub
	c.subsMu.Unlock()

	c.logger.Debug("subscribed", "key", payload.Key)

	go func() {
		for snap := range snapshots {
			c.forward(payload.Key, sub, snap)
		}
	}()
}

// forward sends a snapshot unless sub was replaced or removed meanwhile
func (c *Client) forward(key string, sub *subscription, snap store.Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if c.subs[key] != sub {
		return
	}
	c.Send(NewServerMessage(MsgSnapshot, "", &SnapshotPayload{
		Key:   snap.Key,
		Value: encodeValue(snap.Value),
	}))
}

// handleUnsubscribe stops forwarding snapshots of a key
func (c *Client) handleUnsubscribe(msg ClientMessage) {
	var payload KeyPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Key == "" {
		c.sendError(msg.RequestID, ErrCodeInvalidMessage, "Key is required")
		return
	}

	c.subsMu.Lock()
	if sub, ok := c.subs[payload.Key]; ok {
		sub.cancel()
		delete(c.subs, payload.Key)
	}
	c.subsMu.Unlock()
}

// handleSet writes a whole value and acknowledges it
func (c *Client) handleSet(msg ClientMessage) {
	var payload SetPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Key == "" {
		c.sendError(msg.RequestID, ErrCodeInvalidMessage, "Key is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, setTimeout)
	defer cancel()

	if err := c.store.Set(ctx, payload.Key, decodeValue(payload.Value)); err != nil {
		c.logger.Warn("set failed", "key", payload.Key, "error", err)
		c.sendError(msg.RequestID, errorCode(err), "Write failed")
		return
	}

	c.Send(NewServerMessage(MsgAck, msg.RequestID, nil))
}

// errorCode maps a store error to a wire error code
func errorCode(err error) string {
	switch {
	case errors.Is(err, store.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return ErrCodeStoreUnavailable
	default:
		return ErrCodeInternalError
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(requestID, code, message string) {
	payload := &ErrorPayload{
		Code:    code,
		Message: message,
	}

	msg := NewServerMessage(MsgError, requestID, payload)
	c.Send(msg)
}

// sendPong sends a pong message in response to ping
func (c *Client) sendPong(requestID string) {
	msg := NewServerMessage(MsgPong, requestID, nil)
	c.Send(msg)
}
