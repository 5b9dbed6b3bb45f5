package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"porramusical/internal/store"
)

// Handler handles WebSocket connections
type Handler struct {
	store    store.Store
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a new WebSocket handler serving st
func NewHandler(st store.Store, logger *slog.Logger) *Handler {
	return &Handler{
		store: st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Game links are shared freely; any origin may subscribe
				return true
			},
		},
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, h.store, uuid.New().String(), h.logger)

	h.logger.Info("websocket connected", "clientID", client.ID(), "remoteAddr", r.RemoteAddr)

	client.Run()

	h.logger.Info("websocket disconnected", "clientID", client.ID())
}
