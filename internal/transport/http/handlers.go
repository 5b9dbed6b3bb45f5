package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"porramusical/internal/domain"
	"porramusical/internal/route"
	"porramusical/internal/syncer"
)

// qrSize is the edge of the share QR code in pixels
const qrSize = 320

// Response is a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateGameRequest is the body of POST /api/games
type CreateGameRequest struct {
	Name      string `json:"name"`
	CreatorID string `json:"creatorId"`
}

// CreateGameResponse is the response for game creation
type CreateGameResponse struct {
	Game      *domain.Game `json:"game"`
	ShareLink string       `json:"shareLink"`
}

// GetGameResponse is the response for getting a game
type GetGameResponse struct {
	Game       *domain.Game        `json:"game"`
	NextPhase  domain.Phase        `json:"nextPhase,omitempty"`
	CanAdvance bool                `json:"canAdvance"`
	Missing    domain.Requirements `json:"missing"`
}

// ScoresResponse is the response for the scores endpoint
type ScoresResponse struct {
	Live  []domain.Score `json:"live"`
	Final []domain.Score `json:"final,omitempty"`
}

// HealthResponse is the response for health check
type HealthResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for stats endpoint
type StatsResponse struct {
	Records     int   `json:"records"`
	Subscribers int   `json:"subscribers"`
	Writes      int64 `json:"writes"`
}

// handleCreateGame handles POST /api/games
func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	game, err := syncer.Create(r.Context(), s.hub, req.Name, req.CreatorID)
	if err != nil {
		if errors.Is(err, syncer.ErrEmptyGameName) {
			s.sendError(w, http.StatusBadRequest, "MISSING_NAME", "Game name is required")
			return
		}
		s.logger.Error("create game failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "CREATION_FAILED", "Failed to create game")
		return
	}

	s.logger.Info("game created", "gameID", game.ID)

	s.sendSuccess(w, &CreateGameResponse{
		Game:      game,
		ShareLink: route.ShareLink(s.baseURL(r), game.ID),
	})
}

// handleGetGame handles GET /api/games/:id
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	game, ok := s.loadGame(w, r, ps.ByName("id"))
	if !ok {
		return
	}

	resp := &GetGameResponse{Game: game, Missing: domain.Readiness(game)}
	if next, ok := game.Phase.Next(); ok {
		resp.NextPhase = next
		resp.CanAdvance = domain.CanTransition(game, next)
	}

	s.sendSuccess(w, resp)
}

// handleGetScores handles GET /api/games/:id/scores
func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	game, ok := s.loadGame(w, r, ps.ByName("id"))
	if !ok {
		return
	}

	resp := &ScoresResponse{Live: domain.LiveScores(game)}
	if game.Phase == domain.PhaseResults {
		resp.Final = domain.FinalScores(game)
	}

	s.sendSuccess(w, resp)
}

// handleQR handles GET /api/games/:id/qr with a PNG of the share link
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	game, ok := s.loadGame(w, r, ps.ByName("id"))
	if !ok {
		return
	}

	png, err := qrcode.Encode(route.ShareLink(s.baseURL(r), game.ID), qrcode.Medium, qrSize)
	if err != nil {
		s.logger.Error("qr generation failed", "gameID", game.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "QR generation failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// handleHealth handles GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.sendSuccess(w, &HealthResponse{
		Status: "ok",
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.hub.Stats()
	s.sendSuccess(w, &StatsResponse{
		Records:     stats.Records,
		Subscribers: stats.Subscribers,
		Writes:      stats.Writes,
	})
}

// loadGame reads and decodes a game, writing the error response on failure
func (s *Server) loadGame(w http.ResponseWriter, r *http.Request, gameID string) (*domain.Game, bool) {
	if gameID == "" {
		s.sendError(w, http.StatusBadRequest, "MISSING_GAME_ID", "Game ID is required")
		return nil, false
	}

	value, err := s.hub.Get(r.Context(), domain.RecordKey(gameID))
	if err != nil {
		s.logger.Error("load game failed", "gameID", gameID, "error", err)
		s.sendError(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Store unavailable")
		return nil, false
	}

	game, err := domain.DecodeGame(value)
	switch {
	case errors.Is(err, domain.ErrGameNotFound):
		s.sendError(w, http.StatusNotFound, "GAME_NOT_FOUND", "Game not found")
		return nil, false
	case err != nil:
		s.logger.Warn("malformed game record", "gameID", gameID, "error", err)
		s.sendError(w, http.StatusUnprocessableEntity, "INVALID_RECORD", "Game record is malformed")
		return nil, false
	}

	return game, true
}

// baseURL returns the public base URL, derived from the request when not configured
func (s *Server) baseURL(r *http.Request) string {
	if s.config.Server.PublicURL != "" {
		return s.config.Server.PublicURL
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// sendSuccess sends a successful JSON response
func (s *Server) sendSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&Response{
		Success: true,
		Data:    data,
	})
}

// sendError sends an error JSON response
func (s *Server) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&Response{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}
