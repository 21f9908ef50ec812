package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Session is the part of the session machine the control surface drives.
type Session interface {
	State() models.SessionState
	Ready() bool
	SendText(ctx context.Context, to, text string) error
	Logout(ctx context.Context) error
}

// MessageBuffer is the per-sender message store.
type MessageBuffer interface {
	Get(key string, limit int) []models.BufferEntry
	Clear(key string)
}

// Pinger is a dependency reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	session Session
	buffer  MessageBuffer
	checks  map[string]Pinger
	logger  zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(session Session, buffer MessageBuffer, logger zerolog.Logger) *Handler {
	return &Handler{
		session: session,
		buffer:  buffer,
		checks:  make(map[string]Pinger),
		logger:  logger,
	}
}

// AddHealthCheck registers a dependency for the health endpoint.
func (h *Handler) AddHealthCheck(name string, p Pinger) {
	h.checks[name] = p
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, ErrorResponse{OK: false, Msg: message})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

// parseLimit reads the limit query value: clamped to 1..1000, default 50
// when absent or not a number.
func parseLimit(value string) int {
	if value == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultLimit
	}
	return max(1, min(maxLimit, n))
}
