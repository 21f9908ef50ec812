package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
	"github.com/adrianva1983/whatsApp-bot/internal/session"
)

// SendTestRequest represents the send test request body.
type SendTestRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// OKResponse is the body of a plain successful request.
type OKResponse struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg,omitempty"`
}

// SendTest sends a text message to a phone number.
func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	if !h.session.Ready() {
		h.Error(w, http.StatusServiceUnavailable, "socket not started")
		return
	}

	var req SendTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if strings.TrimSpace(req.To) == "" || req.Text == "" {
		h.Error(w, http.StatusBadRequest, "missing fields {to, text}")
		return
	}

	jid := models.NumberToJID(req.To)
	if jid == "" {
		h.Error(w, http.StatusBadRequest, "invalid number")
		return
	}

	if err := h.session.SendText(r.Context(), jid, req.Text); err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			h.Error(w, http.StatusServiceUnavailable, "socket not started")
			return
		}
		h.logger.Error().Err(err).Str("to", jid).Msg("test send failed")
		h.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.JSON(w, http.StatusOK, OKResponse{OK: true})
}
