package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/adrianva1983/whatsApp-bot/internal/models"
	"github.com/adrianva1983/whatsApp-bot/internal/normalize"
)

// MessagesResponse represents the buffered messages of one number.
type MessagesResponse struct {
	OK     bool   `json:"ok"`
	Number string `json:"number"`
	Count  int    `json:"count"`
	Data   []any  `json:"data"`
}

// ClearResponse represents the clear messages response.
type ClearResponse struct {
	OK      bool   `json:"ok"`
	Number  string `json:"number"`
	Cleared bool   `json:"cleared"`
}

// GetMessages returns the most recent messages of a sender.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	number := models.DigitsOnly(chi.URLParam(r, "number"))
	if number == "" {
		h.Error(w, http.StatusBadRequest, "invalid number")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"))
	raw := strings.EqualFold(r.URL.Query().Get("raw"), "1")

	entries := h.buffer.Get(number, limit)
	data := make([]any, 0, len(entries))
	for _, e := range entries {
		if !raw {
			data = append(data, e.Summary)
			continue
		}

		sparse, err := normalize.Sparse(e.Raw)
		if err != nil {
			h.logger.Error().Err(err).Str("id", e.Raw.Key.ID).Msg("failed to render raw message")
			h.Error(w, http.StatusInternalServerError, "failed to render raw message")
			return
		}
		data = append(data, sparse)
	}

	h.JSON(w, http.StatusOK, MessagesResponse{
		OK:     true,
		Number: number,
		Count:  len(data),
		Data:   data,
	})
}

// ClearMessages drops every buffered message of a sender.
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	number := models.DigitsOnly(chi.URLParam(r, "number"))
	if number == "" {
		h.Error(w, http.StatusBadRequest, "invalid number")
		return
	}

	h.buffer.Clear(number)

	h.JSON(w, http.StatusOK, ClearResponse{OK: true, Number: number, Cleared: true})
}
