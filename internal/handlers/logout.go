package handlers

import (
	"context"
	"net/http"
)

// Logout unlinks the account and starts a new pairing. The sequence keeps
// running if the client goes away.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(context.WithoutCancel(r.Context())); err != nil {
		h.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.JSON(w, http.StatusOK, OKResponse{OK: true, Msg: "session closed, generating a new QR code"})
}
