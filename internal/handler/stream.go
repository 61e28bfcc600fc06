package handler

import (
	"net/http"

	"corebank/internal/events"
	"corebank/internal/middleware"
)

// StreamHandler upgrades dashboards onto the live ledger event feed.
type StreamHandler struct {
	hub *events.Hub
}

func NewStreamHandler(hub *events.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	h.hub.Serve(w, r, userID, middleware.IsAdmin(r.Context()))
}
