package handler

import (
	"log/slog"
	"net/http"

	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/feed"
)

type FeedHandler struct {
	feed   *feed.Service
	logger *slog.Logger
}

func NewFeedHandler(f *feed.Service, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feed: f, logger: logger}
}

// List handles GET /home/notifications
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	groups, err := h.feed.List(r.Context(), ac.CoupleID, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if groups == nil {
		groups = []feed.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": groups})
}

type seenRequest struct {
	IDs []string `json:"ids"`
}

// Seen handles POST /home/notifications/seen
func (h *FeedHandler) Seen(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req seenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	n, err := h.feed.MarkSeen(r.Context(), ac.CoupleID, ac.UserID, req.IDs)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
