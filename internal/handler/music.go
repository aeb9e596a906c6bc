package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/music"
)

type MusicHandler struct {
	music  *music.Service
	logger *slog.Logger
}

func NewMusicHandler(m *music.Service, logger *slog.Logger) *MusicHandler {
	return &MusicHandler{music: m, logger: logger}
}

// Search handles GET /music/search?q=
func (h *MusicHandler) Search(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.music.Search(r.Context(), r.URL.Query().Get("q"))
	switch {
	case errors.Is(err, music.ErrEmptyQuery):
		writeError(w, h.logger, apperr.Validation("Query requerida."))
		return
	case errors.Is(err, music.ErrNotConfigured):
		writeError(w, h.logger, apperr.Upstream("Spotify no configurado.", err))
		return
	case err != nil:
		writeError(w, h.logger, apperr.Upstream("No se pudo buscar en Spotify.", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": tracks})
}
