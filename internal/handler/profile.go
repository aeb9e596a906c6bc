package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/store"
)

type ProfileStore interface {
	Register(ctx context.Context, userID, email string, alias *string) (*model.Profile, bool, error)
	SetExpoPushToken(ctx context.Context, userID, token string) error
}

type ProfileHandler struct {
	profiles ProfileStore
	logger   *slog.Logger
}

func NewProfileHandler(ps ProfileStore, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: ps, logger: logger}
}

type registerRequest struct {
	Alias *string `json:"alias"`
}

// Register handles POST /profiles. It creates the caller's profile on first
// sign-in and returns the existing one afterwards.
func (h *ProfileHandler) Register(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Alias != nil {
		alias := strings.TrimSpace(*req.Alias)
		req.Alias = &alias
		if alias == "" {
			req.Alias = nil
		}
	}

	profile, created, err := h.profiles.Register(r.Context(), ac.UserID, ac.Email, req.Alias)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudo crear el perfil.", err))
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("profile registered", "user_id", ac.UserID)
	}
	writeJSON(w, status, map[string]any{"profile": profile})
}

type pushTokenRequest struct {
	Token any `json:"token"`
}

// PushToken handles POST /profiles/push-token
func (h *ProfileHandler) PushToken(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req pushTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	token, ok := req.Token.(string)
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		writeError(w, h.logger, apperr.Validation("token requerido."))
		return
	}

	err := h.profiles.SetExpoPushToken(r.Context(), userID, token)
	if errors.Is(err, store.ErrPreconditionFailed) {
		writeError(w, h.logger, apperr.NotFound("Perfil no encontrado."))
		return
	}
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudo guardar el token.", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile": map[string]string{"user_id": userID, "expo_push_token": token},
	})
}
