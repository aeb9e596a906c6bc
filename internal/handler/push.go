package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/model"
)

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, userID, endpoint, p256dh, authKey string) (*model.PushSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type PushHandler struct {
	subs     SubscriptionStore
	vapidKey string
	logger   *slog.Logger
}

func NewPushHandler(subs SubscriptionStore, vapidPublicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{subs: subs, vapidKey: vapidPublicKey, logger: logger}
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Subscribe handles POST /push/subscriptions. The body is the browser's
// PushSubscription.toJSON() output.
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, h.logger, apperr.Validation("endpoint, p256dh y auth requeridos."))
		return
	}

	sub, err := h.subs.CreateSubscription(r.Context(), userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudo guardar la suscripcion.", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"subscription": sub})
}

// List handles GET /push/subscriptions
func (h *PushHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudieron cargar las suscripciones.", err))
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": subs})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// Unsubscribe handles DELETE /push/subscriptions. Only the caller's own
// endpoints can be removed.
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req unsubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	subs, err := h.subs.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudieron cargar las suscripciones.", err))
		return
	}
	for _, s := range subs {
		if s.Endpoint != req.Endpoint {
			continue
		}
		if err := h.subs.DeleteByEndpoint(r.Context(), s.Endpoint); err != nil {
			writeError(w, h.logger, apperr.Upstream("No se pudo eliminar la suscripcion.", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, h.logger, apperr.NotFound("Suscripcion no encontrada."))
}

// VAPIDKey handles GET /push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"key": h.vapidKey})
}
