package handler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/cache"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/push"
	"github.com/luckylove/server/internal/websocket"
)

type MessageStore interface {
	Create(ctx context.Context, coupleID, authorID, text string) (*model.Message, error)
	ListByCouple(ctx context.Context, coupleID string) ([]model.Message, error)
}

type MessageHandler struct {
	messages MessageStore
	activity ActivityRecorder
	notifier PartnerNotifier
	hub      Broadcaster
	cache    cache.Cache
	logger   *slog.Logger
	now      func() time.Time
	pick     func(n int) int
}

func NewMessageHandler(ms MessageStore, activity ActivityRecorder, notifier PartnerNotifier, hub Broadcaster, c cache.Cache, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		messages: ms,
		activity: activity,
		notifier: notifier,
		hub:      hub,
		cache:    c,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		pick:     rand.IntN,
	}
}

type messageRequest struct {
	Text string `json:"text"`
}

// Create handles POST /home/messages
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, h.logger, apperr.Validation("text requerido."))
		return
	}

	msg, err := h.messages.Create(r.Context(), ac.CoupleID, ac.UserID, req.Text)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudo enviar el mensaje.", err))
		return
	}

	h.activity.Record(r.Context(), ac.CoupleID, ac.UserID, model.ActionCreateMessage, "message", msg.ID, "Envio un mensaje.")
	if h.notifier != nil {
		h.notifier.NotifyPartner(ac.CoupleID, ac.UserID, push.Payload{
			Title: "Nuevo mensaje",
			Body:  "Tu pareja envio un mensaje.",
			Data:  map[string]any{"type": "message", "id": msg.ID},
		})
	}
	if h.hub != nil {
		h.hub.Broadcast(ac.CoupleID, websocket.NewMessage("message", "created", msg.ID, nil))
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

// List handles GET /home/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.messages.ListByCouple(r.Context(), auth.CoupleID(r.Context()))
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudieron cargar los mensajes.", err))
		return
	}
	if items == nil {
		items = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Daily handles GET /home/daily-message. The pick is stable for the couple
// until the UTC day ends.
func (h *MessageHandler) Daily(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	coupleID := auth.CoupleID(ctx)
	now := h.now()
	key := "daily-message:" + coupleID + ":" + now.Format(time.DateOnly)

	var cached model.Message
	ok, err := cache.GetJSON(ctx, h.cache, key, &cached)
	if err != nil {
		h.logger.Warn("read daily message cache", "error", err)
	}
	if ok {
		writeJSON(w, http.StatusOK, map[string]any{"message": cached})
		return
	}

	items, err := h.messages.ListByCouple(ctx, coupleID)
	if err != nil {
		writeError(w, h.logger, apperr.Upstream("No se pudieron cargar los mensajes.", err))
		return
	}
	if len(items) == 0 {
		writeError(w, h.logger, apperr.NotFound("No hay mensajes disponibles."))
		return
	}

	chosen := items[h.pick(len(items))]
	midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	if err := cache.SetJSON(ctx, h.cache, key, chosen, midnight.Sub(now)); err != nil {
		h.logger.Warn("write daily message cache", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": chosen})
}
