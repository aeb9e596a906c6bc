package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/ledger"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/push"
	"github.com/luckylove/server/internal/websocket"
)

type ChallengeHandler struct {
	ledger   *ledger.Service
	activity ActivityRecorder
	notifier PartnerNotifier
	hub      Broadcaster
	logger   *slog.Logger
}

func NewChallengeHandler(l *ledger.Service, activity ActivityRecorder, notifier PartnerNotifier, hub Broadcaster, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{ledger: l, activity: activity, notifier: notifier, hub: hub, logger: logger}
}

func (h *ChallengeHandler) broadcast(coupleID string, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(coupleID, msg)
	}
}

func (h *ChallengeHandler) notify(coupleID, actorID string, payload push.Payload) {
	if h.notifier != nil {
		h.notifier.NotifyPartner(coupleID, actorID, payload)
	}
}

// List handles GET /home/challenges
func (h *ChallengeHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.ListChallenges(r.Context(), auth.CoupleID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Challenge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type challengeRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Stars       any     `json:"stars"`
}

// Create handles POST /home/challenges
func (h *ChallengeHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req challengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	c, err := h.ledger.CreateChallenge(r.Context(), ac.CoupleID, ac.UserID, req.Title, req.Description, req.Stars)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.activity.Record(r.Context(), ac.CoupleID, ac.UserID, model.ActionCreateChallenge, "challenge", c.ID,
		"Creo un reto: "+c.Title+".")
	h.notify(ac.CoupleID, ac.UserID, push.Payload{
		Title: "Nuevo reto",
		Body:  "Tu pareja creo el reto: " + c.Title + ".",
		Data:  map[string]any{"type": "challenge", "id": c.ID},
	})
	h.broadcast(ac.CoupleID, websocket.NewMessage("challenge", "created", c.ID, nil))

	writeJSON(w, http.StatusCreated, map[string]any{"challenge": c})
}

// Transition returns the handler for POST /home/challenges/{id}/<op>.
func (h *ChallengeHandler) Transition(op ledger.Op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, _ := auth.FromContext(r.Context())

		c, err := h.ledger.Transition(r.Context(), ac.CoupleID, r.PathValue("id"), ac.UserID, op)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}

		h.broadcast(ac.CoupleID, websocket.NewMessage("challenge", string(op), c.ID, map[string]any{
			"status": c.Status,
		}))
		writeJSON(w, http.StatusOK, map[string]any{"challenge": c})
	}
}

// ListDaily handles GET /home/daily-challenges?date=YYYY-MM-DD
func (h *ChallengeHandler) ListDaily(w http.ResponseWriter, r *http.Request) {
	items, err := h.ledger.ListDaily(r.Context(), auth.CoupleID(r.Context()), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.DailyChallenge{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type dailyRequest struct {
	Title string `json:"title"`
	Stars any    `json:"stars"`
}

// CreateDaily handles POST /home/daily-challenges
func (h *ChallengeHandler) CreateDaily(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req dailyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	d, err := h.ledger.CreateDaily(r.Context(), ac.CoupleID, ac.UserID, req.Title, req.Stars)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(ac.CoupleID, websocket.NewMessage("daily_challenge", "created", d.ID, nil))
	writeJSON(w, http.StatusCreated, map[string]any{"challenge": d})
}

// CompleteDaily handles POST /home/daily-challenges/{id}/complete
func (h *ChallengeHandler) CompleteDaily(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	d, err := h.ledger.CompleteDaily(r.Context(), ac.CoupleID, r.PathValue("id"), ac.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(ac.CoupleID, websocket.NewMessage("daily_challenge", "completed", d.ID, nil))
	writeJSON(w, http.StatusOK, map[string]any{"challenge": d})
}
