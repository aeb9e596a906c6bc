package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/ledger"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/websocket"
)

// GoalsHandler serves the couple level and the reward catalog.
type GoalsHandler struct {
	ledger   *ledger.Service
	activity ActivityRecorder
	hub      Broadcaster
	logger   *slog.Logger
}

func NewGoalsHandler(l *ledger.Service, activity ActivityRecorder, hub Broadcaster, logger *slog.Logger) *GoalsHandler {
	return &GoalsHandler{ledger: l, activity: activity, hub: hub, logger: logger}
}

func (h *GoalsHandler) broadcast(coupleID string, msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(coupleID, msg)
	}
}

// Level handles GET /goals/level
func (h *GoalsHandler) Level(w http.ResponseWriter, r *http.Request) {
	lv, err := h.ledger.Level(r.Context(), auth.CoupleID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lv)
}

// ListRewards handles GET /goals/rewards
func (h *GoalsHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	items, balance, err := h.ledger.Rewards(r.Context(), ac.CoupleID, ac.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "balance": balance})
}

type rewardRequest struct {
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	StarsRequired any     `json:"starsRequired"`
}

// CreateReward handles POST /goals/rewards
func (h *GoalsHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var req rewardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	reward, err := h.ledger.CreateReward(r.Context(), ac.CoupleID, ac.UserID, req.Title, req.Description, req.StarsRequired)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.activity.Record(r.Context(), ac.CoupleID, ac.UserID, model.ActionCreateReward, "reward", reward.ID,
		"Creo un beneficio: "+reward.Title+".")
	h.broadcast(ac.CoupleID, websocket.NewMessage("reward", "created", reward.ID, nil))

	writeJSON(w, http.StatusCreated, map[string]any{"reward": reward})
}

// UpdateReward handles PATCH /goals/rewards/{id}. Only fields present in the
// body change; an explicit null description clears it.
func (h *GoalsHandler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, h.logger, err)
		return
	}

	patch, err := parseRewardPatch(raw)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	reward, err := h.ledger.UpdateReward(r.Context(), ac.CoupleID, r.PathValue("id"), ac.UserID, patch)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(ac.CoupleID, websocket.NewMessage("reward", "updated", reward.ID, nil))
	writeJSON(w, http.StatusOK, map[string]any{"reward": reward})
}

func parseRewardPatch(raw map[string]json.RawMessage) (ledger.RewardPatch, error) {
	var patch ledger.RewardPatch

	if v, ok := raw["title"]; ok {
		var title string
		if err := json.Unmarshal(v, &title); err != nil {
			return patch, apperr.Validation("title invalido.")
		}
		title = strings.TrimSpace(title)
		if title == "" {
			return patch, apperr.Validation("title requerido.")
		}
		patch.Title = &title
	}

	if v, ok := raw["description"]; ok {
		if string(v) == "null" {
			patch.ClearDescription = true
		} else {
			var desc string
			if err := json.Unmarshal(v, &desc); err != nil {
				return patch, apperr.Validation("description invalido.")
			}
			patch.Description = &desc
		}
	}

	if v, ok := raw["starsRequired"]; ok {
		var stars any
		if err := json.Unmarshal(v, &stars); err != nil {
			return patch, apperr.Validation("starsRequired invalido.")
		}
		if stars == nil {
			return patch, apperr.Validation("starsRequired invalido.")
		}
		patch.StarsRequired = stars
	}

	return patch, nil
}

// Redeem handles POST /goals/rewards/{id}/redeem
func (h *GoalsHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())

	reward, err := h.ledger.Redeem(r.Context(), ac.CoupleID, r.PathValue("id"), ac.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.broadcast(ac.CoupleID, websocket.NewMessage("reward", "redeemed", reward.ID, map[string]any{
		"redeemed_by": ac.UserID,
	}))
	writeJSON(w, http.StatusOK, map[string]any{"reward": reward})
}
