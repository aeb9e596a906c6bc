package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/luckylove/server/internal/auth"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/push"
)

type Pairer interface {
	IssueCode(ctx context.Context, userID string) (string, error)
	Connect(ctx context.Context, userID, code string) (*model.Couple, string, error)
}

type CoupleHandler struct {
	pairing  Pairer
	notifier PartnerNotifier
	logger   *slog.Logger
}

func NewCoupleHandler(p Pairer, notifier PartnerNotifier, logger *slog.Logger) *CoupleHandler {
	return &CoupleHandler{pairing: p, notifier: notifier, logger: logger}
}

// GenerateCode handles POST /profiles/generate-code
func (h *CoupleHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.pairing.IssueCode(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

type connectRequest struct {
	Code string `json:"code"`
}

// Connect handles POST /couples/connect
func (h *CoupleHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req connectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	couple, _, err := h.pairing.Connect(r.Context(), userID, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.Info("couple connected", "couple_id", couple.ID, "user_id", userID)

	if h.notifier != nil {
		h.notifier.NotifyPartner(couple.ID, userID, push.Payload{
			Title: "Nueva pareja",
			Body:  "Tu pareja se conecto contigo.",
			Data:  map[string]any{"type": "couple", "id": couple.ID},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"couple": couple})
}
