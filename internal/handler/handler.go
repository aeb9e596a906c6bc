package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/push"
	"github.com/luckylove/server/internal/websocket"
)

const maxBodyBytes = 1 << 20

// ActivityRecorder appends couple activity events. Implementations log
// their own failures.
type ActivityRecorder interface {
	Record(ctx context.Context, coupleID, actorID, action, entityType, entityID, message string)
}

type PartnerNotifier interface {
	NotifyPartner(coupleID, actorID string, payload push.Payload)
}

type Broadcaster interface {
	Broadcast(coupleID string, msg websocket.Message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error": msg} with its kind's status. Upstream
// failures are logged with their cause.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindUpstream {
		logger.Error("request failed", "error", err)
	}
	writeJSON(w, kind.Status(), map[string]string{"error": apperr.Message(err)})
}

// decodeJSON reads a JSON object body into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Validation("JSON invalido.")
	}
	return nil
}
