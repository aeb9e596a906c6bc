package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/websocket"
)

// EventStore persists the couple's append-only activity log.
type EventStore interface {
	Insert(ctx context.Context, e *model.Event) error
	ListRecent(ctx context.Context, coupleID string, limit int) ([]model.Event, error)
	MarkSeen(ctx context.Context, coupleID, userID string, ids []string, at time.Time) (int64, error)
}

// ProfileLister resolves the couple's members for display names.
type ProfileLister interface {
	ListByCouple(ctx context.Context, coupleID string) ([]model.Profile, error)
}

// Broadcaster pushes realtime messages to a couple's connected clients.
type Broadcaster interface {
	Broadcast(coupleID string, msg websocket.Message)
}

// Service reads, records and marks the couple's activity feed.
type Service struct {
	events   EventStore
	profiles ProfileLister
	hub      Broadcaster
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the feed. hub may be nil when realtime is disabled.
func NewService(events EventStore, profiles ProfileLister, hub Broadcaster, logger *slog.Logger) *Service {
	return &Service{
		events:   events,
		profiles: profiles,
		hub:      hub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns the aggregated feed for viewerID.
func (s *Service) List(ctx context.Context, coupleID, viewerID string) ([]Group, error) {
	events, err := s.events.ListRecent(ctx, coupleID, FeedLimit)
	if err != nil {
		return nil, apperr.Upstream("No se pudieron cargar las novedades.", err)
	}

	profiles, err := s.profiles.ListByCouple(ctx, coupleID)
	if err != nil {
		return nil, apperr.Upstream("No se pudieron cargar los perfiles.", err)
	}
	names := make(map[string]string, len(profiles))
	for i := range profiles {
		names[profiles[i].UserID] = DisplayName(&profiles[i])
	}

	return Aggregate(events, viewerID, names), nil
}

// MarkSeen records viewerID as having seen ids, or every couple event when
// ids is empty. It returns how many events were newly marked.
func (s *Service) MarkSeen(ctx context.Context, coupleID, viewerID string, ids []string) (int64, error) {
	n, err := s.events.MarkSeen(ctx, coupleID, viewerID, ids, s.now())
	if err != nil {
		return 0, apperr.Upstream("No se pudieron actualizar las novedades.", err)
	}
	return n, nil
}

// Record appends an activity event after the caller's primary write has
// succeeded. Failures are logged, never returned.
func (s *Service) Record(ctx context.Context, coupleID, actorID, action, entityType, entityID, message string) {
	e := model.Event{
		CoupleID:  coupleID,
		Action:    action,
		CreatedAt: s.now(),
	}
	if actorID != "" {
		e.ActorID = &actorID
	}
	if entityType != "" {
		e.EntityType = &entityType
	}
	if entityID != "" {
		e.EntityID = &entityID
	}
	if message != "" {
		e.Message = &message
	}

	if err := s.events.Insert(ctx, &e); err != nil {
		s.logger.Warn("record activity failed", "couple_id", coupleID, "action", action, "error", err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(coupleID, websocket.NewMessage("notification", "created", e.ID, map[string]any{
			"action":      action,
			"actor_id":    actorID,
			"entity_type": entityType,
			"entity_id":   entityID,
		}))
	}
}
