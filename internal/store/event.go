package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luckylove/server/internal/model"
)

type EventStore struct {
	db Queryer
}

func NewEventStore(db Queryer) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, couple_id, actor_id, action, entity_type, entity_id, message, created_at`

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var actorID, entityType, entityID, message sql.NullString

	err := scanner.Scan(&e.ID, &e.CoupleID, &actorID, &e.Action, &entityType, &entityID, &message, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.ActorID = stringPtr(actorID)
	e.EntityType = stringPtr(entityType)
	e.EntityID = stringPtr(entityID)
	e.Message = stringPtr(message)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

// Insert appends an event. The actor, when present, is recorded as having
// seen it.
func (s *EventStore) Insert(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO home_notifications (`+eventCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CoupleID, nullString(e.ActorID), e.Action,
		nullString(e.EntityType), nullString(e.EntityID), nullString(e.Message), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	e.SeenBy = nil
	if e.ActorID != nil {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO home_notification_seen (notification_id, user_id, seen_at) VALUES (?, ?, ?)`,
			e.ID, *e.ActorID, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert actor seen: %w", err)
		}
		e.SeenBy = []string{*e.ActorID}
	}
	return nil
}

// ListRecent returns the couple's newest events first, each with its seen
// set populated.
func (s *EventStore) ListRecent(ctx context.Context, coupleID string, limit int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM home_notifications
		 WHERE couple_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		coupleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	index := make(map[string]int)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		index[e.ID] = len(events)
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return events, nil
	}

	args := make([]any, 0, len(events))
	for _, e := range events {
		args = append(args, e.ID)
	}
	seenRows, err := s.db.QueryContext(ctx,
		`SELECT notification_id, user_id FROM home_notification_seen
		 WHERE notification_id IN (`+placeholders(len(args))+`) ORDER BY seen_at ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list seen: %w", err)
	}
	defer seenRows.Close()

	for seenRows.Next() {
		var eventID, userID string
		if err := seenRows.Scan(&eventID, &userID); err != nil {
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		if i, ok := index[eventID]; ok {
			events[i].SeenBy = append(events[i].SeenBy, userID)
		}
	}
	if err := seenRows.Err(); err != nil {
		return nil, fmt.Errorf("list seen: %w", err)
	}
	return events, nil
}

// MarkSeen records userID as a viewer of the couple's events. With no ids
// every event of the couple is targeted; ids from other couples are ignored.
// It returns how many (event, viewer) pairs were newly recorded.
func (s *EventStore) MarkSeen(ctx context.Context, coupleID, userID string, ids []string, at time.Time) (int64, error) {
	query := `INSERT OR IGNORE INTO home_notification_seen (notification_id, user_id, seen_at)
		 SELECT id, ?, ? FROM home_notifications WHERE couple_id = ?`
	args := []any{userID, at.UTC(), coupleID}
	if len(ids) > 0 {
		query += ` AND id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("mark events seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
