package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/luckylove/server/internal/model"
)

func insertEvent(t *testing.T, es *EventStore, coupleID, actor, action string, at time.Time) model.Event {
	t.Helper()
	e := model.Event{CoupleID: coupleID, Action: action, CreatedAt: at}
	if actor != "" {
		e.ActorID = &actor
	}
	if err := es.Insert(context.Background(), &e); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return e
}

func TestEventInsertMarksActorSeen(t *testing.T) {
	tc := setupCoupleTestDB(t)
	es := NewEventStore(tc.db)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	insertEvent(t, es, tc.coupleID, tc.alice, model.ActionCreateMessage, base)
	insertEvent(t, es, tc.coupleID, "", model.ActionEditDay, base.Add(time.Minute))

	events, err := es.ListRecent(context.Background(), tc.coupleID, 60)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Action != model.ActionEditDay {
		t.Errorf("first action = %q, want newest %q", events[0].Action, model.ActionEditDay)
	}
	if len(events[0].SeenBy) != 0 {
		t.Errorf("actorless event seen_by = %v, want empty", events[0].SeenBy)
	}
	if len(events[1].SeenBy) != 1 || events[1].SeenBy[0] != tc.alice {
		t.Errorf("seen_by = %v, want [%s]", events[1].SeenBy, tc.alice)
	}
}

func TestEventListRecentLimit(t *testing.T) {
	tc := setupCoupleTestDB(t)
	es := NewEventStore(tc.db)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		insertEvent(t, es, tc.coupleID, tc.alice, model.ActionCreateMessage, base.Add(time.Duration(i)*time.Second))
	}

	events, err := es.ListRecent(context.Background(), tc.coupleID, 3)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len = %d, want 3", len(events))
	}
	if !events[0].CreatedAt.Equal(base.Add(4 * time.Second)) {
		t.Errorf("newest = %v, want %v", events[0].CreatedAt, base.Add(4*time.Second))
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	tc := setupCoupleTestDB(t)
	es := NewEventStore(tc.db)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	insertEvent(t, es, tc.coupleID, tc.alice, model.ActionCreateMessage, base)
	insertEvent(t, es, tc.coupleID, tc.alice, model.ActionCreateMessage, base.Add(time.Second))

	n, err := es.MarkSeen(ctx, tc.coupleID, tc.bob, nil, base)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if n != 2 {
		t.Errorf("updated = %d, want 2", n)
	}

	n, err = es.MarkSeen(ctx, tc.coupleID, tc.bob, nil, base)
	if err != nil {
		t.Fatalf("mark seen again: %v", err)
	}
	if n != 0 {
		t.Errorf("second updated = %d, want 0", n)
	}

	events, err := es.ListRecent(ctx, tc.coupleID, 60)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	for _, e := range events {
		if !e.SeenByUser(tc.bob) {
			t.Errorf("event %s not seen by bob", e.ID)
		}
		if len(e.SeenBy) != 2 {
			t.Errorf("seen_by = %v, want 2 viewers", e.SeenBy)
		}
	}
}

func TestMarkSeenSpecificIDsIgnoresOtherCouples(t *testing.T) {
	tc := setupCoupleTestDB(t)
	es := NewEventStore(tc.db)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	other, err := NewCoupleStore(tc.db).Create(ctx)
	if err != nil {
		t.Fatalf("create other couple: %v", err)
	}

	mine := insertEvent(t, es, tc.coupleID, tc.alice, model.ActionCreateReward, base)
	insertEvent(t, es, tc.coupleID, tc.alice, model.ActionCreateReward, base.Add(time.Second))
	foreign := insertEvent(t, es, other.ID, "someone", model.ActionCreateReward, base)

	n, err := es.MarkSeen(ctx, tc.coupleID, tc.bob, []string{mine.ID, foreign.ID}, base)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}

	events, err := es.ListRecent(ctx, other.ID, 60)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if events[0].SeenByUser(tc.bob) {
		t.Error("foreign event must not be marked seen")
	}
}

func TestListRecentSurfacesQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM home_notifications`).
		WithArgs("couple-1", 60).
		WillReturnError(errors.New("database is locked"))

	events, err := NewEventStore(db).ListRecent(context.Background(), "couple-1", 60)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if events != nil {
		t.Errorf("events = %v, want nil on failure", events)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestListRecentSurfacesSeenFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM home_notifications`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "couple_id", "actor_id", "action", "entity_type", "entity_id", "message", "created_at"}).
			AddRow("ev-1", "couple-1", "user-a", "create_message", nil, nil, nil, now))
	mock.ExpectQuery(`SELECT notification_id, user_id FROM home_notification_seen`).
		WillReturnError(errors.New("disk I/O error"))

	if _, err := NewEventStore(db).ListRecent(context.Background(), "couple-1", 60); err == nil {
		t.Fatal("expected seen lookup failure to surface")
	}
}
