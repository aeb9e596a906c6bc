package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luckylove/server/internal/model"
)

type ChallengeStore struct {
	db Queryer
}

func NewChallengeStore(db Queryer) *ChallengeStore {
	return &ChallengeStore{db: db}
}

const challengeCols = `id, couple_id, created_by, title, description, stars, status,
	accepted_by, reported_by, reported_at, completed_at, created_at`

func scanChallenge(scanner interface{ Scan(...any) error }) (*model.Challenge, error) {
	var c model.Challenge
	var description, acceptedBy, reportedBy sql.NullString
	var reportedAt, completedAt sql.NullTime

	err := scanner.Scan(
		&c.ID, &c.CoupleID, &c.CreatedBy, &c.Title, &description, &c.Stars, &c.Status,
		&acceptedBy, &reportedBy, &reportedAt, &completedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Description = stringPtr(description)
	c.AcceptedBy = stringPtr(acceptedBy)
	c.ReportedBy = stringPtr(reportedBy)
	c.ReportedAt = timePtr(reportedAt)
	c.CompletedAt = timePtr(completedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// Create inserts a pending challenge.
func (s *ChallengeStore) Create(ctx context.Context, coupleID, createdBy, title string, description *string, stars int) (*model.Challenge, error) {
	c := model.Challenge{
		ID:          uuid.NewString(),
		CoupleID:    coupleID,
		CreatedBy:   createdBy,
		Title:       title,
		Description: description,
		Stars:       stars,
		Status:      model.ChallengePending,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO home_challenges (id, couple_id, created_by, title, description, stars, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CoupleID, c.CreatedBy, c.Title, nullString(c.Description), c.Stars, c.Status, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert challenge: %w", err)
	}
	return &c, nil
}

// GetByID returns the challenge only if it belongs to coupleID.
func (s *ChallengeStore) GetByID(ctx context.Context, coupleID, id string) (*model.Challenge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+challengeCols+` FROM home_challenges WHERE id = ? AND couple_id = ?`, id, coupleID)
	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return c, nil
}

func (s *ChallengeStore) ListByCouple(ctx context.Context, coupleID string) ([]model.Challenge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+challengeCols+` FROM home_challenges WHERE couple_id = ? ORDER BY created_at DESC`, coupleID)
	if err != nil {
		return nil, fmt.Errorf("list challenges: %w", err)
	}
	defer rows.Close()

	challenges := []model.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *c)
	}
	return challenges, rows.Err()
}

// --- Transitions ---
//
// Each transition is a single conditional UPDATE guarded by the expected
// source status. ErrPreconditionFailed means another request moved the
// challenge first.

func (s *ChallengeStore) Accept(ctx context.Context, coupleID, id, actorID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE home_challenges SET status = ?, accepted_by = ?
		 WHERE id = ? AND couple_id = ? AND status = ? AND created_by != ?`,
		model.ChallengeAccepted, actorID, id, coupleID, model.ChallengePending, actorID,
	)
	if err != nil {
		return fmt.Errorf("accept challenge: %w", err)
	}
	return requireAffected(res)
}

func (s *ChallengeStore) Report(ctx context.Context, coupleID, id, actorID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE home_challenges SET status = ?, reported_by = ?, reported_at = ?
		 WHERE id = ? AND couple_id = ? AND status = ? AND accepted_by = ?`,
		model.ChallengeReported, actorID, at.UTC(), id, coupleID, model.ChallengeAccepted, actorID,
	)
	if err != nil {
		return fmt.Errorf("report challenge: %w", err)
	}
	return requireAffected(res)
}

func (s *ChallengeStore) Approve(ctx context.Context, coupleID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE home_challenges SET status = ?, completed_at = ?
		 WHERE id = ? AND couple_id = ? AND status = ?`,
		model.ChallengeCompleted, at.UTC(), id, coupleID, model.ChallengeReported,
	)
	if err != nil {
		return fmt.Errorf("approve challenge: %w", err)
	}
	return requireAffected(res)
}

func (s *ChallengeStore) Reject(ctx context.Context, coupleID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE home_challenges SET status = ?, reported_by = NULL, reported_at = NULL
		 WHERE id = ? AND couple_id = ? AND status = ?`,
		model.ChallengeAccepted, id, coupleID, model.ChallengeReported,
	)
	if err != nil {
		return fmt.Errorf("reject challenge: %w", err)
	}
	return requireAffected(res)
}
