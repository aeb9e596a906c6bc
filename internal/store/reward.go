package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luckylove/server/internal/model"
)

type RewardStore struct {
	db Queryer
}

func NewRewardStore(db Queryer) *RewardStore {
	return &RewardStore{db: db}
}

// --- Reward methods ---

const rewardCols = `id, couple_id, title, description, stars_required, created_by, created_at, redeemed_at, redeemed_by`

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var description, redeemedBy sql.NullString
	var redeemedAt sql.NullTime

	err := scanner.Scan(&r.ID, &r.CoupleID, &r.Title, &description, &r.StarsRequired,
		&r.CreatedBy, &r.CreatedAt, &redeemedAt, &redeemedBy)
	if err != nil {
		return nil, err
	}
	r.Description = stringPtr(description)
	r.RedeemedAt = timePtr(redeemedAt)
	r.RedeemedBy = stringPtr(redeemedBy)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (s *RewardStore) Create(ctx context.Context, coupleID, createdBy, title string, description *string, starsRequired int) (*model.Reward, error) {
	r := model.Reward{
		ID:            uuid.NewString(),
		CoupleID:      coupleID,
		Title:         title,
		Description:   description,
		StarsRequired: starsRequired,
		CreatedBy:     createdBy,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO couple_rewards (id, couple_id, title, description, stars_required, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CoupleID, r.Title, nullString(r.Description), r.StarsRequired, r.CreatedBy, r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	return &r, nil
}

// GetByID returns the reward only if it belongs to coupleID.
func (s *RewardStore) GetByID(ctx context.Context, coupleID, id string) (*model.Reward, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+rewardCols+` FROM couple_rewards WHERE id = ? AND couple_id = ?`, id, coupleID)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// ListByCouple returns rewards newest first.
func (s *RewardStore) ListByCouple(ctx context.Context, coupleID string) ([]model.Reward, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rewardCols+` FROM couple_rewards WHERE couple_id = ? ORDER BY created_at DESC`, coupleID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	rewards := []model.Reward{}
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

// Update rewrites an unredeemed reward.
func (s *RewardStore) Update(ctx context.Context, coupleID, id, title string, description *string, starsRequired int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE couple_rewards SET title = ?, description = ?, stars_required = ?
		 WHERE id = ? AND couple_id = ? AND redeemed_at IS NULL`,
		title, nullString(description), starsRequired, id, coupleID,
	)
	if err != nil {
		return fmt.Errorf("update reward: %w", err)
	}
	return requireAffected(res)
}

// MarkRedeemed sets the redemption fields if the reward is still unredeemed.
func (s *RewardStore) MarkRedeemed(ctx context.Context, coupleID, id, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE couple_rewards SET redeemed_at = ?, redeemed_by = ?
		 WHERE id = ? AND couple_id = ? AND redeemed_at IS NULL`,
		at.UTC(), userID, id, coupleID,
	)
	if err != nil {
		return fmt.Errorf("mark reward redeemed: %w", err)
	}
	return requireAffected(res)
}

// --- Star ledger methods ---

func (s *RewardStore) InsertStarEvent(ctx context.Context, e *model.StarEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO couple_star_events (id, couple_id, challenge_id, reward_id, awarded_to, stars, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CoupleID, nullString(e.ChallengeID), nullString(e.RewardID), e.AwardedTo, e.Stars, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert star event: %w", err)
	}
	return nil
}

// DeleteStarEvent removes a ledger row. Only used to compensate a redemption
// that could not be completed.
func (s *RewardStore) DeleteStarEvent(ctx context.Context, coupleID, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM couple_star_events WHERE id = ? AND couple_id = ?`, id, coupleID)
	if err != nil {
		return fmt.Errorf("delete star event: %w", err)
	}
	return nil
}

// Balance sums every ledger entry awarded to userID within the couple.
func (s *RewardStore) Balance(ctx context.Context, coupleID, userID string) (int, error) {
	var balance int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(stars), 0) FROM couple_star_events WHERE couple_id = ? AND awarded_to = ?`,
		coupleID, userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get star balance: %w", err)
	}
	return balance, nil
}

func (s *RewardStore) ListStarEvents(ctx context.Context, coupleID, userID string) ([]model.StarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, couple_id, challenge_id, reward_id, awarded_to, stars, created_at
		 FROM couple_star_events WHERE couple_id = ? AND awarded_to = ? ORDER BY created_at DESC`,
		coupleID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list star events: %w", err)
	}
	defer rows.Close()

	var events []model.StarEvent
	for rows.Next() {
		var e model.StarEvent
		var challengeID, rewardID sql.NullString
		if err := rows.Scan(&e.ID, &e.CoupleID, &challengeID, &rewardID, &e.AwardedTo, &e.Stars, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan star event: %w", err)
		}
		e.ChallengeID = stringPtr(challengeID)
		e.RewardID = stringPtr(rewardID)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Level methods ---

// GetLevel returns the couple's level row, or level 1 with no XP when none
// has been written yet.
func (s *RewardStore) GetLevel(ctx context.Context, coupleID string) (*model.CoupleLevel, error) {
	l := model.CoupleLevel{CoupleID: coupleID, Level: 1}
	err := s.db.QueryRowContext(ctx,
		`SELECT level, xp, updated_at FROM couple_levels WHERE couple_id = ?`, coupleID,
	).Scan(&l.Level, &l.XP, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return &l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get couple level: %w", err)
	}
	return &l, nil
}

func (s *RewardStore) SaveLevel(ctx context.Context, l *model.CoupleLevel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO couple_levels (couple_id, level, xp, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(couple_id) DO UPDATE SET level = excluded.level, xp = excluded.xp, updated_at = excluded.updated_at`,
		l.CoupleID, l.Level, l.XP, l.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save couple level: %w", err)
	}
	return nil
}
