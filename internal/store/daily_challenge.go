package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luckylove/server/internal/model"
)

type DailyChallengeStore struct {
	db Queryer
}

func NewDailyChallengeStore(db Queryer) *DailyChallengeStore {
	return &DailyChallengeStore{db: db}
}

const dailyChallengeCols = `id, couple_id, day_date, created_by, title, stars, completed_by, completed_at, created_at`

func scanDailyChallenge(scanner interface{ Scan(...any) error }) (*model.DailyChallenge, error) {
	var d model.DailyChallenge
	var completedBy sql.NullString
	var completedAt sql.NullTime

	err := scanner.Scan(&d.ID, &d.CoupleID, &d.DayDate, &d.CreatedBy, &d.Title, &d.Stars,
		&completedBy, &completedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.CompletedBy = stringPtr(completedBy)
	d.CompletedAt = timePtr(completedAt)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

// CreateWithinBudget inserts the daily challenge only while the day holds
// fewer than maxCount rows and the star total stays within budget. Both
// limits are checked by the same statement that inserts.
func (s *DailyChallengeStore) CreateWithinBudget(ctx context.Context, coupleID, dayDate, createdBy, title string, stars, maxCount, budget int) (*model.DailyChallenge, error) {
	d := model.DailyChallenge{
		ID:        uuid.NewString(),
		CoupleID:  coupleID,
		DayDate:   dayDate,
		CreatedBy: createdBy,
		Title:     title,
		Stars:     stars,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO home_daily_challenges (id, couple_id, day_date, created_by, title, stars, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM home_daily_challenges WHERE couple_id = ? AND day_date = ?) < ?
		   AND (SELECT COALESCE(SUM(stars), 0) FROM home_daily_challenges WHERE couple_id = ? AND day_date = ?) + ? <= ?`,
		d.ID, d.CoupleID, d.DayDate, d.CreatedBy, d.Title, d.Stars, d.CreatedAt,
		coupleID, dayDate, maxCount,
		coupleID, dayDate, stars, budget,
	)
	if err != nil {
		return nil, fmt.Errorf("insert daily challenge: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return &d, nil
}

// DayTotals reports how many daily challenges exist for the day and how many
// stars they hold.
func (s *DailyChallengeStore) DayTotals(ctx context.Context, coupleID, dayDate string) (count, stars int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(stars), 0) FROM home_daily_challenges WHERE couple_id = ? AND day_date = ?`,
		coupleID, dayDate,
	).Scan(&count, &stars)
	if err != nil {
		return 0, 0, fmt.Errorf("get daily totals: %w", err)
	}
	return count, stars, nil
}

// GetForDay returns the challenge only if it belongs to the couple and day.
func (s *DailyChallengeStore) GetForDay(ctx context.Context, coupleID, id, dayDate string) (*model.DailyChallenge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dailyChallengeCols+` FROM home_daily_challenges WHERE id = ? AND couple_id = ? AND day_date = ?`,
		id, coupleID, dayDate,
	)
	d, err := scanDailyChallenge(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily challenge: %w", err)
	}
	return d, nil
}

// ListByDay returns the day's challenges oldest first.
func (s *DailyChallengeStore) ListByDay(ctx context.Context, coupleID, dayDate string) ([]model.DailyChallenge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dailyChallengeCols+` FROM home_daily_challenges
		 WHERE couple_id = ? AND day_date = ? ORDER BY created_at ASC`,
		coupleID, dayDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list daily challenges: %w", err)
	}
	defer rows.Close()

	challenges := []model.DailyChallenge{}
	for rows.Next() {
		d, err := scanDailyChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan daily challenge: %w", err)
		}
		challenges = append(challenges, *d)
	}
	return challenges, rows.Err()
}

// Complete marks the day's challenge done if nobody has completed it yet.
func (s *DailyChallengeStore) Complete(ctx context.Context, coupleID, id, dayDate, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE home_daily_challenges SET completed_by = ?, completed_at = ?
		 WHERE id = ? AND couple_id = ? AND day_date = ? AND completed_at IS NULL`,
		userID, at.UTC(), id, coupleID, dayDate,
	)
	if err != nil {
		return fmt.Errorf("complete daily challenge: %w", err)
	}
	return requireAffected(res)
}
