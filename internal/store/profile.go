package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/luckylove/server/internal/model"
)

type ProfileStore struct {
	db Queryer
}

func NewProfileStore(db Queryer) *ProfileStore {
	return &ProfileStore{db: db}
}

const profileCols = `user_id, email, alias, couple_id, expo_push_token, connect_code, created_at`

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var alias, coupleID, token, code sql.NullString

	if err := scanner.Scan(&p.UserID, &p.Email, &alias, &coupleID, &token, &code, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Alias = stringPtr(alias)
	p.CoupleID = stringPtr(coupleID)
	p.ExpoPushToken = stringPtr(token)
	p.ConnectCode = stringPtr(code)
	return &p, nil
}

// Upsert creates the profile or refreshes its email, alias and couple.
func (s *ProfileStore) Upsert(ctx context.Context, userID, email string, alias, coupleID *string) (*model.Profile, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, email, alias, couple_id, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET email = excluded.email, alias = excluded.alias, couple_id = excluded.couple_id`,
		userID, email, nullString(alias), nullString(coupleID), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return s.GetByUserID(ctx, userID)
}

// Register creates the profile for a newly seen identity. created is false
// when the profile already existed; it is then returned unchanged.
func (s *ProfileStore) Register(ctx context.Context, userID, email string, alias *string) (p *model.Profile, created bool, err error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (user_id, email, alias, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO NOTHING`,
		userID, email, nullString(alias), time.Now().UTC(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("register profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	p, err = s.GetByUserID(ctx, userID)
	return p, n > 0, err
}

func (s *ProfileStore) GetByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// ListByCouple returns both members of a couple.
func (s *ProfileStore) ListByCouple(ctx context.Context, coupleID string) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE couple_id = ? ORDER BY created_at ASC`, coupleID)
	if err != nil {
		return nil, fmt.Errorf("list profiles by couple: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// Partner returns the other member of the couple, or nil when the user is
// alone in it.
func (s *ProfileStore) Partner(ctx context.Context, coupleID, userID string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileCols+` FROM profiles WHERE couple_id = ? AND user_id != ? LIMIT 1`,
		coupleID, userID,
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get partner profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) SetExpoPushToken(ctx context.Context, userID, token string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET expo_push_token = ? WHERE user_id = ?`, token, userID)
	if err != nil {
		return fmt.Errorf("set expo push token: %w", err)
	}
	return requireAffected(res)
}

// ClearExpoPushToken drops token only if it is still the one on file, so a
// device that re-registered meanwhile keeps its new token.
func (s *ProfileStore) ClearExpoPushToken(ctx context.Context, userID, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET expo_push_token = NULL WHERE user_id = ? AND expo_push_token = ?`, userID, token)
	if err != nil {
		return fmt.Errorf("clear expo push token: %w", err)
	}
	return nil
}

// SetConnectCode stores the user's pairing code. Codes are unique, so a
// collision surfaces as an error and the caller draws another.
func (s *ProfileStore) SetConnectCode(ctx context.Context, userID, code string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET connect_code = ? WHERE user_id = ?`, code, userID)
	if err != nil {
		return fmt.Errorf("set connect code: %w", err)
	}
	return requireAffected(res)
}

func (s *ProfileStore) GetByConnectCode(ctx context.Context, code string) (*model.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileCols+` FROM profiles WHERE connect_code = ?`, code)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile by connect code: %w", err)
	}
	return p, nil
}

// JoinCouple moves every listed user into coupleID and clears their pairing
// codes. It fails with ErrPreconditionFailed unless all of them were still
// unpaired.
func (s *ProfileStore) JoinCouple(ctx context.Context, coupleID string, userIDs ...string) error {
	args := []any{coupleID}
	for _, id := range userIDs {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET couple_id = ?, connect_code = NULL
		 WHERE user_id IN (`+placeholders(len(userIDs))+`) AND couple_id IS NULL`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("join couple: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if int(n) != len(userIDs) {
		return ErrPreconditionFailed
	}
	return nil
}
