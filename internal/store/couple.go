package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/luckylove/server/internal/model"
)

type CoupleStore struct {
	db Queryer
}

func NewCoupleStore(db Queryer) *CoupleStore {
	return &CoupleStore{db: db}
}

func (s *CoupleStore) Create(ctx context.Context) (*model.Couple, error) {
	return s.CreateWithCode(ctx, nil)
}

// CreateWithCode creates a couple carrying the shareable code it was
// paired under.
func (s *CoupleStore) CreateWithCode(ctx context.Context, code *string) (*model.Couple, error) {
	c := model.Couple{ID: uuid.NewString(), Code: code, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO couples (id, code, created_at) VALUES (?, ?, ?)`,
		c.ID, nullString(c.Code), c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert couple: %w", err)
	}
	return &c, nil
}

func (s *CoupleStore) GetByID(ctx context.Context, id string) (*model.Couple, error) {
	var c model.Couple
	var code sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, code, created_at FROM couples WHERE id = ?`, id).Scan(&c.ID, &code, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get couple: %w", err)
	}
	c.Code = stringPtr(code)
	return &c, nil
}
