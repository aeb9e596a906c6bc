// Package pairing links two unpaired profiles into a couple through a short
// code one partner shares with the other.
package pairing

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/store"
)

const (
	// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	ConnectCodeLength = 6
	CoupleCodeLength  = 8

	codeAttempts = 5
)

// GenerateCode returns n characters drawn uniformly from codeAlphabet.
func GenerateCode(n int) (string, error) {
	base := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for range n {
		i, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(codeAlphabet[i.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode trims and upper-cases a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type Service struct {
	db      *sql.DB
	logger  *slog.Logger
	newCode func(n int) (string, error)
}

func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger, newCode: GenerateCode}
}

// IssueCode gives userID a fresh connect code, replacing any previous one.
// A collision with another user's code is retried with a new draw.
func (s *Service) IssueCode(ctx context.Context, userID string) (string, error) {
	profiles := store.NewProfileStore(s.db)

	var lastErr error
	for range codeAttempts {
		code, err := s.newCode(ConnectCodeLength)
		if err != nil {
			return "", apperr.Upstream("No se pudo generar codigo.", err)
		}
		err = profiles.SetConnectCode(ctx, userID, code)
		if err == nil {
			return code, nil
		}
		if errors.Is(err, store.ErrPreconditionFailed) {
			return "", apperr.NotFound("Perfil no encontrado.")
		}
		s.logger.Debug("connect code collision", "user_id", userID, "error", err)
		lastErr = err
	}
	return "", apperr.Upstream("No se pudo generar codigo.", lastErr)
}

// Connect pairs userID with the owner of code. Both must be unpaired; the
// new couple is returned along with the partner's user id.
func (s *Service) Connect(ctx context.Context, userID, code string) (*model.Couple, string, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, "", apperr.Validation("code requerido.")
	}

	var couple *model.Couple
	var partnerID string
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		profiles := store.NewProfileStore(tx)

		me, err := profiles.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if me == nil {
			return apperr.NotFound("Perfil no encontrado.")
		}
		if me.CoupleID != nil {
			return apperr.Conflict("El usuario ya tiene pareja.")
		}

		other, err := profiles.GetByConnectCode(ctx, code)
		if err != nil {
			return err
		}
		if other == nil {
			return apperr.NotFound("Codigo no valido.")
		}
		if other.UserID == userID {
			return apperr.Validation("No puedes usar tu propio codigo.")
		}
		if other.CoupleID != nil {
			return apperr.Conflict("La otra persona ya tiene pareja.")
		}

		coupleCode, err := s.newCode(CoupleCodeLength)
		if err != nil {
			return err
		}
		couple, err = store.NewCoupleStore(tx).CreateWithCode(ctx, &coupleCode)
		if err != nil {
			return err
		}
		partnerID = other.UserID
		return profiles.JoinCouple(ctx, couple.ID, userID, other.UserID)
	})
	switch {
	case err == nil:
		return couple, partnerID, nil
	case errors.Is(err, store.ErrPreconditionFailed):
		return nil, "", apperr.Conflict("La otra persona ya tiene pareja.")
	case apperr.KindOf(err) != apperr.KindUpstream:
		return nil, "", err
	default:
		return nil, "", apperr.Upstream("No se pudo conectar la pareja.", err)
	}
}
