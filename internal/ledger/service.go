package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/store"
)

// Metrics receives ledger outcomes. The zero Service uses a no-op sink.
type Metrics interface {
	StarsAwarded(n int)
	RewardRedeemed(stars int)
	LevelUp()
	Transition(op string)
}

type nopMetrics struct{}

func (nopMetrics) StarsAwarded(int)   {}
func (nopMetrics) RewardRedeemed(int) {}
func (nopMetrics) LevelUp()           {}
func (nopMetrics) Transition(string)  {}

type Service struct {
	db      *sql.DB
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

func NewService(db *sql.DB, logger *slog.Logger, metrics Metrics) *Service {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		db:      db,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Today is the current UTC calendar day as YYYY-MM-DD.
func (s *Service) Today() string {
	return s.now().UTC().Format(time.DateOnly)
}

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// NormalizeDay returns day when it looks like YYYY-MM-DD, otherwise today.
func (s *Service) NormalizeDay(day string) string {
	if dayPattern.MatchString(day) {
		return day
	}
	return s.Today()
}

// --- Level ---

type LevelView struct {
	Level     int `json:"level"`
	XP        int `json:"xp"`
	Threshold int `json:"threshold"`
}

func (s *Service) Level(ctx context.Context, coupleID string) (*LevelView, error) {
	l, err := store.NewRewardStore(s.db).GetLevel(ctx, coupleID)
	if err != nil {
		return nil, apperr.Upstream("No se pudo cargar el nivel.", err)
	}
	return &LevelView{Level: l.Level, XP: l.XP, Threshold: LevelXPThreshold}, nil
}

// addXP runs inside a transaction that has already written, so the
// read-modify-write of the level row is serialized with other writers.
func (s *Service) addXP(ctx context.Context, rs *store.RewardStore, coupleID string, amount int) error {
	l, err := rs.GetLevel(ctx, coupleID)
	if err != nil {
		return err
	}
	level, xp, err := ApplyXP(l.Level, l.XP, amount, LevelXPThreshold)
	if err != nil {
		return err
	}
	if level > l.Level {
		s.metrics.LevelUp()
	}
	l.Level, l.XP, l.UpdatedAt = level, xp, s.now()
	return rs.SaveLevel(ctx, l)
}

// --- Challenges ---

func (s *Service) CreateChallenge(ctx context.Context, coupleID, actorID, title string, description *string, stars any) (*model.Challenge, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title requerido.")
	}
	c, err := store.NewChallengeStore(s.db).Create(ctx, coupleID, actorID, title, description, ChallengeStars(stars))
	if err != nil {
		return nil, apperr.Upstream("No se pudo crear el reto.", err)
	}
	return c, nil
}

func (s *Service) ListChallenges(ctx context.Context, coupleID string) ([]model.Challenge, error) {
	items, err := store.NewChallengeStore(s.db).ListByCouple(ctx, coupleID)
	if err != nil {
		return nil, apperr.Upstream("No se pudieron cargar los retos.", err)
	}
	return items, nil
}

// Transition applies op to the challenge on behalf of actorID. Approving
// also awards the stars and the couple XP in the same transaction.
func (s *Service) Transition(ctx context.Context, coupleID, challengeID, actorID string, op Op) (*model.Challenge, error) {
	var out *model.Challenge
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		cs := store.NewChallengeStore(tx)
		c, err := cs.GetByID(ctx, coupleID, challengeID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("Reto no encontrado.")
		}
		if err := CheckTransition(c, op, actorID); err != nil {
			return err
		}

		now := s.now()
		switch op {
		case OpAccept:
			err = cs.Accept(ctx, coupleID, challengeID, actorID)
		case OpReport:
			err = cs.Report(ctx, coupleID, challengeID, actorID, now)
		case OpReject:
			err = cs.Reject(ctx, coupleID, challengeID)
		case OpApprove:
			err = cs.Approve(ctx, coupleID, challengeID, now)
			if err == nil {
				err = s.award(ctx, tx, c, now)
			}
		}
		if err != nil {
			return err
		}

		out, err = cs.GetByID(ctx, coupleID, challengeID)
		return err
	})
	if err != nil {
		return nil, classify(err, "Este reto ya fue actualizado.", "No se pudo actualizar el reto.")
	}
	s.metrics.Transition(string(op))
	if op == OpApprove {
		s.metrics.StarsAwarded(out.Stars)
	}
	return out, nil
}

func (s *Service) award(ctx context.Context, tx *sql.Tx, c *model.Challenge, now time.Time) error {
	rs := store.NewRewardStore(tx)
	challengeID := c.ID
	err := rs.InsertStarEvent(ctx, &model.StarEvent{
		CoupleID:    c.CoupleID,
		ChallengeID: &challengeID,
		AwardedTo:   Awardee(c),
		Stars:       c.Stars,
		CreatedAt:   now,
	})
	if err != nil {
		return err
	}
	return s.addXP(ctx, rs, c.CoupleID, ChallengeXPReward)
}

// --- Rewards ---

func (s *Service) CreateReward(ctx context.Context, coupleID, actorID, title string, description *string, starsRequired any) (*model.Reward, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title requerido.")
	}
	stars, ok := RewardStars(starsRequired)
	if !ok {
		return nil, apperr.Validation("starsRequired requerido.")
	}
	r, err := store.NewRewardStore(s.db).Create(ctx, coupleID, actorID, title, description, stars)
	if err != nil {
		return nil, apperr.Upstream("No se pudo crear el beneficio.", err)
	}
	return r, nil
}

// RewardPatch carries the fields of a partial reward edit. Nil fields are
// left unchanged; ClearDescription removes the description.
type RewardPatch struct {
	Title            *string
	Description      *string
	ClearDescription bool
	StarsRequired    any
}

func (s *Service) UpdateReward(ctx context.Context, coupleID, rewardID, actorID string, patch RewardPatch) (*model.Reward, error) {
	var out *model.Reward
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rs := store.NewRewardStore(tx)
		r, err := rs.GetByID(ctx, coupleID, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.NotFound("Beneficio no encontrado.")
		}
		if r.CreatedBy != actorID {
			return apperr.Forbidden("No puedes editar este beneficio.")
		}
		if r.Redeemed() {
			return apperr.Conflict("No se puede editar un beneficio canjeado.")
		}

		title, description, stars := r.Title, r.Description, r.StarsRequired
		if patch.Title != nil {
			title = *patch.Title
		}
		if patch.ClearDescription {
			description = nil
		} else if patch.Description != nil {
			description = patch.Description
		}
		if patch.StarsRequired != nil {
			n, ok := RewardStars(patch.StarsRequired)
			if !ok {
				return apperr.Validation("starsRequired invalido.")
			}
			stars = n
		}

		if err := rs.Update(ctx, coupleID, rewardID, title, description, stars); err != nil {
			return err
		}
		out, err = rs.GetByID(ctx, coupleID, rewardID)
		return err
	})
	if err != nil {
		return nil, classify(err, "No se puede editar un beneficio canjeado.", "No se pudo actualizar el beneficio.")
	}
	return out, nil
}

// Rewards lists the couple's rewards together with the caller's balance.
func (s *Service) Rewards(ctx context.Context, coupleID, userID string) ([]model.Reward, int, error) {
	rs := store.NewRewardStore(s.db)
	items, err := rs.ListByCouple(ctx, coupleID)
	if err != nil {
		return nil, 0, apperr.Upstream("No se pudieron cargar los beneficios.", err)
	}
	balance, err := rs.Balance(ctx, coupleID, userID)
	if err != nil {
		return nil, 0, apperr.Upstream("No se pudo calcular el saldo.", err)
	}
	return items, balance, nil
}

func (s *Service) Balance(ctx context.Context, coupleID, userID string) (int, error) {
	balance, err := store.NewRewardStore(s.db).Balance(ctx, coupleID, userID)
	if err != nil {
		return 0, apperr.Upstream("No se pudo calcular el saldo.", err)
	}
	return balance, nil
}

// Redeem spends the caller's stars on a reward created by their partner.
// The balance check, the debit and the redemption mark commit together.
func (s *Service) Redeem(ctx context.Context, coupleID, rewardID, actorID string) (*model.Reward, error) {
	var out *model.Reward
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rs := store.NewRewardStore(tx)
		r, err := rs.GetByID(ctx, coupleID, rewardID)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.NotFound("Beneficio no encontrado.")
		}
		if r.CreatedBy == actorID {
			return apperr.Forbidden("No puedes canjear tu propio beneficio.")
		}
		if r.Redeemed() {
			return apperr.Conflict("Este beneficio ya fue canjeado.")
		}

		balance, err := rs.Balance(ctx, coupleID, actorID)
		if err != nil {
			return err
		}
		if balance < r.StarsRequired {
			return apperr.Conflict("No tienes suficientes estrellas.")
		}

		if err := spend(ctx, rs, r, actorID, s.now()); err != nil {
			return err
		}
		out, err = rs.GetByID(ctx, coupleID, rewardID)
		return err
	})
	if err != nil {
		return nil, classify(err, "Este beneficio ya fue canjeado.", "No se pudo canjear el beneficio.")
	}
	s.metrics.RewardRedeemed(out.StarsRequired)
	return out, nil
}

type spender interface {
	InsertStarEvent(ctx context.Context, e *model.StarEvent) error
	MarkRedeemed(ctx context.Context, coupleID, id, userID string, at time.Time) error
	DeleteStarEvent(ctx context.Context, coupleID, id string) error
}

// spend debits the reward price and marks it redeemed. If the mark fails the
// debit is deleted again; a failed compensation is reported alongside the
// original error.
func spend(ctx context.Context, st spender, r *model.Reward, userID string, at time.Time) error {
	rewardID := r.ID
	debit := &model.StarEvent{
		CoupleID:  r.CoupleID,
		RewardID:  &rewardID,
		AwardedTo: userID,
		Stars:     -abs(r.StarsRequired),
		CreatedAt: at,
	}
	if err := st.InsertStarEvent(ctx, debit); err != nil {
		return err
	}
	if err := st.MarkRedeemed(ctx, r.CoupleID, r.ID, userID, at); err != nil {
		if cerr := st.DeleteStarEvent(ctx, r.CoupleID, debit.ID); cerr != nil {
			return apperr.Upstream("No se pudo canjear el beneficio.",
				errors.Join(err, fmt.Errorf("compensate star debit %s: %w", debit.ID, cerr)))
		}
		return err
	}
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// --- Daily challenges ---

func (s *Service) CreateDaily(ctx context.Context, coupleID, actorID, title string, stars any) (*model.DailyChallenge, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.Validation("title requerido.")
	}
	n, ok := DailyStars(stars)
	if !ok {
		return nil, apperr.Validation("stars requerido.")
	}

	ds := store.NewDailyChallengeStore(s.db)
	day := s.Today()
	d, err := ds.CreateWithinBudget(ctx, coupleID, day, actorID, title, n, MaxDailyChallenges, DailyStarBudget)
	if errors.Is(err, store.ErrPreconditionFailed) {
		count, existing, terr := ds.DayTotals(ctx, coupleID, day)
		if terr != nil {
			return nil, apperr.Upstream("No se pudo crear el reto diario.", terr)
		}
		if berr := CheckDailyBudget(count, existing, n); berr != nil {
			return nil, berr
		}
		// The day changed between the insert and the re-read.
		return nil, errDailyBudget
	}
	if err != nil {
		return nil, apperr.Upstream("No se pudo crear el reto diario.", err)
	}
	return d, nil
}

func (s *Service) ListDaily(ctx context.Context, coupleID, day string) ([]model.DailyChallenge, error) {
	items, err := store.NewDailyChallengeStore(s.db).ListByDay(ctx, coupleID, s.NormalizeDay(day))
	if err != nil {
		return nil, apperr.Upstream("No se pudieron cargar los retos diarios.", err)
	}
	return items, nil
}

// CompleteDaily marks one of today's challenges done and grants the couple
// its XP in the same transaction.
func (s *Service) CompleteDaily(ctx context.Context, coupleID, id, actorID string) (*model.DailyChallenge, error) {
	day := s.Today()
	var out *model.DailyChallenge
	err := store.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ds := store.NewDailyChallengeStore(tx)
		d, err := ds.GetForDay(ctx, coupleID, id, day)
		if err != nil {
			return err
		}
		if d == nil {
			return apperr.NotFound("Reto diario no encontrado.")
		}
		if d.CompletedAt != nil {
			return apperr.Conflict("Este reto ya fue cumplido.")
		}
		if err := ds.Complete(ctx, coupleID, id, day, actorID, s.now()); err != nil {
			return err
		}
		if err := s.addXP(ctx, store.NewRewardStore(tx), coupleID, DailyChallengeXPReward); err != nil {
			return err
		}
		out, err = ds.GetForDay(ctx, coupleID, id, day)
		return err
	})
	if err != nil {
		return nil, classify(err, "Este reto ya fue cumplido.", "No se pudo completar el reto diario.")
	}
	return out, nil
}

// classify maps a lost conditional write to a conflict and any unclassified
// failure to an upstream error; classified errors pass through.
func classify(err error, conflictMsg, upstreamMsg string) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrPreconditionFailed):
		return apperr.Conflict(conflictMsg)
	default:
		return apperr.Upstream(upstreamMsg, err)
	}
}
