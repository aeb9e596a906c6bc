package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/database"
	"github.com/luckylove/server/internal/model"
	"github.com/luckylove/server/internal/store"
)

type countingMetrics struct {
	mu       sync.Mutex
	stars    int
	redeemed int
	levelUps int
}

func (m *countingMetrics) StarsAwarded(n int)   { m.mu.Lock(); m.stars += n; m.mu.Unlock() }
func (m *countingMetrics) RewardRedeemed(int)   { m.mu.Lock(); m.redeemed++; m.mu.Unlock() }
func (m *countingMetrics) LevelUp()             { m.mu.Lock(); m.levelUps++; m.mu.Unlock() }
func (m *countingMetrics) Transition(op string) {}

var fixedNow = time.Date(2025, 3, 1, 15, 30, 0, 0, time.UTC)

func setupLedger(t *testing.T) (*Service, *countingMetrics, string) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	couple, err := store.NewCoupleStore(db).Create(ctx)
	if err != nil {
		t.Fatalf("create couple: %v", err)
	}
	for _, id := range []string{"A", "B"} {
		if _, err := store.NewProfileStore(db).Upsert(ctx, id, id+"@example.com", nil, &couple.ID); err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}

	m := &countingMetrics{}
	svc := NewService(db, slog.New(slog.NewTextHandler(io.Discard, nil)), m)
	svc.now = func() time.Time { return fixedNow }
	return svc, m, couple.ID
}

func grantStars(t *testing.T, svc *Service, coupleID, userID string, stars int) {
	t.Helper()
	err := store.NewRewardStore(svc.db).InsertStarEvent(context.Background(), &model.StarEvent{
		CoupleID: coupleID, AwardedTo: userID, Stars: stars, CreatedAt: fixedNow,
	})
	if err != nil {
		t.Fatalf("grant stars: %v", err)
	}
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("kind = %v (%v), want %v", got, err, kind)
	}
}

func TestChallengeApproveAwardsStarsAndXP(t *testing.T) {
	svc, m, coupleID := setupLedger(t)
	ctx := context.Background()

	c, err := svc.CreateChallenge(ctx, coupleID, "A", "Cocinar juntos", nil, float64(4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, step := range []struct {
		op    Op
		actor string
	}{{OpAccept, "B"}, {OpReport, "B"}, {OpApprove, "A"}} {
		if c, err = svc.Transition(ctx, coupleID, c.ID, step.actor, step.op); err != nil {
			t.Fatalf("%s: %v", step.op, err)
		}
	}
	if c.Status != model.ChallengeCompleted || c.CompletedAt == nil {
		t.Errorf("challenge = %+v, want completed", c)
	}

	balance, err := svc.Balance(ctx, coupleID, "B")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 4 {
		t.Errorf("balance = %d, want 4", balance)
	}

	lv, err := svc.Level(ctx, coupleID)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if lv.Level != 1 || lv.XP != ChallengeXPReward || lv.Threshold != LevelXPThreshold {
		t.Errorf("level = %+v, want level 1 xp %d", lv, ChallengeXPReward)
	}
	if m.stars != 4 {
		t.Errorf("stars metric = %d, want 4", m.stars)
	}

	// Approving twice must not award twice.
	_, err = svc.Transition(ctx, coupleID, c.ID, "A", OpApprove)
	wantKind(t, err, apperr.KindConflict)
	balance, _ = svc.Balance(ctx, coupleID, "B")
	if balance != 4 {
		t.Errorf("balance after second approve = %d, want 4", balance)
	}
}

func TestChallengeRejectReturnsToAccepted(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	c, _ := svc.CreateChallenge(ctx, coupleID, "A", "Correr", nil, "2")
	svc.Transition(ctx, coupleID, c.ID, "B", OpAccept)
	svc.Transition(ctx, coupleID, c.ID, "B", OpReport)

	c, err := svc.Transition(ctx, coupleID, c.ID, "A", OpReject)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if c.Status != model.ChallengeAccepted || c.ReportedBy != nil || c.ReportedAt != nil {
		t.Errorf("after reject = %+v", c)
	}
	balance, _ := svc.Balance(ctx, coupleID, "B")
	if balance != 0 {
		t.Errorf("balance = %d, want 0 after reject", balance)
	}
}

func TestChallengeTransitionErrors(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	_, err := svc.Transition(ctx, coupleID, "missing", "B", OpAccept)
	wantKind(t, err, apperr.KindNotFound)

	c, _ := svc.CreateChallenge(ctx, coupleID, "A", "Leer", nil, nil)
	if c.Stars != 1 {
		t.Errorf("default stars = %d, want 1", c.Stars)
	}

	_, err = svc.Transition(ctx, coupleID, c.ID, "A", OpAccept)
	wantKind(t, err, apperr.KindForbidden)

	_, err = svc.Transition(ctx, coupleID, c.ID, "A", OpApprove)
	wantKind(t, err, apperr.KindConflict)

	_, err = svc.Transition(ctx, "other-couple", c.ID, "B", OpAccept)
	wantKind(t, err, apperr.KindNotFound)

	_, err = svc.CreateChallenge(ctx, coupleID, "A", "   ", nil, 3)
	wantKind(t, err, apperr.KindValidation)
}

func TestRedeemExactBalance(t *testing.T) {
	svc, m, coupleID := setupLedger(t)
	ctx := context.Background()

	r, err := svc.CreateReward(ctx, coupleID, "A", "Cena", nil, float64(5))
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	grantStars(t, svc, coupleID, "B", 5)

	got, err := svc.Redeem(ctx, coupleID, r.ID, "B")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got.RedeemedAt == nil || got.RedeemedBy == nil || *got.RedeemedBy != "B" {
		t.Errorf("reward = %+v, want redeemed by B", got)
	}

	balance, _ := svc.Balance(ctx, coupleID, "B")
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}

	_, err = svc.Redeem(ctx, coupleID, r.ID, "B")
	wantKind(t, err, apperr.KindConflict)
	if m.redeemed != 1 {
		t.Errorf("redeemed metric = %d, want 1", m.redeemed)
	}
}

func TestRedeemInsufficientBalanceLeavesLedgerUntouched(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	r, _ := svc.CreateReward(ctx, coupleID, "A", "Viaje", nil, float64(8))
	grantStars(t, svc, coupleID, "B", 3)

	_, err := svc.Redeem(ctx, coupleID, r.ID, "B")
	wantKind(t, err, apperr.KindConflict)
	if apperr.Message(err) != "No tienes suficientes estrellas." {
		t.Errorf("message = %q", apperr.Message(err))
	}

	balance, _ := svc.Balance(ctx, coupleID, "B")
	if balance != 3 {
		t.Errorf("balance = %d, want 3", balance)
	}
	items, _, _ := svc.Rewards(ctx, coupleID, "B")
	if items[0].Redeemed() {
		t.Error("reward must stay unredeemed")
	}
}

func TestHugeRewardPriceIsCappedNotFree(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	r, err := svc.CreateReward(ctx, coupleID, "A", "Luna", nil, 1e20)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if r.StarsRequired != MaxRewardStars {
		t.Fatalf("starsRequired = %d, want %d", r.StarsRequired, MaxRewardStars)
	}

	_, err = svc.Redeem(ctx, coupleID, r.ID, "B")
	wantKind(t, err, apperr.KindConflict)

	cheap, _ := svc.CreateReward(ctx, coupleID, "A", "Cena", nil, float64(2))
	updated, err := svc.UpdateReward(ctx, coupleID, cheap.ID, "A", RewardPatch{StarsRequired: "1e20"})
	if err != nil {
		t.Fatalf("update reward: %v", err)
	}
	if updated.StarsRequired != MaxRewardStars {
		t.Errorf("patched starsRequired = %d, want %d", updated.StarsRequired, MaxRewardStars)
	}
}

func TestRedeemOwnRewardForbidden(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	r, _ := svc.CreateReward(ctx, coupleID, "A", "Masaje", nil, float64(0))
	_, err := svc.Redeem(ctx, coupleID, r.ID, "A")
	wantKind(t, err, apperr.KindForbidden)

	_, err = svc.Redeem(ctx, coupleID, "nope", "B")
	wantKind(t, err, apperr.KindNotFound)
}

func TestConcurrentRedeemsSpendOnce(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	r1, _ := svc.CreateReward(ctx, coupleID, "A", "Uno", nil, float64(5))
	r2, _ := svc.CreateReward(ctx, coupleID, "A", "Dos", nil, float64(5))
	grantStars(t, svc, coupleID, "B", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{r1.ID, r2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, coupleID, id, "B")
		}(i, id)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("successful redemptions = %d, want 1 (errs %v)", ok, errs)
	}
	balance, _ := svc.Balance(ctx, coupleID, "B")
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestUpdateReward(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	desc := "En casa"
	r, _ := svc.CreateReward(ctx, coupleID, "A", "Pelicula", &desc, float64(2))

	title := "Cine"
	got, err := svc.UpdateReward(ctx, coupleID, r.ID, "A", RewardPatch{Title: &title, StarsRequired: float64(3.7)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Cine" || got.StarsRequired != 3 || got.Description == nil || *got.Description != desc {
		t.Errorf("updated = %+v", got)
	}

	got, err = svc.UpdateReward(ctx, coupleID, r.ID, "A", RewardPatch{ClearDescription: true})
	if err != nil {
		t.Fatalf("clear description: %v", err)
	}
	if got.Description != nil {
		t.Errorf("description = %v, want nil", got.Description)
	}

	_, err = svc.UpdateReward(ctx, coupleID, r.ID, "B", RewardPatch{Title: &title})
	wantKind(t, err, apperr.KindForbidden)

	_, err = svc.UpdateReward(ctx, coupleID, r.ID, "A", RewardPatch{StarsRequired: "lots"})
	wantKind(t, err, apperr.KindValidation)

	grantStars(t, svc, coupleID, "B", 3)
	if _, err := svc.Redeem(ctx, coupleID, r.ID, "B"); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	_, err = svc.UpdateReward(ctx, coupleID, r.ID, "A", RewardPatch{Title: &title})
	wantKind(t, err, apperr.KindConflict)
}

func TestCreateRewardValidation(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	_, err := svc.CreateReward(ctx, coupleID, "A", "", nil, float64(1))
	wantKind(t, err, apperr.KindValidation)

	_, err = svc.CreateReward(ctx, coupleID, "A", "Algo", nil, "x")
	wantKind(t, err, apperr.KindValidation)

	r, err := svc.CreateReward(ctx, coupleID, "A", "Gratis", nil, float64(-4))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.StarsRequired != 0 {
		t.Errorf("stars_required = %d, want 0", r.StarsRequired)
	}
}

func TestDailyBudget(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	for _, stars := range []float64{2, 2} {
		if _, err := svc.CreateDaily(ctx, coupleID, "A", "Reto", stars); err != nil {
			t.Fatalf("create daily: %v", err)
		}
	}

	_, err := svc.CreateDaily(ctx, coupleID, "A", "Demasiado", float64(2))
	wantKind(t, err, apperr.KindConflict)
	if apperr.Message(err) != "Solo tienes 5 estrellas para repartir." {
		t.Errorf("message = %q", apperr.Message(err))
	}

	d, err := svc.CreateDaily(ctx, coupleID, "A", "Justo", float64(1))
	if err != nil {
		t.Fatalf("create within budget: %v", err)
	}
	if d.DayDate != "2025-03-01" {
		t.Errorf("day = %q, want 2025-03-01", d.DayDate)
	}

	_, err = svc.CreateDaily(ctx, coupleID, "A", "Sin estrellas", nil)
	wantKind(t, err, apperr.KindValidation)
}

func TestDailyMaxCount(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	for i := 0; i < MaxDailyChallenges; i++ {
		if _, err := svc.CreateDaily(ctx, coupleID, "B", "Uno", float64(1)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	_, err := svc.CreateDaily(ctx, coupleID, "B", "Otro", float64(1))
	wantKind(t, err, apperr.KindConflict)
	if apperr.Message(err) != "Maximo 4 retos diarios." {
		t.Errorf("message = %q", apperr.Message(err))
	}
}

func TestCompleteDailyGrantsXPOnce(t *testing.T) {
	svc, m, coupleID := setupLedger(t)
	ctx := context.Background()

	d, err := svc.CreateDaily(ctx, coupleID, "A", "Caminar", float64(2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Prime the level so the daily XP triggers a level-up.
	rs := store.NewRewardStore(svc.db)
	if err := rs.SaveLevel(ctx, &model.CoupleLevel{CoupleID: coupleID, Level: 1, XP: LevelXPThreshold - 1, UpdatedAt: fixedNow}); err != nil {
		t.Fatalf("save level: %v", err)
	}

	got, err := svc.CompleteDaily(ctx, coupleID, d.ID, "B")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.CompletedBy == nil || *got.CompletedBy != "B" {
		t.Errorf("completed_by = %v, want B", got.CompletedBy)
	}

	_, err = svc.CompleteDaily(ctx, coupleID, d.ID, "A")
	wantKind(t, err, apperr.KindConflict)

	lv, _ := svc.Level(ctx, coupleID)
	if lv.Level != 2 || lv.XP != 0 {
		t.Errorf("level = %+v, want level 2 xp 0", lv)
	}
	if m.levelUps != 1 {
		t.Errorf("level ups = %d, want 1", m.levelUps)
	}

	// Yesterday's challenges cannot be completed.
	svc.now = func() time.Time { return fixedNow.Add(24 * time.Hour) }
	_, err = svc.CompleteDaily(ctx, coupleID, d.ID, "B")
	wantKind(t, err, apperr.KindNotFound)
}

func TestListDailyNormalizesDate(t *testing.T) {
	svc, _, coupleID := setupLedger(t)
	ctx := context.Background()

	if _, err := svc.CreateDaily(ctx, coupleID, "A", "Hoy", float64(1)); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, err := svc.ListDaily(ctx, coupleID, "not-a-date")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("len = %d, want 1 for today", len(items))
	}

	items, _ = svc.ListDaily(ctx, coupleID, "2024-01-01")
	if len(items) != 0 {
		t.Errorf("len = %d, want 0 for another day", len(items))
	}
}

type fakeSpender struct {
	markErr   error
	deleteErr error
	inserted  []string
	deleted   []string
}

func (f *fakeSpender) InsertStarEvent(_ context.Context, e *model.StarEvent) error {
	e.ID = "debit-1"
	f.inserted = append(f.inserted, e.ID)
	return nil
}

func (f *fakeSpender) MarkRedeemed(context.Context, string, string, string, time.Time) error {
	return f.markErr
}

func (f *fakeSpender) DeleteStarEvent(_ context.Context, _, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func TestSpendCompensatesFailedMark(t *testing.T) {
	r := &model.Reward{ID: "r1", CoupleID: "k", StarsRequired: 3}

	f := &fakeSpender{markErr: store.ErrPreconditionFailed}
	err := spend(context.Background(), f, r, "B", fixedNow)
	if !errors.Is(err, store.ErrPreconditionFailed) {
		t.Fatalf("err = %v, want ErrPreconditionFailed", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "debit-1" {
		t.Errorf("deleted = %v, want [debit-1]", f.deleted)
	}

	cleanupErr := errors.New("delete failed")
	f = &fakeSpender{markErr: store.ErrPreconditionFailed, deleteErr: cleanupErr}
	err = spend(context.Background(), f, r, "B", fixedNow)
	if !errors.Is(err, store.ErrPreconditionFailed) || !errors.Is(err, cleanupErr) {
		t.Errorf("err = %v, want both mark and compensation failures", err)
	}
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("kind = %v, want upstream", apperr.KindOf(err))
	}
}
