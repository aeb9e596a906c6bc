package pairing

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/database"
	"github.com/luckylove/server/internal/store"
)

func setupPairing(t *testing.T, users ...string) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, id := range users {
		if _, _, err := store.NewProfileStore(db).Register(context.Background(), id, id+"@example.com", nil); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	return NewService(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fixedCodes hands out the given codes in order.
func fixedCodes(codes ...string) func(int) (string, error) {
	return func(int) (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(ConnectCodeLength)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != ConnectCodeLength {
		t.Fatalf("len = %d, want %d", len(code), ConnectCodeLength)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("code %q has %q outside the alphabet", code, r)
		}
	}
}

func TestConnectPairsBothProfiles(t *testing.T) {
	svc := setupPairing(t, "ana", "beto")
	ctx := context.Background()

	code, err := svc.IssueCode(ctx, "ana")
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	couple, partnerID, err := svc.Connect(ctx, "beto", " "+strings.ToLower(code)+" ")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if partnerID != "ana" {
		t.Errorf("partner = %q, want ana", partnerID)
	}
	if couple.Code == nil || len(*couple.Code) != CoupleCodeLength {
		t.Errorf("couple code = %v, want %d chars", couple.Code, CoupleCodeLength)
	}

	members, err := store.NewProfileStore(svc.db).ListByCouple(ctx, couple.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
	for _, m := range members {
		if m.ConnectCode != nil {
			t.Errorf("%s still holds connect code %q", m.UserID, *m.ConnectCode)
		}
	}
}

func TestConnectErrors(t *testing.T) {
	svc := setupPairing(t, "ana", "beto", "caro")
	ctx := context.Background()

	_, _, err := svc.Connect(ctx, "beto", "  ")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("blank code err = %v, want validation", err)
	}

	_, _, err = svc.Connect(ctx, "beto", "NOPE99")
	if apperr.Message(err) != "Codigo no valido." {
		t.Errorf("unknown code err = %v", err)
	}

	code, _ := svc.IssueCode(ctx, "ana")
	_, _, err = svc.Connect(ctx, "ana", code)
	if apperr.Message(err) != "No puedes usar tu propio codigo." {
		t.Errorf("own code err = %v", err)
	}

	if _, _, err := svc.Connect(ctx, "beto", code); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, _, err = svc.Connect(ctx, "beto", code)
	if apperr.Message(err) != "El usuario ya tiene pareja." {
		t.Errorf("already paired err = %v", err)
	}

	// ana's code was cleared on pairing, so it no longer resolves.
	_, _, err = svc.Connect(ctx, "caro", code)
	if apperr.Message(err) != "Codigo no valido." {
		t.Errorf("spent code err = %v", err)
	}

	// A paired user can still hold a code; it must not pair a third person.
	if err := store.NewProfileStore(svc.db).SetConnectCode(ctx, "ana", "ANA222"); err != nil {
		t.Fatalf("set code: %v", err)
	}
	_, _, err = svc.Connect(ctx, "caro", "ANA222")
	if apperr.Message(err) != "La otra persona ya tiene pareja." {
		t.Errorf("partner paired err = %v", err)
	}
}

func TestIssueCodeRetriesCollision(t *testing.T) {
	svc := setupPairing(t, "ana", "beto")
	ctx := context.Background()

	svc.newCode = fixedCodes("AAAAAA")
	if _, err := svc.IssueCode(ctx, "ana"); err != nil {
		t.Fatalf("issue ana: %v", err)
	}

	svc.newCode = fixedCodes("AAAAAA", "BBBBBB")
	code, err := svc.IssueCode(ctx, "beto")
	if err != nil {
		t.Fatalf("issue beto: %v", err)
	}
	if code != "BBBBBB" {
		t.Errorf("code = %q, want BBBBBB after collision", code)
	}
}

func TestIssueCodeUnknownProfile(t *testing.T) {
	svc := setupPairing(t)

	_, err := svc.IssueCode(context.Background(), "ghost")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("err = %v, want not found", err)
	}
}
