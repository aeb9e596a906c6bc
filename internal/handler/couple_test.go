package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luckylove/server/internal/apperr"
	"github.com/luckylove/server/internal/model"
)

type fakePairer struct {
	gotCode string
	err     error
}

func (f *fakePairer) IssueCode(context.Context, string) (string, error) { return "ABC234", nil }

func (f *fakePairer) Connect(_ context.Context, _, code string) (*model.Couple, string, error) {
	f.gotCode = code
	if f.err != nil {
		return nil, "", f.err
	}
	return &model.Couple{ID: "c9"}, "beto", nil
}

func TestCoupleConnectNotifiesPartner(t *testing.T) {
	pairer := &fakePairer{}
	notifier := &fakeNotifier{}
	h := NewCoupleHandler(pairer, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.Connect(rec, coupleRequest("POST", `{"code":"abc234"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if pairer.gotCode != "abc234" {
		t.Errorf("code passed = %q", pairer.gotCode)
	}
	if len(notifier.payloads) != 1 || notifier.payloads[0].Data["id"] != "c9" {
		t.Errorf("payloads = %+v", notifier.payloads)
	}
}

func TestCoupleConnectErrorSkipsNotify(t *testing.T) {
	pairer := &fakePairer{err: apperr.Conflict("La otra persona ya tiene pareja.")}
	notifier := &fakeNotifier{}
	h := NewCoupleHandler(pairer, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.Connect(rec, coupleRequest("POST", `{"code":"abc234"}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if len(notifier.payloads) != 0 {
		t.Error("failed pairing must not notify")
	}
}
