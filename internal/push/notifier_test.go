package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/luckylove/server/internal/model"
)

type fakeProfiles struct {
	mu      sync.Mutex
	partner *model.Profile
	cleared []string
}

func (f *fakeProfiles) Partner(_ context.Context, coupleID, userID string) (*model.Profile, error) {
	if f.partner == nil || f.partner.UserID == userID {
		return nil, nil
	}
	return f.partner, nil
}

func (f *fakeProfiles) ClearExpoPushToken(_ context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID+"|"+token)
	return nil
}

type fakeSubs struct {
	mu      sync.Mutex
	subs    []model.PushSubscription
	deleted []string
}

func (f *fakeSubs) ListByUser(_ context.Context, userID string) ([]model.PushSubscription, error) {
	return f.subs, nil
}

func (f *fakeSubs) DeleteByEndpoint(_ context.Context, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, endpoint)
	return nil
}

type fakeExpo struct {
	mu   sync.Mutex
	sent []Payload
	err  error
}

func (f *fakeExpo) Send(_ context.Context, token string, payload Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return f.err
}

type fakeWeb struct {
	mu   sync.Mutex
	sent []string
	errs map[string]error
}

func (f *fakeWeb) Send(_ context.Context, sub *model.PushSubscription, payload Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sub.Endpoint)
	return f.errs[sub.Endpoint]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyPartnerDeliversToBothChannels(t *testing.T) {
	token := "ExponentPushToken[bob]"
	profiles := &fakeProfiles{partner: &model.Profile{UserID: "bob", ExpoPushToken: &token}}
	subs := &fakeSubs{subs: []model.PushSubscription{{Endpoint: "https://push.example/live"}, {Endpoint: "https://push.example/gone"}}}
	expo := &fakeExpo{}
	web := &fakeWeb{errs: map[string]error{"https://push.example/gone": ErrExpired}}

	n := NewNotifier(profiles, subs, expo, web, nil, quietLogger())
	n.Start(2)
	n.NotifyPartner("couple-1", "ana", Payload{Title: "Nuevo mensaje", Body: "Tu pareja envio un mensaje."})
	n.Stop()

	if len(expo.sent) != 1 || expo.sent[0].Title != "Nuevo mensaje" {
		t.Errorf("expo sent = %+v", expo.sent)
	}
	if len(web.sent) != 2 {
		t.Errorf("web sent = %v, want 2 endpoints", web.sent)
	}
	if len(subs.deleted) != 1 || subs.deleted[0] != "https://push.example/gone" {
		t.Errorf("deleted = %v, want the expired endpoint", subs.deleted)
	}
}

func TestNotifyPartnerClearsUnregisteredExpoToken(t *testing.T) {
	token := "ExpoPushToken[stale]"
	profiles := &fakeProfiles{partner: &model.Profile{UserID: "bob", ExpoPushToken: &token}}
	expo := &fakeExpo{err: ErrExpired}

	n := NewNotifier(profiles, &fakeSubs{}, expo, nil, nil, quietLogger())
	n.Start(1)
	n.NotifyPartner("couple-1", "ana", Payload{Title: "x"})
	n.Stop()

	if len(profiles.cleared) != 1 || profiles.cleared[0] != "bob|"+token {
		t.Errorf("cleared = %v", profiles.cleared)
	}
}

func TestNotifyPartnerWithoutPartner(t *testing.T) {
	expo := &fakeExpo{}
	n := NewNotifier(&fakeProfiles{}, &fakeSubs{}, expo, nil, nil, quietLogger())
	n.Start(1)
	n.NotifyPartner("couple-1", "ana", Payload{Title: "x"})
	n.Stop()

	if len(expo.sent) != 0 {
		t.Errorf("expected no delivery, got %d", len(expo.sent))
	}
}

func TestNotifyPartnerAfterStopIsDropped(t *testing.T) {
	token := "ExpoPushToken[bob]"
	expo := &fakeExpo{err: errors.New("unreachable")}
	n := NewNotifier(&fakeProfiles{partner: &model.Profile{UserID: "bob", ExpoPushToken: &token}}, &fakeSubs{}, expo, nil, nil, quietLogger())
	n.Start(1)
	n.Stop()
	n.Stop()

	n.NotifyPartner("couple-1", "ana", Payload{Title: "late"})
	if len(expo.sent) != 0 {
		t.Errorf("expected no delivery after Stop, got %d", len(expo.sent))
	}
}
