package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/luckylove/server/internal/model"
)

type PartnerFinder interface {
	Partner(ctx context.Context, coupleID, userID string) (*model.Profile, error)
	ClearExpoPushToken(ctx context.Context, userID, token string) error
}

type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type TokenSender interface {
	Send(ctx context.Context, token string, payload Payload) error
}

type SubscriptionSender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// Recorder counts delivery attempts per channel.
type Recorder interface {
	PushDelivered(channel string, err error)
}

type nopRecorder struct{}

func (nopRecorder) PushDelivered(string, error) {}

type job struct {
	coupleID string
	actorID  string
	payload  Payload
}

// Notifier delivers partner notifications off the request path. Jobs are
// queued and handled by a fixed set of workers; a full queue drops the job.
type Notifier struct {
	profiles PartnerFinder
	subs     SubscriptionStore
	expo     TokenSender
	web      SubscriptionSender
	recorder Recorder
	logger   *slog.Logger
	timeout  time.Duration

	mu     sync.Mutex
	jobs   chan job
	closed bool
	wg     sync.WaitGroup
}

// NewNotifier wires the senders. web may be nil when VAPID keys are absent.
func NewNotifier(profiles PartnerFinder, subs SubscriptionStore, expo TokenSender, web SubscriptionSender, recorder Recorder, logger *slog.Logger) *Notifier {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Notifier{
		profiles: profiles,
		subs:     subs,
		expo:     expo,
		web:      web,
		recorder: recorder,
		logger:   logger,
		timeout:  requestTimeout,
		jobs:     make(chan job, 64),
	}
}

// Start launches workers. Call Stop to drain the queue and wait for them.
func (n *Notifier) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			for j := range n.jobs {
				n.deliver(j)
			}
		}()
	}
}

// Stop refuses new jobs, finishes the queued ones and waits for the workers.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.jobs)
	}
	n.mu.Unlock()
	n.wg.Wait()
}

// NotifyPartner queues a notification for the actor's partner and returns
// immediately.
func (n *Notifier) NotifyPartner(coupleID, actorID string, payload Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.jobs <- job{coupleID: coupleID, actorID: actorID, payload: payload}:
	default:
		n.logger.Warn("push queue full, dropping notification", "couple_id", coupleID)
	}
}

func (n *Notifier) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	partner, err := n.profiles.Partner(ctx, j.coupleID, j.actorID)
	if err != nil {
		n.logger.Warn("lookup partner for push", "couple_id", j.coupleID, "error", err)
		return
	}
	if partner == nil {
		return
	}

	if partner.ExpoPushToken != nil && IsExpoToken(*partner.ExpoPushToken) && n.expo != nil {
		token := *partner.ExpoPushToken
		err := n.expo.Send(ctx, token, j.payload)
		n.recorder.PushDelivered("expo", err)
		switch {
		case errors.Is(err, ErrExpired):
			if err := n.profiles.ClearExpoPushToken(ctx, partner.UserID, token); err != nil {
				n.logger.Warn("clear expired expo token", "user_id", partner.UserID, "error", err)
			}
		case err != nil:
			n.logger.Warn("send expo push", "user_id", partner.UserID, "error", err)
		}
	}

	if n.web == nil {
		return
	}
	subs, err := n.subs.ListByUser(ctx, partner.UserID)
	if err != nil {
		n.logger.Warn("list push subscriptions", "user_id", partner.UserID, "error", err)
		return
	}
	for i := range subs {
		sub := &subs[i]
		err := n.web.Send(ctx, sub, j.payload)
		n.recorder.PushDelivered("webpush", err)
		switch {
		case errors.Is(err, ErrExpired):
			n.logger.Info("removing expired push subscription", "endpoint", sub.Endpoint)
			if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				n.logger.Warn("delete expired subscription", "error", err)
			}
		case err != nil:
			n.logger.Warn("send web push", "user_id", partner.UserID, "error", err)
		}
	}
}
