package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/luckylove/server/internal/cache"
	"github.com/luckylove/server/internal/feed"
	"github.com/luckylove/server/internal/handler"
	"github.com/luckylove/server/internal/identity"
	"github.com/luckylove/server/internal/ledger"
	"github.com/luckylove/server/internal/metrics"
	"github.com/luckylove/server/internal/middleware"
	"github.com/luckylove/server/internal/music"
	"github.com/luckylove/server/internal/pairing"
	"github.com/luckylove/server/internal/store"
	ws "github.com/luckylove/server/internal/websocket"
)

// Options carries the collaborators built by the caller. Notifier may be
// nil, which disables partner pushes.
type Options struct {
	DB             *sql.DB
	Cache          cache.Cache
	Identity       identity.Resolver
	Music          *music.Service
	Notifier       handler.PartnerNotifier
	VAPIDPublicKey string
	Metrics        *metrics.Metrics
	WSOrigins      []string
	Logger         *slog.Logger
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	feed         *feed.Service
	ledger       *ledger.Service
	feedH        *handler.FeedHandler
	goalsH       *handler.GoalsHandler
	challengeH   *handler.ChallengeHandler
	messageH     *handler.MessageHandler
	questionH    *handler.QuestionHandler
	coupleH      *handler.CoupleHandler
	profileH     *handler.ProfileHandler
	pushH        *handler.PushHandler
	musicH       *handler.MusicHandler
	identity     identity.Resolver
	profileStore *store.ProfileStore
	rateLimiter  *middleware.RateLimiter
	metrics      *metrics.Metrics
	wsOrigins    []string
	logger       *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	hub := ws.NewHub(logger.With("component", "websocket"))

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	profileStore := store.NewProfileStore(opts.DB)
	eventStore := store.NewEventStore(opts.DB)
	messageStore := store.NewMessageStore(opts.DB)
	pushStore := store.NewPushStore(opts.DB)
	questionStore := store.NewQuestionStore(opts.DB)

	feedSvc := feed.NewService(eventStore, profileStore, hub, logger.With("component", "feed"))
	ledgerSvc := ledger.NewService(opts.DB, logger.With("component", "ledger"), m)
	pairingSvc := pairing.NewService(opts.DB, logger.With("component", "pairing"))

	return &Server{
		db:           opts.DB,
		hub:          hub,
		feed:         feedSvc,
		ledger:       ledgerSvc,
		feedH:        handler.NewFeedHandler(feedSvc, logger.With("component", "feed_handler")),
		goalsH:       handler.NewGoalsHandler(ledgerSvc, feedSvc, hub, logger.With("component", "goals")),
		challengeH:   handler.NewChallengeHandler(ledgerSvc, feedSvc, opts.Notifier, hub, logger.With("component", "challenge")),
		messageH:     handler.NewMessageHandler(messageStore, feedSvc, opts.Notifier, hub, opts.Cache, logger.With("component", "message")),
		questionH:    handler.NewQuestionHandler(questionStore, feedSvc, logger.With("component", "question")),
		coupleH:      handler.NewCoupleHandler(pairingSvc, opts.Notifier, logger.With("component", "couple")),
		profileH:     handler.NewProfileHandler(profileStore, logger.With("component", "profile")),
		pushH:        handler.NewPushHandler(pushStore, opts.VAPIDPublicKey, logger.With("component", "push_handler")),
		musicH:       handler.NewMusicHandler(opts.Music, logger.With("component", "music")),
		identity:     opts.Identity,
		profileStore: profileStore,
		rateLimiter:  middleware.NewRateLimiter(),
		metrics:      m,
		wsOrigins:    opts.WSOrigins,
		logger:       logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the realtime hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", s.metrics.Handler())

	// Profile registration needs a valid token but no profile yet
	identityOnly := middleware.RequireIdentity(s.identity, s.logger.With("component", "auth"))
	outerMux.Handle("POST /profiles", identityOnly(s.limited(s.profileH.Register)))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.identity, s.profileStore, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
	return s.metrics.InstrumentHandler(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  status,
		"clients": s.hub.ClientCount(),
	})
}

// limited applies the per-user write limit.
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.ByUser, 30, time.Minute)(h)
}

func couple(h http.Handler) http.Handler {
	return middleware.RequireCouple(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Activity feed
	mux.Handle("GET /home/notifications", couple(http.HandlerFunc(s.feedH.List)))
	mux.Handle("POST /home/notifications/seen", couple(http.HandlerFunc(s.feedH.Seen)))

	// Level and rewards
	mux.Handle("GET /goals/level", couple(http.HandlerFunc(s.goalsH.Level)))
	mux.Handle("GET /goals/rewards", couple(http.HandlerFunc(s.goalsH.ListRewards)))
	mux.Handle("POST /goals/rewards", couple(s.limited(s.goalsH.CreateReward)))
	mux.Handle("PATCH /goals/rewards/{id}", couple(s.limited(s.goalsH.UpdateReward)))
	mux.Handle("POST /goals/rewards/{id}/redeem", couple(s.limited(s.goalsH.Redeem)))

	// Challenges
	mux.Handle("GET /home/challenges", couple(http.HandlerFunc(s.challengeH.List)))
	mux.Handle("POST /home/challenges", couple(s.limited(s.challengeH.Create)))
	mux.Handle("POST /home/challenges/{id}/accept", couple(s.limited(s.challengeH.Transition(ledger.OpAccept))))
	mux.Handle("POST /home/challenges/{id}/report", couple(s.limited(s.challengeH.Transition(ledger.OpReport))))
	mux.Handle("POST /home/challenges/{id}/approve", couple(s.limited(s.challengeH.Transition(ledger.OpApprove))))
	mux.Handle("POST /home/challenges/{id}/reject", couple(s.limited(s.challengeH.Transition(ledger.OpReject))))

	// Daily challenges
	mux.Handle("GET /home/daily-challenges", couple(http.HandlerFunc(s.challengeH.ListDaily)))
	mux.Handle("POST /home/daily-challenges", couple(s.limited(s.challengeH.CreateDaily)))
	mux.Handle("POST /home/daily-challenges/{id}/complete", couple(s.limited(s.challengeH.CompleteDaily)))

	// Messages
	mux.Handle("GET /home/messages", couple(http.HandlerFunc(s.messageH.List)))
	mux.Handle("POST /home/messages", couple(s.limited(s.messageH.Create)))
	mux.Handle("GET /home/daily-message", couple(http.HandlerFunc(s.messageH.Daily)))

	// Daily questions
	mux.Handle("GET /home/daily-question", couple(http.HandlerFunc(s.questionH.Daily)))
	mux.Handle("GET /home/daily-question/answers", couple(http.HandlerFunc(s.questionH.DailyAnswers)))
	mux.Handle("POST /home/daily-question/answer", couple(s.limited(s.questionH.AnswerDaily)))
	mux.Handle("GET /home/questions", couple(http.HandlerFunc(s.questionH.List)))
	mux.Handle("POST /home/questions", couple(s.limited(s.questionH.Create)))
	mux.Handle("POST /home/questions/{id}/answers", couple(s.limited(s.questionH.Answer)))

	// Pairing
	mux.Handle("POST /profiles/generate-code", s.limited(s.coupleH.GenerateCode))
	mux.Handle("POST /couples/connect", s.limited(s.coupleH.Connect))

	// Profile and push
	mux.Handle("POST /profiles/push-token", s.limited(s.profileH.PushToken))
	mux.HandleFunc("GET /push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("GET /push/subscriptions", s.pushH.List)
	mux.Handle("POST /push/subscriptions", s.limited(s.pushH.Subscribe))
	mux.Handle("DELETE /push/subscriptions", s.limited(s.pushH.Unsubscribe))

	// Music catalog
	mux.HandleFunc("GET /music/search", s.musicH.Search)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.wsOrigins))
}
