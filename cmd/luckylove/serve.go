package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/luckylove/server/internal/cache"
	"github.com/luckylove/server/internal/config"
	"github.com/luckylove/server/internal/database"
	"github.com/luckylove/server/internal/handler"
	"github.com/luckylove/server/internal/identity"
	"github.com/luckylove/server/internal/metrics"
	"github.com/luckylove/server/internal/music"
	"github.com/luckylove/server/internal/push"
	"github.com/luckylove/server/internal/server"
	"github.com/luckylove/server/internal/store"
)

const (
	pushWorkers     = 2
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := load(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	c, closeCache, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	m := metrics.New()

	profiles := store.NewProfileStore(db)
	var web push.SubscriptionSender
	var vapidKey string
	if cfg.Push.WebPushEnabled() {
		wp := push.NewWebPush(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.VAPIDSubject)
		web, vapidKey = wp, wp.VAPIDPublicKey()
	}
	notifier := push.NewNotifier(profiles, store.NewPushStore(db),
		push.NewExpo(push.ExpoPushURL, cfg.Push.ExpoAccessToken), web, m,
		logger.With("component", "push"))
	notifier.Start(pushWorkers)
	defer notifier.Stop()

	srv := server.New(server.Options{
		DB:    db,
		Cache: c,
		Identity: identity.NewSupabase(identity.Config{
			URL:       cfg.Supabase.URL,
			AnonKey:   cfg.Supabase.AnonKey,
			JWTSecret: cfg.Supabase.JWTSecret,
		}, c, logger.With("component", "identity")),
		Music: music.NewService(music.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
		}, c, logger.With("component", "music")),
		Notifier:       handler.PartnerNotifier(notifier),
		VAPIDPublicKey: vapidKey,
		Metrics:        m,
		WSOrigins:      cfg.WSOrigins,
		Logger:         logger,
	})

	housekeeping, err := startHousekeeping(srv, c, logger)
	if err != nil {
		return err
	}
	defer func() { <-housekeeping.Stop().Done() }()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "version", version,
			"spotify", cfg.Spotify.Enabled(), "webpush", cfg.Push.WebPushEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openCache picks Redis when REDIS_URL is set and the in-process cache
// otherwise.
func openCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, func(), error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), func() {}, nil
	}
	r, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info("using redis cache", "prefix", cfg.RedisPrefix)
	return r, func() {
		if err := r.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}, nil
}

// startHousekeeping schedules the rate limiter and memory cache sweeps.
func startHousekeeping(srv *server.Server, c cache.Cache, logger *slog.Logger) (*cron.Cron, error) {
	sched := cron.New()
	logger = logger.With("component", "housekeeping")

	if _, err := sched.AddFunc("@every 5m", func() {
		if n := srv.RateLimiter().Cleanup(); n > 0 {
			logger.Debug("rate limiter cleanup", "removed", n)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule rate limiter cleanup: %w", err)
	}

	if mem, ok := c.(*cache.Memory); ok {
		if _, err := sched.AddFunc("@every 1m", func() {
			if n := mem.Sweep(); n > 0 {
				logger.Debug("cache sweep", "removed", n)
			}
		}); err != nil {
			return nil, fmt.Errorf("schedule cache sweep: %w", err)
		}
	}

	sched.Start()
	return sched, nil
}
