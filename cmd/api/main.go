package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dialer-platform/internal/agents"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/config"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/events"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/leads"
	"dialer-platform/internal/lifecycle"
	"dialer-platform/internal/metrics"
	"dialer-platform/internal/reconciler"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/store"
	"dialer-platform/internal/telephony"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	gateway, err := telephony.NewTwilioGateway(cfg.Twilio)
	if err != nil {
		log.Error("telephony init failed", "err", err)
		os.Exit(1)
	}

	st := store.NewPostgres(db)
	evts := events.NewService(events.NewMemoryRepo())
	tracker := agents.NewTracker(st, evts, log)
	leadDir := leads.NewMemoryDirectory()
	met := metrics.New(nil)

	slotKey := func(workspaceID string) string { return "dialer:inflight:" + workspaceID }
	acquireSlot := func(ctx context.Context, workspaceID string) (bool, error) {
		return utils.AcquireDialSlot(ctx, rdb, slotKey(workspaceID), cfg.Dialer.MaxInFlightCalls, cfg.Dialer.StaleThreshold)
	}
	releaseSlot := func(ctx context.Context, workspaceID string) error {
		return utils.ReleaseDialSlot(ctx, rdb, slotKey(workspaceID))
	}

	fallback := lifecycle.NewFallback(st, tracker, log)
	machine := lifecycle.NewMachine(st, tracker, leadDir, evts, fallback, lifecycle.MachineConfig{
		MaxAttempts: cfg.Dialer.MaxAttempts,
		ReleaseSlot: releaseSlot,
		Metrics:     met,
	}, log)

	scheduler := dialer.NewScheduler(st, tracker, gateway, leadDir, evts, met, dialer.Config{
		Fanout:                  cfg.Dialer.PerAgentFanout,
		MaxAttempts:             cfg.Dialer.MaxAttempts,
		CycleInterval:           cfg.Dialer.CycleInterval,
		DialTimeout:             cfg.Dialer.DialTimeout,
		MachineDetectionTimeout: cfg.Dialer.MachineDetectionTimeout,
		CallerIDs:               cfg.Dialer.CallerIDs,
		AreaCodeMatch:           cfg.Dialer.AreaCodeMatch,
		StatusCallbackURL:       cfg.StatusCallbackURL(),
	}, log)
	scheduler.SetSlotLimiter(acquireSlot, releaseSlot)

	sweeper := reconciler.New(st, tracker, met, cfg.Dialer.StaleThreshold, cfg.Dialer.SweepInterval, log)

	go scheduler.Run(rootCtx)
	go sweeper.Run(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	handlers := httpapi.Handlers{
		Auth:      authManager,
		Store:     st,
		Tracker:   tracker,
		Scheduler: scheduler,
		Reporting: reporting.NewService(st),
		Events:    evts,
	}
	webhook := telephony.StatusWebhookHandler{
		Router:          machine,
		BridgeActionURL: cfg.App.PublicBaseURL + "/webhooks/telephony/bridge",
		BridgeTimeout:   cfg.Dialer.DialTimeout,
	}
	registerRoutes(r, auth.RequireAccessToken(authManager), handlers, webhook, db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
