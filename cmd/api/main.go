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

	"dialer-platform/internal/auth"
	"dialer-platform/internal/conference"
	"dialer-platform/internal/config"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/directory"
	"dialer-platform/internal/events"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/stats"
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

	if cfg.App.Env == "production" {
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

	provider, err := telephony.NewTwilioProvider(telephony.TwilioOptions{
		AccountSID:    cfg.Twilio.AccountSID,
		AuthToken:     cfg.Twilio.AuthToken,
		PublicBaseURL: cfg.App.PublicBaseURL,
	})
	if err != nil {
		log.Error("twilio init failed", "err", err)
		os.Exit(1)
	}

	// Storage
	sessionRepo := dialer.NewPostgresSessionRepo(db)
	queueRepo := dialer.NewPostgresQueueRepo(db)
	callRepo := dialer.NewPostgresCallRepo(db)
	confRepo := conference.NewPostgresRepo(db)
	dir := directory.NewPostgresDirectory(db)

	// Event distribution and cross-process dial slots
	bus := events.NewRedisBus(rdb, log)
	slots := dialer.NewSlotGuard(rdb, cfg.Dialer.MaxConcurrentCalls, 10*time.Minute)

	coordinator := conference.NewCoordinator(confRepo, provider, dir, log)

	manager := dialer.NewManager(dialer.ManagerOptions{
		Sessions:    sessionRepo,
		Queue:       queueRepo,
		Calls:       callRepo,
		Provider:    provider,
		Coordinator: coordinator,
		Leads:       dir,
		Bus:         bus,
		Slots:       slots,
		Scheduler: dialer.SchedulerConfig{
			Ceiling:     cfg.Dialer.MaxConcurrentCalls,
			Tick:        cfg.Dialer.TickInterval,
			DialTimeout: cfg.Dialer.DialTimeout,
			From:        cfg.Twilio.CallerID,
		},
		Log: log,
	})

	engine := dialer.NewEngine(dialer.EngineOptions{
		Sessions:    sessionRepo,
		Calls:       callRepo,
		Provider:    provider,
		Coordinator: coordinator,
		Leads:       dir,
		Bus:         bus,
		Slots:       slots,
		Waker:       manager,
		Log:         log,
	})

	queueSvc := dialer.NewQueueService(sessionRepo, queueRepo, bus, manager, log)

	// Repair stale call state before dialing resumes: webhooks delivered
	// while the process was down are gone.
	reconciler := dialer.NewReconciler(sessionRepo, callRepo, provider, engine, cfg.Dialer.ReconcileGrace, log)
	if err := reconciler.Run(rootCtx); err != nil {
		log.Error("startup reconcile failed", "err", err)
		os.Exit(1)
	}
	if err := manager.ResumeSchedulers(context.WithoutCancel(rootCtx)); err != nil {
		log.Error("scheduler resume failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:        authManager,
		Sessions:    manager,
		Queue:       queueSvc,
		Engine:      engine,
		Coordinator: coordinator,
		Stats:       stats.NewService(callRepo),
		Bus:         bus,
		CallerID:    cfg.Twilio.CallerID,
	}
	webhooks := telephony.TwilioWebhookHandler{
		Sink:                  engine,
		ConferenceCallbackURL: cfg.App.PublicBaseURL + "/webhooks/twilio/status",
	}
	registerRoutes(r, h, webhooks, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE streams stay open well past normal request lifetimes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
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

	// Dial loops stop cleanly; sessions stay live in storage and resume on
	// the next boot after reconciliation.
	manager.Shutdown()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
