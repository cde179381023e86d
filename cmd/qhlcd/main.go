package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/qhlc/qhlc-exams/internal/api/http"
	"github.com/qhlc/qhlc-exams/internal/auth"
	authmw "github.com/qhlc/qhlc-exams/internal/auth/middleware"
	"github.com/qhlc/qhlc-exams/internal/config"
	"github.com/qhlc/qhlc-exams/internal/db"
	"github.com/qhlc/qhlc-exams/internal/exam"
	"github.com/qhlc/qhlc-exams/internal/jobs"
	"github.com/qhlc/qhlc-exams/internal/notify"
	syncx "github.com/qhlc/qhlc-exams/internal/sync"
)

func main() {
	cfg := config.FromEnv()
	log := cfg.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.WithError(err).Fatal("db open failed")
	}
	defer dbh.Close()
	store := exam.NewSQLStore(dbh, syncx.NewEventRepo(cfg.SiteID, nil))

	// --- Result notices ---
	// without a webhook notices go nowhere and nothing needs redelivery
	syncer := notify.New(store.Read(), notify.Nop{}, nil, log.WithField("component", "notify"))
	var retrying jobs.Redeliverer
	if cfg.WebhookURL != "" {
		syncer.Client = notify.NewWebhook(notify.WebhookConfig{
			URL:     cfg.WebhookURL,
			Secret:  cfg.WebhookSecret,
			Timeout: cfg.WebhookTimeout,
			Retries: cfg.WebhookRetries,
		})
		retrying = syncer
	}

	svc := exam.NewService(store,
		exam.WithLogger(log.WithField("component", "exam")),
		exam.WithPublishHook(syncer),
	)

	// --- Auth ---
	users := auth.NewUsers(dbh)
	if err := users.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.WithError(err).Fatal("bootstrap admin")
	}
	if cfg.AdminPassHash == "" {
		log.Warn("ADMIN_PASS_HASH not set; no bootstrap admin created")
	}
	authSvc := authmw.NewAuthService(cfg.AuthSecret, cfg.TokenTTL)

	// --- Jobs ---
	sched, err := jobs.Start(jobs.SweepConfig{
		Schedule:       cfg.CertSweepSpec,
		NoticeSchedule: cfg.NoticeRetrySpec,
	}, svc, retrying, log)
	if err != nil {
		log.WithError(err).Fatal("job schedule")
	}

	// --- HTTP ---
	handler := api.NewRouter(&api.Handlers{
		Exams: svc,
		Users: users,
		Auth:  authSvc,
		Log:   log,
		DB:    dbh,
	}, api.RouterOptions{CORSOrigins: cfg.CORSOrigins})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", cfg.HTTPAddr).WithField("db", cfg.DBDriver).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	if sched != nil {
		<-sched.Stop().Done()
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
	svc.Drain()
}
