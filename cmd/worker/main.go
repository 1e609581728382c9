package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/triage-api/internal/app"
	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/email"
	"github.com/jwalitptl/triage-api/internal/handler/health"
	"github.com/jwalitptl/triage-api/internal/service/audit"
	"github.com/jwalitptl/triage-api/internal/service/notification"
	"github.com/jwalitptl/triage-api/internal/worker"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/messaging"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

func setupHealthCheck(addr string, checks map[string]health.Check, log *logger.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	health.NewHandler(checks, prometheus.DefaultGatherer).RegisterRoutes(engine.Group(""))

	srv := &http.Server{Addr: addr, Handler: engine}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "Health check server failed")
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.Log).With("service", "triage-worker")
	m := metrics.NewMetrics("triage", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Storage.Driver != "postgres" {
		log.Warn("Worker is running on in-memory storage and will not see patients registered by the api")
	}
	storage, err := app.OpenStorage(ctx, cfg, log, m)
	if err != nil {
		log.Fatal(err, "Failed to open storage")
	}
	defer storage.Close()

	checks := map[string]health.Check{"storage": storage.Ping}

	var broker messaging.Broker
	redisBroker, err := app.OpenBroker(ctx, cfg.Redis, log, m)
	if err != nil {
		log.Fatal(err, "Failed to create Redis broker")
	}
	if redisBroker != nil {
		defer redisBroker.Close()
		broker = redisBroker
		checks["redis"] = redisBroker.Ping
	}

	var mailer email.Service
	if cfg.Notification.EmailEnabled {
		mailer = email.NewSMTPService(cfg.Notification.SMTP)
	}
	notifier := notification.NewService(
		notification.Config{CacheTTL: cfg.Notification.CacheTTL},
		storage.Staff, broker, mailer, log, m,
	)

	escalation := worker.NewEscalationWorker(storage.Patients, notifier, worker.EscalationConfig{
		After:         cfg.Triage.EscalationAfter,
		Interval:      cfg.Triage.EscalationInterval,
		RetryAttempts: cfg.Triage.EscalationRetries,
	}, log, m)
	retention := worker.NewAuditRetentionWorker(
		audit.NewService(storage.Audits), cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval, log,
	)

	// Health sits one port above the api so both can share a host.
	healthSrv := setupHealthCheck(fmt.Sprintf(":%d", cfg.Server.Port+1), checks, log)
	defer healthSrv.Close()

	var wg sync.WaitGroup
	for _, start := range []func(context.Context){escalation.Start, retention.Start} {
		wg.Add(1)
		go func(start func(context.Context)) {
			defer wg.Done()
			start(ctx)
		}(start)
	}

	<-ctx.Done()
	log.Info("Shutting down...")
	wg.Wait()
}
