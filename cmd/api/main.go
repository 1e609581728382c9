package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/triage-api/internal/app"
	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/email"
	"github.com/jwalitptl/triage-api/internal/event"
	audithandler "github.com/jwalitptl/triage-api/internal/handler/audit"
	authhandler "github.com/jwalitptl/triage-api/internal/handler/auth"
	"github.com/jwalitptl/triage-api/internal/handler/health"
	"github.com/jwalitptl/triage-api/internal/handler/patient"
	"github.com/jwalitptl/triage-api/internal/middleware"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/realtime"
	"github.com/jwalitptl/triage-api/internal/router"
	"github.com/jwalitptl/triage-api/internal/service/audit"
	authsvc "github.com/jwalitptl/triage-api/internal/service/auth"
	"github.com/jwalitptl/triage-api/internal/service/notification"
	"github.com/jwalitptl/triage-api/internal/service/queue"
	"github.com/jwalitptl/triage-api/internal/service/triage"
	"github.com/jwalitptl/triage-api/pkg/auth"
	"github.com/jwalitptl/triage-api/pkg/messaging"
	"github.com/jwalitptl/triage-api/pkg/metrics"
	"github.com/jwalitptl/triage-api/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg.Log)
	m := metrics.NewMetrics("triage", "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := app.OpenStorage(ctx, cfg, log, m)
	if err != nil {
		log.Fatal(err, "Failed to open storage", "driver", cfg.Storage.Driver)
	}
	defer storage.Close()

	checks := map[string]health.Check{"storage": storage.Ping}

	// A nil broker disables in-app alerts, queue mirroring and the relay.
	var broker messaging.Broker
	redisBroker, err := app.OpenBroker(ctx, cfg.Redis, log, m)
	if err != nil {
		log.Fatal(err, "Failed to connect to Redis")
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

	bus := event.NewBus(event.Config{ObserverTimeout: cfg.Bus.ObserverTimeout}, log, m)
	auditor := audit.NewService(storage.Audits)
	notifier := notification.NewService(
		notification.Config{CacheTTL: cfg.Notification.CacheTTL},
		storage.Staff, broker, mailer, log, m,
	)

	triageSvc := triage.NewService(triage.Dependencies{
		Patients: storage.Patients,
		Staff:    storage.Staff,
		Auditor:  auditor,
		Events:   bus,
		Logger:   log,
		Metrics:  m,
	})

	gateway := realtime.NewGateway(cfg.Realtime, triageSvc, log, m)

	bus.SubscribeAll(audit.NewObserver(auditor, log, m))
	bus.SubscribeAll(notification.NewObserver(notifier, log, m))
	bus.SubscribeAll(gateway)
	if broker != nil {
		q := queue.NewObserver(broker)
		bus.Subscribe(model.EventPatientRegistered, q)
		bus.Subscribe(model.EventPatientPriorityChanged, q)

		if cfg.Realtime.RelayEnabled {
			relay := realtime.NewRelay(broker, gateway, log)
			go func() {
				if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error(err, "Realtime relay stopped")
				}
			}()
		}
	}

	var (
		jwtSvc auth.JWTService
		authH  router.PublicHandler
	)
	if cfg.JWT.Enabled {
		jwtSvc = auth.NewJWTManager(cfg.JWT)
		authH = authhandler.NewHandler(
			authsvc.NewService(storage.Staff, security.NewBcryptHasher(0), jwtSvc, auditor, log),
		)
	} else {
		log.Warn("JWT disabled; trusting the X-Staff-ID header")
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		patient.NewHandler(triageSvc),
		audithandler.NewHandler(auditor),
		authH,
		health.NewHandler(checks, prometheus.DefaultGatherer),
		gateway,
		m,
		router.RouterConfig{
			RateLimit:      cfg.RateLimit,
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			Logger:         *log.Zerolog(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("Starting server", "addr", srv.Addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	gateway.Close()

	busCtx, cancelBus := context.WithTimeout(context.Background(), cfg.Bus.ShutdownTimeout)
	defer cancelBus()
	if err := bus.Close(busCtx); err != nil {
		log.Error(err, "Event bus did not drain")
	}

	log.Info("Server exited properly")
}
