// Package app holds the wiring shared by the api and worker binaries.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/triage-api/internal/config"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
	"github.com/jwalitptl/triage-api/internal/repository/memory"
	"github.com/jwalitptl/triage-api/internal/repository/postgres"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/messaging/redis"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	})
}

// Storage bundles the repositories for the configured driver.
type Storage struct {
	Patients repository.PatientRepository
	Staff    repository.StaffRepository
	Audits   repository.AuditRepository

	db *sqlx.DB
}

func OpenStorage(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Storage, error) {
	if cfg.Storage.Driver != "postgres" {
		log.Info("Using in-memory storage", "staff", len(cfg.Staff))
		return &Storage{
			Patients: memory.NewPatientRepository(),
			Staff:    memory.NewStaffRepository(SeedStaff(cfg.Staff)...),
			Audits:   memory.NewAuditRepository(),
		}, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	base := postgres.NewBaseRepository(db, m)
	return &Storage{
		Patients: postgres.NewPatientRepository(base),
		Staff:    postgres.NewStaffRepository(base),
		Audits:   postgres.NewAuditRepository(base),
		db:       db,
	}, nil
}

// Ping reports database health; in-memory storage is always up.
func (s *Storage) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func SeedStaff(roster []config.StaffConfig) []model.Staff {
	staff := make([]model.Staff, 0, len(roster))
	for _, s := range roster {
		staff = append(staff, model.Staff{
			ID:             s.ID,
			Name:           s.Name,
			Role:           model.StaffRole(s.Role),
			Email:          s.Email,
			Available:      s.Available,
			MaxPatientLoad: s.MaxPatientLoad,
			PasswordHash:   s.PasswordHash,
		})
	}
	return staff
}

// OpenBroker returns nil when Redis is disabled.
func OpenBroker(ctx context.Context, cfg config.RedisConfig, log *logger.Logger, m *metrics.Metrics) (*redis.RedisBroker, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return redis.NewRedisBroker(ctx, redis.Config{
		URL:                     cfg.URL,
		MaxRetries:              cfg.MaxRetries,
		PoolSize:                cfg.PoolSize,
		MinIdleConns:            cfg.MinIdleConns,
		BreakerMaxRequests:      cfg.Breaker.MaxRequests,
		BreakerInterval:         cfg.Breaker.Interval,
		BreakerTimeout:          cfg.Breaker.Timeout,
		BreakerFailureThreshold: cfg.Breaker.FailureThreshold,
	}, log, m)
}
