package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/triage-api/internal/service/audit"
	"github.com/jwalitptl/triage-api/pkg/logger"
)

type AuditRetentionWorker struct {
	auditor       *audit.Service
	retentionDays int
	interval      time.Duration
	logger        *logger.Logger
}

func NewAuditRetentionWorker(auditor *audit.Service, retentionDays int, interval time.Duration, log *logger.Logger) *AuditRetentionWorker {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &AuditRetentionWorker{
		auditor:       auditor,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        log.With("worker", "audit_retention"),
	}
}

func (w *AuditRetentionWorker) Start(ctx context.Context) {
	if w.retentionDays <= 0 {
		w.logger.Info("Audit retention disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *AuditRetentionWorker) RunOnce(ctx context.Context) int64 {
	deleted, err := w.auditor.Cleanup(ctx, time.Duration(w.retentionDays)*24*time.Hour)
	if err != nil {
		w.logger.Error(err, "Audit cleanup failed")
		return 0
	}
	if deleted > 0 {
		w.logger.Info("Audit logs removed", "deleted", deleted)
	}
	return deleted
}
