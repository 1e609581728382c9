package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
)

const auditColumns = `id, actor_id, action, patient_id, details, created_at`

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) (err error) {
	defer r.observe("audit_create", time.Now(), &err)

	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.GetDB().ExecContext(ctx, query,
		log.ID,
		log.ActorID,
		log.Action,
		log.PatientID,
		[]byte(log.Details),
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) ListByPatient(ctx context.Context, patientID string) ([]*model.AuditLog, error) {
	return r.list(ctx, "audit_by_patient", "patient_id", patientID)
}

func (r *auditRepository) ListByActor(ctx context.Context, actorID string) ([]*model.AuditLog, error) {
	return r.list(ctx, "audit_by_actor", "actor_id", actorID)
}

func (r *auditRepository) ListByAction(ctx context.Context, action string) ([]*model.AuditLog, error) {
	return r.list(ctx, "audit_by_action", "action", action)
}

// list filters on a single trusted column name.
func (r *auditRepository) list(ctx context.Context, op, column, value string) (logs []*model.AuditLog, err error) {
	defer r.observe(op, time.Now(), &err)

	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE ` + column + ` = $1 ORDER BY created_at DESC`
	if err = r.GetDB().SelectContext(ctx, &logs, query, value); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (n int64, err error) {
	defer r.observe("audit_cleanup", time.Now(), &err)

	query := `
        DELETE FROM audit_logs
        WHERE created_at < $1
    `

	result, err := r.GetDB().ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected()
}
