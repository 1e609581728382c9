package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type LogOptions struct {
	PatientID string
	Details   interface{}
	At        time.Time
}

// Log creates an audit log entry
func (s *Service) Log(ctx context.Context, actorID, action string, opts *LogOptions) error {
	if opts == nil {
		opts = &LogOptions{}
	}

	details := json.RawMessage(`{}`)
	if opts.Details != nil {
		raw, err := json.Marshal(opts.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		details = raw
	}

	if actorID == "" {
		actorID = model.SystemActor
	}
	at := opts.At
	if at.IsZero() {
		at = s.now()
	}

	log := &model.AuditLog{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Details:   details,
		CreatedAt: at.UTC(),
	}
	if opts.PatientID != "" {
		pid := opts.PatientID
		log.PatientID = &pid
	}

	return s.repo.Create(ctx, log)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*model.AuditLog, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ListByActor(ctx context.Context, actorID string) ([]*model.AuditLog, error) {
	return s.repo.ListByActor(ctx, actorID)
}

func (s *Service) ListByAction(ctx context.Context, action string) ([]*model.AuditLog, error) {
	return s.repo.ListByAction(ctx, action)
}

// Cleanup deletes entries older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.Cleanup(ctx, s.now().Add(-retention))
}
