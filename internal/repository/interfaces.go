package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/triage-api/internal/model"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

// All repository interfaces in one file
type (
	// PatientRepository persists Patient aggregates. Save inserts when the
	// aggregate version is zero, otherwise it updates only if the stored version
	// still matches and returns ErrVersionConflict when it does not.
	PatientRepository interface {
		Save(ctx context.Context, patient *model.Patient) error
		FindByID(ctx context.Context, id string) (*model.Patient, error)
		FindByDoctor(ctx context.Context, doctorID string) ([]*model.Patient, error)
		// ListActive returns open patients ordered by effective priority, then arrival.
		ListActive(ctx context.Context) ([]*model.Patient, error)
		// ListUnassignedCritical returns waiting P1/P2 patients that arrived before cutoff.
		ListUnassignedCritical(ctx context.Context, cutoff time.Time) ([]*model.Patient, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListByPatient(ctx context.Context, patientID string) ([]*model.AuditLog, error)
		ListByActor(ctx context.Context, actorID string) ([]*model.AuditLog, error)
		ListByAction(ctx context.Context, action string) ([]*model.AuditLog, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}

	StaffRepository interface {
		GetByID(ctx context.Context, id string) (*model.Staff, error)
		GetByEmail(ctx context.Context, email string) (*model.Staff, error)
		ListAvailable(ctx context.Context) ([]*model.Staff, error)
	}
)
