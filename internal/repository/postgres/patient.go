package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
)

const uniqueViolation = "23505"

const openStatuses = `status NOT IN ('discharged', 'transferred', 'completed')`

// patientRow keeps the indexed columns beside the full aggregate document.
type patientRow struct {
	Document []byte `db:"document"`
	Version  int    `db:"version"`
}

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Save(ctx context.Context, patient *model.Patient) (err error) {
	defer r.observe("patient_save", time.Now(), &err)

	snap := patient.Snapshot()
	next := snap.Version + 1
	snap.Version = next
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode patient: %w", err)
	}

	var doctorID *string
	if snap.AssignedDoctor != nil {
		doctorID = &snap.AssignedDoctor.ID
	}

	if next == 1 {
		err = r.insert(ctx, snap, doctorID, doc)
	} else {
		err = r.update(ctx, snap, doctorID, doc)
	}
	if err != nil {
		return err
	}

	patient.MarkPersisted(next)
	return nil
}

func (r *patientRepository) insert(ctx context.Context, snap model.PatientSnapshot, doctorID *string, doc []byte) error {
	query := `
		INSERT INTO patients (
			id, name, status, effective_priority, assigned_doctor_id,
			arrived_at, document, version, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.GetDB().ExecContext(ctx, query,
		snap.ID,
		snap.Name,
		snap.Status,
		int(snap.EffectivePriority),
		doctorID,
		snap.ArrivedAt,
		doc,
		snap.Version,
		time.Now().UTC(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repository.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

func (r *patientRepository) update(ctx context.Context, snap model.PatientSnapshot, doctorID *string, doc []byte) error {
	query := `
		UPDATE patients
		SET name = $2, status = $3, effective_priority = $4, assigned_doctor_id = $5,
			document = $6, version = $7, updated_at = $8
		WHERE id = $1 AND version = $9
	`
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			snap.ID,
			snap.Name,
			snap.Status,
			int(snap.EffectivePriority),
			doctorID,
			doc,
			snap.Version,
			time.Now().UTC(),
			snap.Version-1,
		)
		if err != nil {
			return fmt.Errorf("failed to update patient: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update patient: %w", err)
		}
		if n == 1 {
			return nil
		}

		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM patients WHERE id = $1)`, snap.ID); err != nil {
			return fmt.Errorf("failed to check patient: %w", err)
		}
		if !exists {
			return repository.ErrNotFound
		}
		return repository.ErrVersionConflict
	})
}

func (r *patientRepository) FindByID(ctx context.Context, id string) (p *model.Patient, err error) {
	defer r.observe("patient_find", time.Now(), &err)

	var row patientRow
	err = r.GetDB().GetContext(ctx, &row, `SELECT document, version FROM patients WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return row.decode()
}

func (r *patientRepository) FindByDoctor(ctx context.Context, doctorID string) ([]*model.Patient, error) {
	query := `SELECT document, version FROM patients WHERE assigned_doctor_id = $1 AND ` + openStatuses +
		` ORDER BY effective_priority, arrived_at`
	return r.list(ctx, "patient_by_doctor", query, doctorID)
}

func (r *patientRepository) ListActive(ctx context.Context) ([]*model.Patient, error) {
	query := `SELECT document, version FROM patients WHERE ` + openStatuses +
		` ORDER BY effective_priority, arrived_at`
	return r.list(ctx, "patient_list_active", query)
}

func (r *patientRepository) ListUnassignedCritical(ctx context.Context, cutoff time.Time) ([]*model.Patient, error) {
	query := `
		SELECT document, version FROM patients
		WHERE status = 'waiting' AND assigned_doctor_id IS NULL
			AND effective_priority <= $1 AND arrived_at < $2
		ORDER BY effective_priority, arrived_at
	`
	return r.list(ctx, "patient_unassigned_critical", query, int(model.PriorityHigh), cutoff)
}

func (r *patientRepository) list(ctx context.Context, op, query string, args ...interface{}) (patients []*model.Patient, err error) {
	defer r.observe(op, time.Now(), &err)

	var rows []patientRow
	if err = r.GetDB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	patients = make([]*model.Patient, 0, len(rows))
	for _, row := range rows {
		p, err := row.decode()
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, nil
}

func (row patientRow) decode() (*model.Patient, error) {
	var snap model.PatientSnapshot
	if err := json.Unmarshal(row.Document, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode patient document: %w", err)
	}
	snap.Version = row.Version
	return model.RehydratePatient(snap), nil
}
