// Package memory holds map-backed repositories used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
)

type patientRepository struct {
	mu       sync.RWMutex
	patients map[string]model.PatientSnapshot
}

func NewPatientRepository() repository.PatientRepository {
	return &patientRepository{patients: make(map[string]model.PatientSnapshot)}
}

func (r *patientRepository) Save(ctx context.Context, patient *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := patient.Snapshot()
	stored, exists := r.patients[snap.ID]
	switch {
	case snap.Version == 0 && exists:
		return repository.ErrVersionConflict
	case snap.Version > 0 && !exists:
		return repository.ErrNotFound
	case exists && stored.Version != snap.Version:
		return repository.ErrVersionConflict
	}

	snap.Version++
	r.patients[snap.ID] = snap
	patient.MarkPersisted(snap.Version)
	return nil
}

func (r *patientRepository) FindByID(ctx context.Context, id string) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return model.RehydratePatient(snap), nil
}

func (r *patientRepository) FindByDoctor(ctx context.Context, doctorID string) ([]*model.Patient, error) {
	return r.filter(func(s model.PatientSnapshot) bool {
		return s.AssignedDoctor != nil && s.AssignedDoctor.ID == doctorID && s.ClosedAt == nil
	}), nil
}

func (r *patientRepository) ListActive(ctx context.Context) ([]*model.Patient, error) {
	return r.filter(func(s model.PatientSnapshot) bool {
		return !s.Status.IsTerminal()
	}), nil
}

func (r *patientRepository) ListUnassignedCritical(ctx context.Context, cutoff time.Time) ([]*model.Patient, error) {
	return r.filter(func(s model.PatientSnapshot) bool {
		return s.Status == model.StatusWaiting &&
			s.AssignedDoctor == nil &&
			s.EffectivePriority.IsCritical() &&
			s.ArrivedAt.Before(cutoff)
	}), nil
}

func (r *patientRepository) filter(keep func(model.PatientSnapshot) bool) []*model.Patient {
	r.mu.RLock()
	matched := make([]model.PatientSnapshot, 0, len(r.patients))
	for _, s := range r.patients {
		if keep(s) {
			matched = append(matched, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].EffectivePriority != matched[j].EffectivePriority {
			return matched[i].EffectivePriority < matched[j].EffectivePriority
		}
		return matched[i].ArrivedAt.Before(matched[j].ArrivedAt)
	})

	patients := make([]*model.Patient, len(matched))
	for i, s := range matched {
		patients[i] = model.RehydratePatient(s)
	}
	return patients
}
