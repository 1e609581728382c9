package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
)

type auditRepository struct {
	mu   sync.RWMutex
	logs []model.AuditLog
}

func NewAuditRepository() repository.AuditRepository {
	return &auditRepository{}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := *log
	entry.Details = append([]byte(nil), log.Details...)
	if log.PatientID != nil {
		id := *log.PatientID
		entry.PatientID = &id
	}
	r.logs = append(r.logs, entry)
	return nil
}

func (r *auditRepository) ListByPatient(ctx context.Context, patientID string) ([]*model.AuditLog, error) {
	return r.filter(func(l model.AuditLog) bool {
		return l.PatientID != nil && *l.PatientID == patientID
	}), nil
}

func (r *auditRepository) ListByActor(ctx context.Context, actorID string) ([]*model.AuditLog, error) {
	return r.filter(func(l model.AuditLog) bool { return l.ActorID == actorID }), nil
}

func (r *auditRepository) ListByAction(ctx context.Context, action string) ([]*model.AuditLog, error) {
	return r.filter(func(l model.AuditLog) bool { return l.Action == action }), nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.logs[:0]
	var removed int64
	for _, l := range r.logs {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.logs = kept
	return removed, nil
}

// filter returns matches newest first, like the SQL implementation.
func (r *auditRepository) filter(keep func(model.AuditLog) bool) []*model.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.AuditLog
	for i := range r.logs {
		if keep(r.logs[i]) {
			l := r.logs[i]
			out = append(out, &l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
