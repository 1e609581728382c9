package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
)

// StaffRepository is seeded from configuration; the roster is not managed here.
type StaffRepository struct {
	mu    sync.RWMutex
	staff map[string]model.Staff
}

func NewStaffRepository(seed ...model.Staff) *StaffRepository {
	r := &StaffRepository{staff: make(map[string]model.Staff, len(seed))}
	for _, s := range seed {
		r.staff[s.ID] = s
	}
	return r
}

var _ repository.StaffRepository = (*StaffRepository)(nil)

// Put adds or replaces a staff member.
func (r *StaffRepository) Put(s model.Staff) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staff[s.ID] = s
}

func (r *StaffRepository) GetByID(ctx context.Context, id string) (*model.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

// GetByEmail matches case-insensitively.
func (r *StaffRepository) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.staff {
		if s.Email != "" && strings.EqualFold(s.Email, email) {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *StaffRepository) ListAvailable(ctx context.Context) ([]*model.Staff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Staff
	for _, s := range r.staff {
		if s.Available {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
