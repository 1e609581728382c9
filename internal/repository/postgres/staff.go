package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
)

const staffColumns = `id, name, role, COALESCE(email, '') AS email, available, COALESCE(max_patient_load, 0) AS max_patient_load, COALESCE(password_hash, '') AS password_hash`

type staffRepository struct {
	BaseRepository
}

func NewStaffRepository(base BaseRepository) repository.StaffRepository {
	return &staffRepository{base}
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (s *model.Staff, err error) {
	defer r.observe("staff_get", time.Now(), &err)

	var staff model.Staff
	err = r.GetDB().GetContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff: %w", err)
	}
	return &staff, nil
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (s *model.Staff, err error) {
	defer r.observe("staff_get_by_email", time.Now(), &err)

	var staff model.Staff
	err = r.GetDB().GetContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE lower(email) = lower($1)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff by email: %w", err)
	}
	return &staff, nil
}

func (r *staffRepository) ListAvailable(ctx context.Context) (staff []*model.Staff, err error) {
	defer r.observe("staff_list_available", time.Now(), &err)

	query := `SELECT ` + staffColumns + ` FROM staff WHERE available ORDER BY id`
	if err = r.GetDB().SelectContext(ctx, &staff, query); err != nil {
		return nil, fmt.Errorf("failed to list available staff: %w", err)
	}
	return staff, nil
}
