// Package triage holds the application use cases. Every operation returns a
// result.Result; domain events recorded by the aggregate are published only
// after the aggregate was saved.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/triage-api/internal/event"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
	"github.com/jwalitptl/triage-api/internal/service/audit"
	"github.com/jwalitptl/triage-api/internal/service/priority"
	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
	"github.com/jwalitptl/triage-api/pkg/result"
)

// maxAcceptAttempts bounds reloads after an optimistic version conflict.
const maxAcceptAttempts = 3

type Service struct {
	patients  repository.PatientRepository
	staff     repository.StaffRepository
	auditor   *audit.Service
	validator *priority.Validator
	engine    *priority.Engine
	events    event.Publisher
	locks     *keyedMutex
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Dependencies struct {
	Patients  repository.PatientRepository
	Staff     repository.StaffRepository
	Auditor   *audit.Service
	Validator *priority.Validator
	Engine    *priority.Engine
	Events    event.Publisher
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		patients:  deps.Patients,
		staff:     deps.Staff,
		auditor:   deps.Auditor,
		validator: deps.Validator,
		engine:    deps.Engine,
		events:    deps.Events,
		locks:     newKeyedMutex(),
		logger:    deps.Logger.With("component", "triage_service"),
		metrics:   deps.Metrics,
		now:       time.Now,
	}
	if s.validator == nil {
		s.validator = priority.NewValidator()
	}
	if s.engine == nil {
		s.engine = priority.NewEngine()
	}
	return s
}

type RegisterPatientCommand struct {
	Name           string
	Age            int
	Gender         model.Gender
	Symptoms       []string
	Vitals         model.VitalSigns
	ManualPriority *int
	RegisteredBy   string
}

func (s *Service) RegisterPatient(ctx context.Context, cmd RegisterPatientCommand) result.Result[*model.Patient] {
	return run(s, "register_patient", func() (*model.Patient, error) {
		vitals, err := s.validator.Validate(cmd.Vitals).Unpack()
		if err != nil {
			return nil, err
		}
		a, err := s.engine.Assess(vitals, cmd.ManualPriority)
		if err != nil {
			return nil, err
		}

		p, err := model.RegisterPatient(model.NewPatientParams{
			Name:         cmd.Name,
			Age:          cmd.Age,
			Gender:       cmd.Gender,
			Symptoms:     cmd.Symptoms,
			Vitals:       vitals,
			RegisteredBy: cmd.RegisteredBy,
			ArrivedAt:    s.now(),
		}, a.Computed, a.Manual)
		if err != nil {
			return nil, err
		}

		if err := s.patients.Save(ctx, p); err != nil {
			return nil, s.storageError("save patient", err)
		}
		s.recordPriority(p)
		s.publish(ctx, p)

		s.logger.Info("Patient registered",
			"patient_id", p.ID(),
			"priority", p.EffectivePriority().String(),
			"rules", len(a.Triggered))
		return p, nil
	})
}

func (s *Service) RecordVitals(ctx context.Context, patientID string, vitals model.VitalSigns, by string) result.Result[*model.Patient] {
	return run(s, "record_vitals", func() (*model.Patient, error) {
		valid, err := s.validator.Validate(vitals).Unpack()
		if err != nil {
			return nil, err
		}
		computed := s.engine.Calculate(valid)

		return s.mutate(ctx, patientID, vitalsNotFound, func(p *model.Patient) error {
			before := p.EffectivePriority()
			if err := p.RecordVitals(valid, computed, by, s.now()); err != nil {
				return err
			}
			if p.EffectivePriority() != before {
				s.recordPriority(p)
			}
			return nil
		})
	})
}

func (s *Service) ChangeStatus(ctx context.Context, patientID string, status model.Status, reason, by string) result.Result[*model.Patient] {
	return run(s, "change_status", func() (*model.Patient, error) {
		return s.mutate(ctx, patientID, patientNotFound, func(p *model.Patient) error {
			return p.TransitionTo(status, reason, by, s.now())
		})
	})
}

// AcceptCase assigns the case to doctorID if nobody holds it yet. Of several
// concurrent calls exactly one succeeds; the others get CaseAlreadyAssignedError.
func (s *Service) AcceptCase(ctx context.Context, patientID, doctorID string) result.Result[*model.Patient] {
	return run(s, "accept_case", func() (*model.Patient, error) {
		doctor, err := s.availableDoctor(ctx, doctorID)
		if err != nil {
			return nil, err
		}

		unlock := s.locks.Lock(patientID)
		defer unlock()

		for attempt := 1; ; attempt++ {
			p, err := s.load(ctx, patientID, patientNotFound)
			if err != nil {
				return nil, err
			}
			if err := p.AssignDoctor(doctor.Ref(), s.now()); err != nil {
				return nil, err
			}

			err = s.patients.Save(ctx, p)
			if errors.Is(err, repository.ErrVersionConflict) && attempt < maxAcceptAttempts {
				// another instance wrote first; the reload decides who holds the case
				continue
			}
			if err != nil {
				return nil, s.storageError("save patient", err)
			}
			s.publish(ctx, p)
			return p, nil
		}
	})
}

func (s *Service) ReassignCase(ctx context.Context, patientID, doctorID, reason, by string) result.Result[*model.Patient] {
	return run(s, "reassign_case", func() (*model.Patient, error) {
		doctor, err := s.availableDoctor(ctx, doctorID)
		if err != nil {
			return nil, err
		}
		return s.mutate(ctx, patientID, patientNotFound, func(p *model.Patient) error {
			return p.ReassignDoctor(doctor.Ref(), reason, by, s.now())
		})
	})
}

func (s *Service) OverridePriority(ctx context.Context, patientID string, manual int, reason, by string) result.Result[*model.Patient] {
	return run(s, "override_priority", func() (*model.Patient, error) {
		p, err := model.ParsePriority(manual)
		if err != nil {
			return nil, err
		}
		return s.mutate(ctx, patientID, patientNotFound, func(patient *model.Patient) error {
			if err := patient.OverridePriority(p, reason, by, s.now()); err != nil {
				return err
			}
			s.recordPriority(patient)
			return nil
		})
	})
}

func (s *Service) ClearPriorityOverride(ctx context.Context, patientID, reason, by string) result.Result[*model.Patient] {
	return run(s, "clear_priority_override", func() (*model.Patient, error) {
		return s.mutate(ctx, patientID, patientNotFound, func(p *model.Patient) error {
			if err := p.ClearPriorityOverride(reason, by, s.now()); err != nil {
				return err
			}
			s.recordPriority(p)
			return nil
		})
	})
}

func (s *Service) AddComment(ctx context.Context, patientID, authorID, content string, category model.CommentCategory) result.Result[model.Comment] {
	return run(s, "add_comment", func() (model.Comment, error) {
		author, err := s.member(ctx, authorID)
		if err != nil {
			return model.Comment{}, err
		}
		c, err := model.NewComment(*author, content, category, s.now())
		if err != nil {
			return model.Comment{}, err
		}
		if _, err := s.mutate(ctx, patientID, patientNotFound, func(p *model.Patient) error {
			return p.AddComment(c)
		}); err != nil {
			return model.Comment{}, err
		}
		return c, nil
	})
}

func (s *Service) GetPatient(ctx context.Context, patientID string) result.Result[*model.Patient] {
	return run(s, "get_patient", func() (*model.Patient, error) {
		return s.load(ctx, patientID, patientNotFound)
	})
}

// ListQueue returns open patients, most urgent first, then by arrival.
func (s *Service) ListQueue(ctx context.Context) result.Result[[]*model.Patient] {
	return run(s, "list_queue", func() ([]*model.Patient, error) {
		patients, err := s.patients.ListActive(ctx)
		if err != nil {
			return nil, s.storageError("list patients", err)
		}
		return patients, nil
	})
}

func (s *Service) GetDoctorPatients(ctx context.Context, doctorID string) result.Result[[]*model.Patient] {
	return run(s, "get_doctor_patients", func() ([]*model.Patient, error) {
		if strings.TrimSpace(doctorID) == "" {
			return nil, &model.PatientValidationError{Field: "doctor_id", Reason: "is required"}
		}
		patients, err := s.patients.FindByDoctor(ctx, doctorID)
		if err != nil {
			return nil, s.storageError("list doctor patients", err)
		}
		return patients, nil
	})
}

func (s *Service) GetAuditTrail(ctx context.Context, patientID string) result.Result[[]*model.AuditLog] {
	return run(s, "get_audit_trail", func() ([]*model.AuditLog, error) {
		if _, err := s.load(ctx, patientID, patientNotFound); err != nil {
			return nil, err
		}
		logs, err := s.auditor.ListByPatient(ctx, patientID)
		if err != nil {
			return nil, s.storageError("list audit logs", err)
		}
		return logs, nil
	})
}

// EvaluateVitals explains how a reading would be triaged without storing it.
func (s *Service) EvaluateVitals(ctx context.Context, vitals model.VitalSigns, manual *int) result.Result[priority.Assessment] {
	return run(s, "evaluate_vitals", func() (priority.Assessment, error) {
		valid, err := s.validator.Validate(vitals).Unpack()
		if err != nil {
			return priority.Assessment{}, err
		}
		return s.engine.Assess(valid, manual)
	})
}

// mutate runs load, fn, save and publish under the patient's lock.
func (s *Service) mutate(ctx context.Context, patientID string, notFound func(string) error, fn func(*model.Patient) error) (*model.Patient, error) {
	unlock := s.locks.Lock(patientID)
	defer unlock()

	p, err := s.load(ctx, patientID, notFound)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.patients.Save(ctx, p); err != nil {
		return nil, s.storageError("save patient", err)
	}
	s.publish(ctx, p)
	return p, nil
}

func (s *Service) load(ctx context.Context, patientID string, notFound func(string) error) (*model.Patient, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, &model.PatientValidationError{Field: "patient_id", Reason: "is required"}
	}
	p, err := s.patients.FindByID(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound(patientID)
	}
	if err != nil {
		return nil, s.storageError("load patient", err)
	}
	return p, nil
}

func (s *Service) member(ctx context.Context, staffID string) (*model.Staff, error) {
	if strings.TrimSpace(staffID) == "" {
		return nil, &model.PatientValidationError{Field: "staff_id", Reason: "is required"}
	}
	m, err := s.staff.GetByID(ctx, staffID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &model.StaffNotFoundError{StaffID: staffID}
	}
	if err != nil {
		return nil, s.storageError("load staff", err)
	}
	return m, nil
}

func (s *Service) doctor(ctx context.Context, staffID string) (*model.Staff, error) {
	m, err := s.member(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if m.Role != model.StaffRoleDoctor {
		return nil, &model.PatientValidationError{Field: "doctor_id", Reason: "staff member " + staffID + " is not a doctor"}
	}
	return m, nil
}

// availableDoctor is doctor plus the duty and open-case checks that gate
// taking a new case.
func (s *Service) availableDoctor(ctx context.Context, staffID string) (*model.Staff, error) {
	m, err := s.doctor(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if !m.Available {
		return nil, &model.DoctorUnavailableError{DoctorID: m.ID}
	}
	open, err := s.patients.FindByDoctor(ctx, m.ID)
	if err != nil {
		return nil, s.storageError("load doctor caseload", err)
	}
	if capacity := m.PatientCapacity(); len(open) >= capacity {
		return nil, &model.DoctorUnavailableError{DoctorID: m.ID, Load: len(open), Capacity: capacity}
	}
	return m, nil
}

// publish hands pending events to the bus. The write already succeeded, so
// a refused event is logged and dropped.
func (s *Service) publish(ctx context.Context, p *model.Patient) {
	for _, evt := range p.PendingEvents() {
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Error(err, "Failed to publish domain event",
				"event_type", string(evt.EventType()),
				"event_id", evt.EventID(),
				"patient_id", p.ID())
		}
	}
	p.ClearPendingEvents()
}

func (s *Service) recordPriority(p *model.Patient) {
	source := model.PrioritySourceEngine
	if p.ManualPriority() != nil {
		source = model.PrioritySourceManual
	}
	s.metrics.PrioritiesAssigned.WithLabelValues(p.EffectivePriority().String(), string(source)).Inc()
}

func (s *Service) storageError(op string, err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return apperrors.NewConflict("patient was modified concurrently, retry", err)
	}
	return apperrors.NewInternal(fmt.Errorf("%s: %w", op, err))
}

func patientNotFound(id string) error { return &model.PatientNotFoundError{PatientID: id} }

func vitalsNotFound(id string) error { return &model.PatientNotFoundForVitalsError{PatientID: id} }

// run converts errors and panics into failed results.
func run[T any](s *Service, op string, fn func() (T, error)) (res result.Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			err := apperrors.NewInternal(fmt.Errorf("%s panicked: %v", op, r))
			s.fail(op, err)
			res = result.Err[T](err)
		}
	}()

	v, err := fn()
	if err != nil {
		s.fail(op, err)
		return result.Err[T](err)
	}
	return result.Ok(v)
}

func (s *Service) fail(op string, err error) {
	code := apperrors.CodeOf(err)
	s.metrics.UseCaseFailures.WithLabelValues(op, fmt.Sprint(int(code))).Inc()
	if apperrors.IsExpected(err) {
		s.logger.Debug("Use case rejected", "operation", op, "error", err.Error())
		return
	}
	s.logger.Error(err, "Use case failed", "operation", op)
}
