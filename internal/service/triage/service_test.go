package triage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/triage-api/internal/event"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
	"github.com/jwalitptl/triage-api/internal/repository/memory"
	"github.com/jwalitptl/triage-api/internal/service/audit"
	"github.com/jwalitptl/triage-api/internal/service/notification"
	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []model.DomainEvent
}

func (c *capturePublisher) Publish(_ context.Context, evt model.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturePublisher) types() []model.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType()
	}
	return out
}

type fixture struct {
	svc      *Service
	patients repository.PatientRepository
	audits   repository.AuditRepository
	events   *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		patients: memory.NewPatientRepository(),
		audits:   memory.NewAuditRepository(),
		events:   &capturePublisher{},
	}
	f.svc = newService(f.patients, f.audits, f.events)
	return f
}

var roster = []model.Staff{
	{ID: "doc-1", Name: "Dr. Lima", Role: model.StaffRoleDoctor, Available: true},
	{ID: "doc-2", Name: "Dr. Reis", Role: model.StaffRoleDoctor, Available: true},
	{ID: "nurse-1", Name: "Bea Costa", Role: model.StaffRoleNurse, Available: true},
}

func newService(patients repository.PatientRepository, audits repository.AuditRepository, pub event.Publisher) *Service {
	return newServiceWithStaff(patients, audits, pub, roster...)
}

func newServiceWithStaff(patients repository.PatientRepository, audits repository.AuditRepository, pub event.Publisher, staff ...model.Staff) *Service {
	svc := NewService(Dependencies{
		Patients: patients,
		Staff:    memory.NewStaffRepository(staff...),
		Auditor:  audit.NewService(audits),
		Events:   pub,
		Logger:   logger.Nop(),
		Metrics:  metrics.NewNop(),
	})
	svc.now = func() time.Time { return t0 }
	return svc
}

func normalVitals() model.VitalSigns {
	return model.VitalSigns{HeartRate: 75, Temperature: 36.8, OxygenSaturation: 98, RespiratoryRate: 14}
}

func (f *fixture) register(t *testing.T, vitals model.VitalSigns, manual *int) *model.Patient {
	t.Helper()
	p, err := f.svc.RegisterPatient(context.Background(), RegisterPatientCommand{
		Name:           "Ana Souza",
		Age:            42,
		Gender:         model.GenderFemale,
		Symptoms:       []string{"shortness of breath"},
		Vitals:         vitals,
		ManualPriority: manual,
		RegisteredBy:   "nurse-1",
	}).Unpack()
	require.NoError(t, err)
	return p
}

func TestRegisterPatientEndToEnd(t *testing.T) {
	patients := memory.NewPatientRepository()
	audits := memory.NewAuditRepository()
	bus := event.NewBus(event.Config{ObserverTimeout: time.Second}, logger.Nop(), metrics.NewNop())

	notifier := new(notifierMock)
	notifier.On("NotifyAllAvailableStaff", mock.Anything, mock.Anything, model.UrgencyHigh).Return(nil).Once()
	bus.SubscribeAll(notification.NewObserver(notifier, logger.Nop(), metrics.NewNop()))
	bus.SubscribeAll(audit.NewObserver(audit.NewService(audits), logger.Nop(), metrics.NewNop()))

	svc := newService(patients, audits, bus)
	res := svc.RegisterPatient(context.Background(), RegisterPatientCommand{
		Name:         "Ana Souza",
		Age:          42,
		Gender:       model.GenderFemale,
		Symptoms:     []string{"shortness of breath"},
		Vitals:       model.VitalSigns{HeartRate: 150, OxygenSaturation: 85, Temperature: 37, RespiratoryRate: 18},
		RegisteredBy: "nurse-1",
	})
	require.True(t, res.IsOk(), res.String())

	p, _ := res.Value()
	assert.Equal(t, model.PriorityCritical, p.ComputedPriority())
	assert.Empty(t, p.PendingEvents())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	notifier.AssertExpectations(t)
	notifier.AssertNumberOfCalls(t, "NotifyAllAvailableStaff", 1)

	entries, err := audits.ListByPatient(context.Background(), p.ID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "PATIENT_REGISTERED", entries[0].Action)
	assert.Equal(t, "nurse-1", entries[0].ActorID)
}

// countingAudits records how many entries were written.
type countingAudits struct {
	repository.AuditRepository
	mu      sync.Mutex
	creates int
}

func (c *countingAudits) Create(ctx context.Context, entry *model.AuditLog) error {
	c.mu.Lock()
	c.creates++
	c.mu.Unlock()
	return c.AuditRepository.Create(ctx, entry)
}

func (c *countingAudits) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates
}

func TestRegisterPatientSurvivesFailingNotifications(t *testing.T) {
	tests := []struct {
		name  string
		setup func(n *notifierMock)
	}{
		{"delivery error", func(n *notifierMock) {
			n.On("NotifyAllAvailableStaff", mock.Anything, mock.Anything, mock.Anything).
				Return(errors.New("smtp down"))
		}},
		{"delivery panic", func(n *notifierMock) {
			n.On("NotifyAllAvailableStaff", mock.Anything, mock.Anything, mock.Anything).
				Run(func(mock.Arguments) { panic("notifier exploded") }).
				Return(nil)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audits := &countingAudits{AuditRepository: memory.NewAuditRepository()}
			bus := event.NewBus(event.Config{ObserverTimeout: time.Second}, logger.Nop(), metrics.NewNop())

			notifier := new(notifierMock)
			tt.setup(notifier)
			bus.SubscribeAll(notification.NewObserver(notifier, logger.Nop(), metrics.NewNop()))
			bus.SubscribeAll(audit.NewObserver(audit.NewService(audits), logger.Nop(), metrics.NewNop()))

			svc := newService(memory.NewPatientRepository(), audits, bus)
			res := svc.RegisterPatient(context.Background(), RegisterPatientCommand{
				Name:         "Ana Souza",
				Age:          42,
				Gender:       model.GenderFemale,
				Symptoms:     []string{"shortness of breath"},
				Vitals:       model.VitalSigns{HeartRate: 150, OxygenSaturation: 85, Temperature: 37, RespiratoryRate: 18},
				RegisteredBy: "nurse-1",
			})
			require.True(t, res.IsOk(), res.String())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			require.NoError(t, bus.Close(ctx))

			notifier.AssertNumberOfCalls(t, "NotifyAllAvailableStaff", 1)
			assert.Equal(t, 1, audits.count())
		})
	}
}

func TestRegisterPatientPublishesExactlyOneEvent(t *testing.T) {
	f := newFixture(t)
	f.register(t, model.VitalSigns{HeartRate: 150, OxygenSaturation: 85, Temperature: 37, RespiratoryRate: 18}, nil)

	assert.Equal(t, []model.EventType{model.EventPatientRegistered}, f.events.types())
}

func TestRegisterPatientRejectsInvalidVitals(t *testing.T) {
	f := newFixture(t)
	vitals := normalVitals()
	vitals.HeartRate = 260

	res := f.svc.RegisterPatient(context.Background(), RegisterPatientCommand{
		Name: "Ana Souza", Age: 42, Gender: model.GenderFemale, Symptoms: []string{"cough"}, Vitals: vitals,
	})

	require.True(t, res.IsErr())
	var limit *model.PhysiologicalLimitExceededError
	assert.ErrorAs(t, res.Error(), &limit)
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(res.Error()))
	assert.Empty(t, f.events.types())

	active, err := f.patients.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestManualPriorityTakesPrecedence(t *testing.T) {
	f := newFixture(t)
	manual := 1
	p := f.register(t, normalVitals(), &manual)

	assert.Equal(t, model.PriorityNonUrgent, p.ComputedPriority())
	assert.Equal(t, model.PriorityCritical, p.EffectivePriority())

	// new vitals change the computed value but not the effective one
	worse := normalVitals()
	worse.OxygenSaturation = 93
	p, err := f.svc.RecordVitals(context.Background(), p.ID(), worse, "nurse-1").Unpack()
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, p.ComputedPriority())
	assert.Equal(t, model.PriorityCritical, p.EffectivePriority())

	p, err = f.svc.ClearPriorityOverride(context.Background(), p.ID(), "reassessed", "doc-1").Unpack()
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, p.EffectivePriority())
}

func TestOverridePriorityRejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)

	for _, v := range []int{0, 6} {
		res := f.svc.OverridePriority(context.Background(), p.ID(), v, "gut feeling", "doc-1")
		var perr *model.PriorityOverrideError
		assert.ErrorAs(t, res.Error(), &perr)
	}

	bad := 9
	res := f.svc.RegisterPatient(context.Background(), RegisterPatientCommand{
		Name: "Ana Souza", Age: 42, Gender: model.GenderFemale, Symptoms: []string{"cough"},
		Vitals: normalVitals(), ManualPriority: &bad,
	})
	var perr *model.PriorityOverrideError
	assert.ErrorAs(t, res.Error(), &perr)
}

func TestRecordVitalsRaisesCriticalAndPriorityEvents(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)

	critical := normalVitals()
	critical.OxygenSaturation = 85
	_, err := f.svc.RecordVitals(context.Background(), p.ID(), critical, "nurse-1").Unpack()
	require.NoError(t, err)

	assert.Equal(t, []model.EventType{
		model.EventPatientRegistered,
		model.EventPatientPriorityChanged,
		model.EventCriticalVitalsDetected,
	}, f.events.types())
}

func TestRecordVitalsUnknownPatient(t *testing.T) {
	f := newFixture(t)
	res := f.svc.RecordVitals(context.Background(), "missing", normalVitals(), "nurse-1")

	var nf *model.PatientNotFoundForVitalsError
	assert.ErrorAs(t, res.Error(), &nf)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(res.Error()))
}

func TestChangeStatusRejectsIllegalTransition(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)

	res := f.svc.ChangeStatus(context.Background(), p.ID(), model.StatusDischarged, "sent home", "doc-1")
	var terr *model.InvalidTransitionError
	require.ErrorAs(t, res.Error(), &terr)
	assert.Equal(t, model.StatusWaiting, terr.From)
	assert.Equal(t, model.StatusDischarged, terr.To)

	stored, err := f.svc.GetPatient(context.Background(), p.ID()).Unpack()
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaiting, stored.Status())
}

func TestConcurrentAcceptanceHasOneWinner(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, doc := range []string{"doc-1", "doc-2"} {
		wg.Add(1)
		go func(i int, doc string) {
			defer wg.Done()
			errs[i] = f.svc.AcceptCase(context.Background(), p.ID(), doc).Error()
		}(i, doc)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		var already *model.CaseAlreadyAssignedError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &already):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)
	assert.Zero(t, f.svc.locks.size())
}

func TestAcceptanceAcrossInstancesUsesVersioning(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)
	other := newService(f.patients, f.audits, &capturePublisher{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, svc := range []*Service{f.svc, other} {
		wg.Add(1)
		go func(i int, svc *Service) {
			defer wg.Done()
			errs[i] = svc.AcceptCase(context.Background(), p.ID(), []string{"doc-1", "doc-2"}[i]).Error()
		}(i, svc)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var already *model.CaseAlreadyAssignedError
		assert.ErrorAs(t, err, &already)
	}
	assert.Equal(t, 1, ok)
}

func TestAcceptCaseRequiresDoctor(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)

	var verr *model.PatientValidationError
	assert.ErrorAs(t, f.svc.AcceptCase(context.Background(), p.ID(), "nurse-1").Error(), &verr)

	var snf *model.StaffNotFoundError
	assert.ErrorAs(t, f.svc.AcceptCase(context.Background(), p.ID(), "ghost").Error(), &snf)
}

func TestAcceptCaseRequiresAvailableDoctor(t *testing.T) {
	patients := memory.NewPatientRepository()
	svc := newServiceWithStaff(patients, memory.NewAuditRepository(), &capturePublisher{},
		model.Staff{ID: "doc-off", Name: "Dr. Off", Role: model.StaffRoleDoctor, Available: false},
		model.Staff{ID: "doc-full", Name: "Dr. Full", Role: model.StaffRoleDoctor, Available: true, MaxPatientLoad: 1},
		model.Staff{ID: "doc-1", Name: "Dr. Lima", Role: model.StaffRoleDoctor, Available: true},
		model.Staff{ID: "nurse-1", Name: "Bea Costa", Role: model.StaffRoleNurse, Available: true},
	)
	f := &fixture{svc: svc, patients: patients, events: &capturePublisher{}}
	ctx := context.Background()

	first := f.register(t, normalVitals(), nil)
	second := f.register(t, normalVitals(), nil)

	res := svc.AcceptCase(ctx, first.ID(), "doc-off")
	var unavailable *model.DoctorUnavailableError
	require.ErrorAs(t, res.Error(), &unavailable)
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(res.Error()))

	p, err := patients.FindByID(ctx, first.ID())
	require.NoError(t, err)
	assert.Nil(t, p.AssignedDoctor())

	_, err = svc.AcceptCase(ctx, first.ID(), "doc-full").Unpack()
	require.NoError(t, err)

	res = svc.AcceptCase(ctx, second.ID(), "doc-full")
	require.ErrorAs(t, res.Error(), &unavailable)
	assert.Equal(t, 1, unavailable.Load)
	assert.Equal(t, 1, unavailable.Capacity)

	_, err = svc.AcceptCase(ctx, second.ID(), "doc-1").Unpack()
	require.NoError(t, err)

	t.Run("reassign", func(t *testing.T) {
		res := svc.ReassignCase(ctx, second.ID(), "doc-off", "handover", "doc-1")
		assert.ErrorAs(t, res.Error(), &unavailable)

		res = svc.ReassignCase(ctx, second.ID(), "doc-full", "handover", "doc-1")
		assert.ErrorAs(t, res.Error(), &unavailable)

		p, err := patients.FindByID(ctx, second.ID())
		require.NoError(t, err)
		assert.Equal(t, "doc-1", p.AssignedDoctor().ID)
	})
}

func TestAcceptThenReassign(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)

	p, err := f.svc.AcceptCase(context.Background(), p.ID(), "doc-1").Unpack()
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, p.Status())

	p, err = f.svc.ReassignCase(context.Background(), p.ID(), "doc-2", "end of shift", "doc-1").Unpack()
	require.NoError(t, err)
	assert.Equal(t, "doc-2", p.AssignedDoctor().ID)

	res := f.svc.ReassignCase(context.Background(), p.ID(), "doc-2", "again", "doc-1")
	var rerr *model.ReassignmentError
	assert.ErrorAs(t, res.Error(), &rerr)

	mine, err := f.svc.GetDoctorPatients(context.Background(), "doc-2").Unpack()
	require.NoError(t, err)
	require.Len(t, mine, 1)

	assert.Equal(t, []model.EventType{
		model.EventPatientRegistered,
		model.EventCaseAssigned,
		model.EventPatientStatusChanged,
		model.EventCaseReassigned,
	}, f.events.types())
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	p := f.register(t, normalVitals(), nil)

	c, err := f.svc.AddComment(context.Background(), p.ID(), "nurse-1", "Patient is anxious but stable", model.CommentObservation).Unpack()
	require.NoError(t, err)
	assert.Equal(t, "Bea Costa", c.AuthorName)

	stored, err := f.svc.GetPatient(context.Background(), p.ID()).Unpack()
	require.NoError(t, err)
	require.Len(t, stored.Comments(), 1)

	res := f.svc.AddComment(context.Background(), p.ID(), "nurse-1", "ok", model.CommentObservation)
	var cerr *model.CommentValidationError
	assert.ErrorAs(t, res.Error(), &cerr)
}

func TestListQueueOrdersByUrgency(t *testing.T) {
	f := newFixture(t)
	low := f.register(t, normalVitals(), nil)
	crit := normalVitals()
	crit.OxygenSaturation = 85
	high := f.register(t, crit, nil)

	queue, err := f.svc.ListQueue(context.Background()).Unpack()
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, high.ID(), queue[0].ID())
	assert.Equal(t, low.ID(), queue[1].ID())
}

func TestGetAuditTrailRequiresPatient(t *testing.T) {
	f := newFixture(t)
	res := f.svc.GetAuditTrail(context.Background(), "missing")

	var nf *model.PatientNotFoundError
	assert.ErrorAs(t, res.Error(), &nf)
}

func TestEvaluateVitalsExplainsRules(t *testing.T) {
	f := newFixture(t)
	v := model.VitalSigns{HeartRate: 155, Temperature: 38.6, OxygenSaturation: 88, RespiratoryRate: 22}

	a, err := f.svc.EvaluateVitals(context.Background(), v, nil).Unpack()
	require.NoError(t, err)
	assert.Equal(t, model.PriorityCritical, a.Computed)
	assert.GreaterOrEqual(t, len(a.Triggered), 2)
	assert.Empty(t, f.events.types())
}

type panickingRepo struct {
	repository.PatientRepository
}

func (panickingRepo) FindByID(context.Context, string) (*model.Patient, error) {
	panic("driver bug")
}

func TestPanicBecomesInternalFailure(t *testing.T) {
	svc := newService(panickingRepo{memory.NewPatientRepository()}, memory.NewAuditRepository(), &capturePublisher{})

	res := svc.GetPatient(context.Background(), "patient-1")
	require.True(t, res.IsErr())
	assert.Equal(t, apperrors.ErrInternal, apperrors.CodeOf(res.Error()))
	assert.Contains(t, res.Error().Error(), "driver bug")
}

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) NotifyStaff(ctx context.Context, staffID string, alert model.StaffAlert, urgency model.Urgency) error {
	return m.Called(ctx, staffID, alert, urgency).Error(0)
}

func (m *notifierMock) NotifyAllAvailableStaff(ctx context.Context, alert model.StaffAlert, urgency model.Urgency) error {
	return m.Called(ctx, alert, urgency).Error(0)
}
