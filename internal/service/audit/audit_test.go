package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository/memory"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

var at = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func meta(t model.EventType) model.EventMeta {
	return model.EventMeta{ID: "evt-" + string(t), Type: t, Timestamp: at, PatientID: "patient-1"}
}

func TestActorOf(t *testing.T) {
	cases := []struct {
		evt  model.DomainEvent
		want string
	}{
		{model.PatientRegistered{EventMeta: meta(model.EventPatientRegistered), RegisteredBy: "nurse-1"}, "nurse-1"},
		{model.PatientPriorityChanged{EventMeta: meta(model.EventPatientPriorityChanged), ChangedBy: "doc-1"}, "doc-1"},
		{model.PatientStatusChanged{EventMeta: meta(model.EventPatientStatusChanged), ChangedBy: "doc-2"}, "doc-2"},
		{model.CaseAssigned{EventMeta: meta(model.EventCaseAssigned), DoctorID: "doc-3"}, "doc-3"},
		{model.CaseReassigned{EventMeta: meta(model.EventCaseReassigned), ChangedBy: "admin-1"}, "admin-1"},
		{model.CriticalVitalsDetected{EventMeta: meta(model.EventCriticalVitalsDetected)}, model.SystemActor},
		{model.PatientPriorityChanged{EventMeta: meta(model.EventPatientPriorityChanged)}, model.SystemActor},
	}
	for _, tc := range cases {
		t.Run(string(tc.evt.EventType()), func(t *testing.T) {
			assert.Equal(t, tc.want, ActorOf(tc.evt))
		})
	}
}

func TestObserverWritesOneEntryPerEvent(t *testing.T) {
	repo := memory.NewAuditRepository()
	m := metrics.NewNop()
	obs := NewObserver(NewService(repo), logger.Nop(), m)

	for _, evt := range []model.DomainEvent{
		model.PatientRegistered{EventMeta: meta(model.EventPatientRegistered), Name: "Ana Souza", Priority: model.PriorityCritical, RegisteredBy: "nurse-1"},
		model.CriticalVitalsDetected{EventMeta: meta(model.EventCriticalVitalsDetected), Priority: model.PriorityCritical},
	} {
		require.NoError(t, obs.Update(context.Background(), evt))
	}

	logs, err := repo.ListByPatient(context.Background(), "patient-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)

	registered, err := repo.ListByAction(context.Background(), "PATIENT_REGISTERED")
	require.NoError(t, err)
	require.Len(t, registered, 1)
	assert.Equal(t, "nurse-1", registered[0].ActorID)
	assert.Equal(t, at, registered[0].CreatedAt)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(registered[0].Details, &details))
	assert.Equal(t, "Ana Souza", details["name"])
	assert.Equal(t, "evt-PATIENT_REGISTERED", details["event_id"])

	system, err := repo.ListByActor(context.Background(), model.SystemActor)
	require.NoError(t, err)
	assert.Len(t, system, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuditWrites.WithLabelValues("written")))
}

type failingRepo struct {
	mock.Mock
	memoryless
}

// memoryless satisfies the read side of the repository for failingRepo.
type memoryless struct{}

func (memoryless) ListByPatient(context.Context, string) ([]*model.AuditLog, error) { return nil, nil }
func (memoryless) ListByActor(context.Context, string) ([]*model.AuditLog, error) { return nil, nil }
func (memoryless) ListByAction(context.Context, string) ([]*model.AuditLog, error) { return nil, nil }
func (memoryless) Cleanup(context.Context, time.Time) (int64, error) { return 0, nil }

func (r *failingRepo) Create(ctx context.Context, log *model.AuditLog) error {
	return r.Called(ctx, log).Error(0)
}

func TestObserverSwallowsStorageFailure(t *testing.T) {
	repo := new(failingRepo)
	repo.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	m := metrics.NewNop()
	obs := NewObserver(NewService(repo), logger.Nop(), m)

	err := obs.Update(context.Background(), model.CaseAssigned{EventMeta: meta(model.EventCaseAssigned), DoctorID: "doc-1"})

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWrites.WithLabelValues("failed")))
}

func TestCleanupUsesRetentionWindow(t *testing.T) {
	repo := memory.NewAuditRepository()
	svc := NewService(repo)
	svc.now = func() time.Time { return at.Add(48 * time.Hour) }

	require.NoError(t, svc.Log(context.Background(), "nurse-1", "PATIENT_REGISTERED", &LogOptions{At: at}))
	require.NoError(t, svc.Log(context.Background(), "", "CRITICAL_VITALS_DETECTED", &LogOptions{At: at.Add(47 * time.Hour)}))

	removed, err := svc.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	left, err := svc.ListByActor(context.Background(), model.SystemActor)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.JSONEq(t, `{}`, string(left[0].Details))
}
