package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/internal/repository"
	"github.com/jwalitptl/triage-api/internal/service/notification"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

// EventEscalated tags re-alerts so staff clients can tell them apart from
// first alerts.
const EventEscalated model.EventType = "PATIENT_ESCALATED"

type EscalationConfig struct {
	// After is how long a P1/P2 patient may wait unassigned.
	After         time.Duration
	Interval      time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// EscalationWorker re-alerts all available staff about critical patients
// nobody has accepted. A patient is escalated at most once per After.
type EscalationWorker struct {
	patients repository.PatientRepository
	notifier notification.Service
	config   EscalationConfig
	recent   *cache.Cache
	now      func() time.Time
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewEscalationWorker(
	patients repository.PatientRepository,
	notifier notification.Service,
	config EscalationConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *EscalationWorker {
	if config.After <= 0 {
		config.After = 10 * time.Minute
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	return &EscalationWorker{
		patients: patients,
		notifier: notifier,
		config:   config,
		recent:   cache.New(config.After, 2*config.After),
		now:      time.Now,
		logger:   log.With("worker", "escalation"),
		metrics:  m,
	}
}

func (w *EscalationWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting escalation worker", "after", w.config.After.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down escalation worker")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error(err, "Escalation pass failed")
			}
		}
	}
}

// RunOnce performs one pass and returns how many patients were escalated.
func (w *EscalationWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	waiting, err := w.patients.ListUnassignedCritical(ctx, now.Add(-w.config.After))
	if err != nil {
		return 0, fmt.Errorf("list unassigned critical patients: %w", err)
	}

	escalated := 0
	for _, p := range waiting {
		if _, seen := w.recent.Get(p.ID()); seen {
			continue
		}

		alert := escalationAlert(p, now)
		err := retry(ctx, w.config.RetryAttempts, w.config.RetryDelay, func() error {
			return w.notifier.NotifyAllAvailableStaff(ctx, alert, model.UrgencyHigh)
		})
		if err != nil {
			w.logger.Error(err, "Failed to escalate patient", "patient_id", p.ID())
			continue
		}

		w.recent.SetDefault(p.ID(), now)
		w.metrics.Escalations.Inc()
		escalated++
	}
	return escalated, nil
}

func escalationAlert(p *model.Patient, now time.Time) model.StaffAlert {
	waited := p.WaitingTime(now).Round(time.Minute)
	return model.StaffAlert{
		PatientID: p.ID(),
		EventType: EventEscalated,
		Priority:  p.EffectivePriority(),
		Title:     fmt.Sprintf("ESCALATION %s: %s still unassigned", p.EffectivePriority().DisplayName(), p.Name()),
		Body:      fmt.Sprintf("%s has waited %s without a doctor", p.Name(), waited),
	}
}
