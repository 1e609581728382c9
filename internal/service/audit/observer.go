package audit

import (
	"context"

	"github.com/jwalitptl/triage-api/internal/event"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

const ObserverName = "audit"

// Observer writes exactly one audit entry per domain event. Storage failures
// are logged and counted, never returned.
type Observer struct {
	svc     *Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

var _ event.Observer = (*Observer)(nil)

func NewObserver(svc *Service, log *logger.Logger, m *metrics.Metrics) *Observer {
	return &Observer{svc: svc, logger: log.With("observer", ObserverName), metrics: m}
}

func (o *Observer) Name() string { return ObserverName }

func (o *Observer) Update(ctx context.Context, evt model.DomainEvent) error {
	err := o.svc.Log(ctx, ActorOf(evt), string(evt.EventType()), &LogOptions{
		PatientID: evt.AggregateID(),
		Details:   evt,
		At:        evt.OccurredAt(),
	})
	if err != nil {
		o.metrics.AuditWrites.WithLabelValues("failed").Inc()
		o.logger.Error(err, "Failed to write audit log",
			"event_type", string(evt.EventType()),
			"event_id", evt.EventID(),
			"patient_id", evt.AggregateID())
		return nil
	}
	o.metrics.AuditWrites.WithLabelValues("written").Inc()
	return nil
}

// ActorOf returns who caused the event, or SYSTEM for automatic detections.
func ActorOf(evt model.DomainEvent) string {
	var actor string
	switch e := evt.(type) {
	case model.PatientRegistered:
		actor = e.RegisteredBy
	case model.PatientPriorityChanged:
		actor = e.ChangedBy
	case model.PatientStatusChanged:
		actor = e.ChangedBy
	case model.CaseAssigned:
		actor = e.DoctorID
	case model.CaseReassigned:
		actor = e.ChangedBy
	}
	if actor == "" {
		return model.SystemActor
	}
	return actor
}
