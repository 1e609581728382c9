package notification

import (
	"context"
	"fmt"

	"github.com/jwalitptl/triage-api/internal/event"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

const ObserverName = "notification"

// Observer turns domain events into staff alerts. Delivery failures are
// logged and counted, never returned: alerting must not affect the bus.
type Observer struct {
	svc     Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

var _ event.Observer = (*Observer)(nil)

func NewObserver(svc Service, log *logger.Logger, m *metrics.Metrics) *Observer {
	return &Observer{svc: svc, logger: log.With("observer", ObserverName), metrics: m}
}

func (o *Observer) Name() string { return ObserverName }

func (o *Observer) Update(ctx context.Context, evt model.DomainEvent) error {
	switch e := evt.(type) {
	case model.PatientRegistered:
		alert := model.StaffAlert{
			PatientID: e.PatientID,
			EventType: e.Type,
			Priority:  e.Priority,
			Title:     fmt.Sprintf("%s: new patient %s", e.Priority.DisplayName(), e.Name),
			Body:      fmt.Sprintf("%s registered with symptoms: %v", e.Name, e.Symptoms),
		}
		o.check(evt, o.svc.NotifyAllAvailableStaff(ctx, alert, e.Priority.Urgency()))

	case model.PatientPriorityChanged:
		if !e.Escalated() {
			return nil
		}
		alert := model.StaffAlert{
			PatientID: e.PatientID,
			EventType: e.Type,
			Priority:  e.NewPriority,
			Title:     fmt.Sprintf("Priority escalated: %s is now %s", e.Name, e.NewPriority.DisplayName()),
			Body:      fmt.Sprintf("%s moved from %s to %s (%s)", e.Name, e.OldPriority, e.NewPriority, e.Reason),
		}
		o.check(evt, o.svc.NotifyAllAvailableStaff(ctx, alert, model.UrgencyHigh))

	case model.CriticalVitalsDetected:
		alert := model.StaffAlert{
			PatientID: e.PatientID,
			EventType: e.Type,
			Priority:  e.Priority,
			Title:     fmt.Sprintf("CRITICAL VITALS: %s", e.Name),
			Body: fmt.Sprintf("HR %d, SpO2 %d%%, RR %d, T %.1f, BP %s",
				e.Vitals.HeartRate, e.Vitals.OxygenSaturation, e.Vitals.RespiratoryRate,
				e.Vitals.Temperature, e.Vitals.BloodPressure.Formatted),
		}
		if e.AssignedDoctorID != "" {
			o.check(evt, o.svc.NotifyStaff(ctx, e.AssignedDoctorID, alert, model.UrgencyHigh))
		}
		o.check(evt, o.svc.NotifyAllAvailableStaff(ctx, alert, model.UrgencyHigh))

	case model.CaseReassigned:
		alert := model.StaffAlert{
			PatientID: e.PatientID,
			EventType: e.Type,
			Title:     fmt.Sprintf("Case reassigned to you: %s", e.Name),
			Body:      fmt.Sprintf("%s was reassigned to %s: %s", e.Name, e.NewDoctorName, e.Reason),
		}
		o.check(evt, o.svc.NotifyStaff(ctx, e.NewDoctorID, alert, model.UrgencyMedium))
	}
	return nil
}

func (o *Observer) check(evt model.DomainEvent, err error) {
	if err == nil {
		return
	}
	o.metrics.ObserverFailures.WithLabelValues(ObserverName, string(evt.EventType()), "delivery").Inc()
	o.logger.Error(err, "Failed to deliver staff alert",
		"event_type", string(evt.EventType()),
		"event_id", evt.EventID(),
		"patient_id", evt.AggregateID())
}
