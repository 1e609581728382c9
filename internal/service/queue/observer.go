// Package queue mirrors the triage queue onto the message broker so external
// consumers (bed boards, paging systems) can follow it by urgency.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/triage-api/internal/event"
	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/pkg/messaging"
)

const ObserverName = "triage_queue"

// Channel returns the broker channel for an urgency band.
func Channel(p model.Priority) string {
	return "triage:queue:" + p.QueueName()
}

// Entry is published whenever a patient enters a queue band.
type Entry struct {
	PatientID  string         `json:"patient_id"`
	Name       string         `json:"name"`
	Priority   model.Priority `json:"priority"`
	Label      string         `json:"label"`
	Previous   model.Priority `json:"previous_priority,omitempty"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

type Observer struct {
	broker messaging.Broker
}

var _ event.Observer = (*Observer)(nil)

func NewObserver(broker messaging.Broker) *Observer {
	return &Observer{broker: broker}
}

func (o *Observer) Name() string { return ObserverName }

func (o *Observer) Update(ctx context.Context, evt model.DomainEvent) error {
	var entry Entry
	switch e := evt.(type) {
	case model.PatientRegistered:
		entry = Entry{PatientID: e.PatientID, Name: e.Name, Priority: e.Priority}
	case model.PatientPriorityChanged:
		entry = Entry{PatientID: e.PatientID, Name: e.Name, Priority: e.NewPriority, Previous: e.OldPriority}
	default:
		return nil
	}
	entry.Label = entry.Priority.DisplayName()
	entry.EnqueuedAt = evt.OccurredAt()

	msg := messaging.Message{Type: string(evt.EventType()), Payload: entry}
	if err := o.broker.Publish(ctx, Channel(entry.Priority), msg); err != nil {
		return fmt.Errorf("enqueue %s on %s: %w", entry.PatientID, Channel(entry.Priority), err)
	}
	return nil
}
