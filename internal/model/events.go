package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event variant. The values double as audit actions.
type EventType string

const (
	EventPatientRegistered      EventType = "PATIENT_REGISTERED"
	EventPatientPriorityChanged EventType = "PATIENT_PRIORITY_CHANGED"
	EventCriticalVitalsDetected EventType = "CRITICAL_VITALS_DETECTED"
	EventPatientStatusChanged   EventType = "PATIENT_STATUS_CHANGED"
	EventCaseAssigned           EventType = "CASE_ASSIGNED"
	EventCaseReassigned         EventType = "CASE_REASSIGNED"
)

// EventTypes lists every variant in a stable order.
func EventTypes() []EventType {
	return []EventType{
		EventPatientRegistered,
		EventPatientPriorityChanged,
		EventCriticalVitalsDetected,
		EventPatientStatusChanged,
		EventCaseAssigned,
		EventCaseReassigned,
	}
}

// DomainEvent is the closed family of events raised by the Patient aggregate.
// Consumers type-switch on the concrete value types below.
type DomainEvent interface {
	EventID() string
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	domainEvent()
}

// EventMeta is embedded in every event.
type EventMeta struct {
	ID        string    `json:"event_id"`
	Type      EventType `json:"event_type"`
	Timestamp time.Time `json:"occurred_at"`
	PatientID string    `json:"patient_id"`
}

func newMeta(t EventType, patientID string, at time.Time) EventMeta {
	return EventMeta{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: at.UTC(),
		PatientID: patientID,
	}
}

func (m EventMeta) EventID() string { return m.ID }
func (m EventMeta) EventType() EventType { return m.Type }
func (m EventMeta) OccurredAt() time.Time { return m.Timestamp }
func (m EventMeta) AggregateID() string { return m.PatientID }
func (m EventMeta) domainEvent() {}

type PatientRegistered struct {
	EventMeta
	Name         string   `json:"name"`
	Priority     Priority `json:"priority"`
	Symptoms     []string `json:"symptoms"`
	RegisteredBy string   `json:"registered_by"`
}

type PatientPriorityChanged struct {
	EventMeta
	Name        string         `json:"name"`
	OldPriority Priority       `json:"old_priority"`
	NewPriority Priority       `json:"new_priority"`
	Source      PrioritySource `json:"source"`
	Reason      string         `json:"reason"`
	ChangedBy   string         `json:"changed_by"`
}

// Escalated reports whether the change made the patient more urgent.
func (e PatientPriorityChanged) Escalated() bool {
	return e.NewPriority.MoreUrgentThan(e.OldPriority)
}

type CriticalVitalsDetected struct {
	EventMeta
	Name             string     `json:"name"`
	Vitals           VitalSigns `json:"vitals"`
	Priority         Priority   `json:"priority"`
	AssignedDoctorID string     `json:"assigned_doctor_id,omitempty"`
}

type PatientStatusChanged struct {
	EventMeta
	Name      string `json:"name"`
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by"`
}

type CaseAssigned struct {
	EventMeta
	Name       string   `json:"name"`
	Priority   Priority `json:"priority"`
	DoctorID   string   `json:"doctor_id"`
	DoctorName string   `json:"doctor_name"`
}

type CaseReassigned struct {
	EventMeta
	Name             string `json:"name"`
	PreviousDoctorID string `json:"previous_doctor_id"`
	NewDoctorID      string `json:"new_doctor_id"`
	NewDoctorName    string `json:"new_doctor_name"`
	Reason           string `json:"reason"`
	ChangedBy        string `json:"changed_by"`
}
