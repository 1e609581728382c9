package model

import "fmt"

// Priority is an ordinal urgency class. Lower values are more urgent.
type Priority int

const (
	PriorityCritical  Priority = 1
	PriorityHigh      Priority = 2
	PriorityModerate  Priority = 3
	PriorityLow       Priority = 4
	PriorityNonUrgent Priority = 5
)

// Urgency is the message urgency attached to staff notifications.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// PrioritySource records who decided a priority.
type PrioritySource string

const (
	PrioritySourceEngine PrioritySource = "engine"
	PrioritySourceManual PrioritySource = "manual"
)

func (p Priority) IsValid() bool {
	return p >= PriorityCritical && p <= PriorityNonUrgent
}

func (p Priority) String() string {
	return fmt.Sprintf("P%d", int(p))
}

func (p Priority) Label() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityModerate:
		return "MODERATE"
	case PriorityLow:
		return "LOW"
	case PriorityNonUrgent:
		return "NON_URGENT"
	default:
		return "UNKNOWN"
	}
}

// DisplayName renders "P1 - CRITICAL" style labels used in staff messages.
func (p Priority) DisplayName() string {
	return fmt.Sprintf("%s - %s", p, p.Label())
}

// MoreUrgentThan reports whether p outranks other clinically.
func (p Priority) MoreUrgentThan(other Priority) bool {
	return p < other
}

// IsCritical is true for P1 and P2.
func (p Priority) IsCritical() bool {
	return p == PriorityCritical || p == PriorityHigh
}

func (p Priority) Urgency() Urgency {
	switch {
	case p.IsCritical():
		return UrgencyHigh
	case p == PriorityModerate:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// QueueName is the triage queue a patient of this priority is routed to.
func (p Priority) QueueName() string {
	return string(p.Urgency())
}

// ParsePriority converts a raw 1-5 value.
func ParsePriority(v int) (Priority, error) {
	p := Priority(v)
	if !p.IsValid() {
		return 0, &PriorityOverrideError{Value: v}
	}
	return p, nil
}
