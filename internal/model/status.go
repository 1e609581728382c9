package model

// Status is the patient's position in the clinical episode.
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusInProgress     Status = "in_progress"
	StatusUnderTreatment Status = "under_treatment"
	StatusStabilized     Status = "stabilized"
	StatusDischarged     Status = "discharged"
	StatusTransferred    Status = "transferred"
	StatusCompleted      Status = "completed"
)

var transitions = map[Status][]Status{
	StatusWaiting:        {StatusInProgress, StatusUnderTreatment},
	StatusInProgress:     {StatusUnderTreatment, StatusStabilized, StatusTransferred},
	StatusUnderTreatment: {StatusStabilized, StatusTransferred},
	StatusStabilized:     {StatusUnderTreatment, StatusDischarged, StatusTransferred, StatusCompleted},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusInProgress, StatusUnderTreatment, StatusStabilized,
		StatusDischarged, StatusTransferred, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether the episode is closed.
func (s Status) IsTerminal() bool {
	return s == StatusDischarged || s == StatusTransferred || s == StatusCompleted
}

// CanTransitionTo checks the whitelist of legal (current, requested) pairs.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the legal next states.
func (s Status) AllowedTransitions() []Status {
	return append([]Status(nil), transitions[s]...)
}
