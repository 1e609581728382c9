package model

import "time"

// PatientSnapshot is the persistable and serialisable form of a Patient.
type PatientSnapshot struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Age                int              `json:"age"`
	Gender             Gender           `json:"gender"`
	ArrivedAt          time.Time        `json:"arrived_at"`
	RegisteredBy       string           `json:"registered_by"`
	Vitals             VitalSigns       `json:"vitals"`
	VitalsHistory      []VitalSigns     `json:"vitals_history"`
	Symptoms           []string         `json:"symptoms"`
	ComputedPriority   Priority         `json:"computed_priority"`
	ManualPriority     *Priority        `json:"manual_priority,omitempty"`
	EffectivePriority  Priority         `json:"effective_priority"`
	Status             Status           `json:"status"`
	AssignedDoctor     *DoctorRef       `json:"assigned_doctor,omitempty"`
	Comments           []Comment        `json:"comments"`
	StatusHistory      []StatusChange   `json:"status_history"`
	PriorityHistory    []PriorityChange `json:"priority_history"`
	TreatmentStartedAt *time.Time       `json:"treatment_started_at,omitempty"`
	ClosedAt           *time.Time       `json:"closed_at,omitempty"`
	Version            int              `json:"version"`
}

// Snapshot copies the aggregate state. Pending events are not included.
func (p *Patient) Snapshot() PatientSnapshot {
	return PatientSnapshot{
		ID:                 p.id,
		Name:               p.name,
		Age:                p.age,
		Gender:             p.gender,
		ArrivedAt:          p.arrivedAt,
		RegisteredBy:       p.registeredBy,
		Vitals:             p.vitals.clone(),
		VitalsHistory:      p.VitalsHistory(),
		Symptoms:           p.Symptoms(),
		ComputedPriority:   p.computedPriority,
		ManualPriority:     p.ManualPriority(),
		EffectivePriority:  p.EffectivePriority(),
		Status:             p.status,
		AssignedDoctor:     p.AssignedDoctor(),
		Comments:           p.Comments(),
		StatusHistory:      p.StatusHistory(),
		PriorityHistory:    p.PriorityHistory(),
		TreatmentStartedAt: copyTime(p.treatmentStartedAt),
		ClosedAt:           copyTime(p.closedAt),
		Version:            p.version,
	}
}

// RehydratePatient rebuilds an aggregate from storage without recording events.
func RehydratePatient(s PatientSnapshot) *Patient {
	p := &Patient{
		id:                 s.ID,
		name:               s.Name,
		age:                s.Age,
		gender:             s.Gender,
		arrivedAt:          s.ArrivedAt,
		registeredBy:       s.RegisteredBy,
		vitals:             s.Vitals.clone(),
		symptoms:           append([]string(nil), s.Symptoms...),
		computedPriority:   s.ComputedPriority,
		status:             s.Status,
		comments:           append([]Comment(nil), s.Comments...),
		statusHistory:      append([]StatusChange(nil), s.StatusHistory...),
		priorityHistory:    append([]PriorityChange(nil), s.PriorityHistory...),
		treatmentStartedAt: copyTime(s.TreatmentStartedAt),
		closedAt:           copyTime(s.ClosedAt),
		version:            s.Version,
	}
	for _, v := range s.VitalsHistory {
		p.vitalsHistory = append(p.vitalsHistory, v.clone())
	}
	if s.ManualPriority != nil {
		m := *s.ManualPriority
		p.manualPriority = &m
	}
	if s.AssignedDoctor != nil {
		d := *s.AssignedDoctor
		p.assignedDoctor = &d
	}
	return p
}
