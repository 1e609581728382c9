package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

// SystemActor is recorded when no staff member initiated a change.
const SystemActor = "SYSTEM"

const (
	minNameLength = 2
	maxAge        = 150
)

// StatusChange is one entry of the status audit trail kept on the patient.
type StatusChange struct {
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Reason    string    `json:"reason"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// PriorityChange is one entry of the effective priority trail.
type PriorityChange struct {
	From      Priority       `json:"from"`
	To        Priority       `json:"to"`
	Source    PrioritySource `json:"source"`
	Reason    string         `json:"reason"`
	ChangedBy string         `json:"changed_by"`
	ChangedAt time.Time      `json:"changed_at"`
}

// NewPatientParams carries registration input.
type NewPatientParams struct {
	ID           string
	Name         string
	Age          int
	Gender       Gender
	Symptoms     []string
	Vitals       VitalSigns
	RegisteredBy string
	ArrivedAt    time.Time
}

// Patient is the aggregate root of a clinical episode. All state changes go
// through its methods, which record the domain events the caller should
// publish once the change is persisted.
type Patient struct {
	id                 string
	name               string
	age                int
	gender             Gender
	arrivedAt          time.Time
	registeredBy       string
	vitals             VitalSigns
	vitalsHistory      []VitalSigns
	symptoms           []string
	computedPriority   Priority
	manualPriority     *Priority
	status             Status
	assignedDoctor     *DoctorRef
	comments           []Comment
	statusHistory      []StatusChange
	priorityHistory    []PriorityChange
	treatmentStartedAt *time.Time
	closedAt           *time.Time
	version            int

	changes []DomainEvent
}

// RegisterPatient validates demographics and creates a waiting patient.
// computed is the engine result; manual, when set, overrides it.
func RegisterPatient(params NewPatientParams, computed Priority, manual *Priority) (*Patient, error) {
	name := strings.TrimSpace(params.Name)
	if len(name) < minNameLength {
		return nil, &PatientValidationError{Field: "name", Reason: "must be at least 2 characters"}
	}
	if params.Age < 0 || params.Age > maxAge {
		return nil, &PatientValidationError{Field: "age", Reason: "must be between 0 and 150"}
	}
	if !params.Gender.IsValid() {
		return nil, &PatientValidationError{Field: "gender", Reason: "must be male, female or other"}
	}
	symptoms := make([]string, 0, len(params.Symptoms))
	for _, s := range params.Symptoms {
		if s = strings.TrimSpace(s); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	if len(symptoms) == 0 {
		return nil, &PatientValidationError{Field: "symptoms", Reason: "at least one symptom is required"}
	}
	if !computed.IsValid() {
		return nil, &PatientValidationError{Field: "priority", Reason: "computed priority out of range"}
	}
	if manual != nil && !manual.IsValid() {
		return nil, &PriorityOverrideError{Value: int(*manual)}
	}

	at := params.ArrivedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	id := params.ID
	if id == "" {
		id = uuid.NewString()
	}
	by := params.RegisteredBy
	if by == "" {
		by = SystemActor
	}

	vitals := params.Vitals.clone()
	if vitals.RecordedAt.IsZero() {
		vitals.RecordedAt = at
	}
	if vitals.RecordedBy == "" {
		vitals.RecordedBy = by
	}

	p := &Patient{
		id:               id,
		name:             name,
		age:              params.Age,
		gender:           params.Gender,
		arrivedAt:        at,
		registeredBy:     by,
		vitals:           vitals,
		vitalsHistory:    []VitalSigns{vitals},
		symptoms:         symptoms,
		computedPriority: computed,
		status:           StatusWaiting,
	}
	source := PrioritySourceEngine
	if manual != nil {
		m := *manual
		p.manualPriority = &m
		source = PrioritySourceManual
	}
	p.priorityHistory = []PriorityChange{{
		To:        p.EffectivePriority(),
		Source:    source,
		Reason:    "initial triage",
		ChangedBy: by,
		ChangedAt: at,
	}}

	p.record(PatientRegistered{
		EventMeta:    newMeta(EventPatientRegistered, id, at),
		Name:         name,
		Priority:     p.EffectivePriority(),
		Symptoms:     append([]string(nil), symptoms...),
		RegisteredBy: by,
	})
	return p, nil
}

func (p *Patient) ID() string { return p.id }
func (p *Patient) Name() string { return p.name }
func (p *Patient) Age() int { return p.age }
func (p *Patient) Gender() Gender { return p.gender }
func (p *Patient) ArrivedAt() time.Time { return p.arrivedAt }
func (p *Patient) RegisteredBy() string { return p.registeredBy }
func (p *Patient) Status() Status { return p.status }
func (p *Patient) ComputedPriority() Priority { return p.computedPriority }
func (p *Patient) Vitals() VitalSigns { return p.vitals.clone() }
func (p *Patient) Version() int { return p.version }
func (p *Patient) TreatmentStartedAt() *time.Time { return copyTime(p.treatmentStartedAt) }
func (p *Patient) ClosedAt() *time.Time { return copyTime(p.closedAt) }

func (p *Patient) Symptoms() []string {
	return append([]string(nil), p.symptoms...)
}

func (p *Patient) ManualPriority() *Priority {
	if p.manualPriority == nil {
		return nil
	}
	m := *p.manualPriority
	return &m
}

// EffectivePriority is the manual override when present, else the computed value.
func (p *Patient) EffectivePriority() Priority {
	if p.manualPriority != nil {
		return *p.manualPriority
	}
	return p.computedPriority
}

func (p *Patient) AssignedDoctor() *DoctorRef {
	if p.assignedDoctor == nil {
		return nil
	}
	d := *p.assignedDoctor
	return &d
}

func (p *Patient) assignedDoctorID() string {
	if p.assignedDoctor == nil {
		return ""
	}
	return p.assignedDoctor.ID
}

func (p *Patient) Comments() []Comment {
	return append([]Comment(nil), p.comments...)
}

func (p *Patient) StatusHistory() []StatusChange {
	return append([]StatusChange(nil), p.statusHistory...)
}

func (p *Patient) PriorityHistory() []PriorityChange {
	return append([]PriorityChange(nil), p.priorityHistory...)
}

func (p *Patient) VitalsHistory() []VitalSigns {
	out := make([]VitalSigns, len(p.vitalsHistory))
	for i, v := range p.vitalsHistory {
		out[i] = v.clone()
	}
	return out
}

// IsClosed reports whether the episode reached a terminal status.
func (p *Patient) IsClosed() bool {
	return p.status.IsTerminal()
}

// WaitingTime is measured until treatment started, or until now.
func (p *Patient) WaitingTime(now time.Time) time.Duration {
	if p.treatmentStartedAt != nil {
		return p.treatmentStartedAt.Sub(p.arrivedAt)
	}
	return now.Sub(p.arrivedAt)
}

// RecordVitals stores a new reading and re-evaluates the computed priority.
func (p *Patient) RecordVitals(v VitalSigns, computed Priority, by string, at time.Time) error {
	if p.IsClosed() {
		return &PatientClosedError{PatientID: p.id, Status: p.status, Operation: "record vitals"}
	}
	if !computed.IsValid() {
		return &PatientValidationError{Field: "priority", Reason: "computed priority out of range"}
	}
	at = at.UTC()
	by = actorOrSystem(by)

	v = v.clone()
	if v.RecordedAt.IsZero() {
		v.RecordedAt = at
	}
	if v.RecordedBy == "" {
		v.RecordedBy = by
	}
	p.vitals = v
	p.vitalsHistory = append(p.vitalsHistory, v)

	old := p.EffectivePriority()
	p.computedPriority = computed
	if next := p.EffectivePriority(); next != old {
		p.changePriority(old, next, PrioritySourceEngine, "vitals reassessment", by, at)
	}

	if computed == PriorityCritical || v.IsCritical() {
		p.record(CriticalVitalsDetected{
			EventMeta:        newMeta(EventCriticalVitalsDetected, p.id, at),
			Name:             p.name,
			Vitals:           v.clone(),
			Priority:         p.EffectivePriority(),
			AssignedDoctorID: p.assignedDoctorID(),
		})
	}
	return nil
}

// OverridePriority applies a staff decision on top of the computed priority.
func (p *Patient) OverridePriority(manual Priority, reason, by string, at time.Time) error {
	if p.IsClosed() {
		return &PatientClosedError{PatientID: p.id, Status: p.status, Operation: "override priority"}
	}
	if !manual.IsValid() {
		return &PriorityOverrideError{Value: int(manual)}
	}
	if strings.TrimSpace(reason) == "" {
		return &PatientValidationError{Field: "reason", Reason: "is required"}
	}

	old := p.EffectivePriority()
	p.manualPriority = &manual
	if manual != old {
		p.changePriority(old, manual, PrioritySourceManual, strings.TrimSpace(reason), actorOrSystem(by), at.UTC())
	}
	return nil
}

// ClearPriorityOverride returns control to the engine.
func (p *Patient) ClearPriorityOverride(reason, by string, at time.Time) error {
	if p.IsClosed() {
		return &PatientClosedError{PatientID: p.id, Status: p.status, Operation: "clear priority override"}
	}
	if p.manualPriority == nil {
		return &PatientValidationError{Field: "manual_priority", Reason: "no override is set"}
	}
	if strings.TrimSpace(reason) == "" {
		return &PatientValidationError{Field: "reason", Reason: "is required"}
	}

	old := p.EffectivePriority()
	p.manualPriority = nil
	if p.computedPriority != old {
		p.changePriority(old, p.computedPriority, PrioritySourceEngine, strings.TrimSpace(reason), actorOrSystem(by), at.UTC())
	}
	return nil
}

// TransitionTo moves the patient along the lifecycle. The reason is stored.
func (p *Patient) TransitionTo(next Status, reason, by string, at time.Time) error {
	if !next.IsValid() {
		return &PatientValidationError{Field: "status", Reason: "unknown status " + string(next)}
	}
	if strings.TrimSpace(reason) == "" {
		return &PatientValidationError{Field: "reason", Reason: "is required"}
	}
	if !p.status.CanTransitionTo(next) {
		return &InvalidTransitionError{From: p.status, To: next}
	}
	p.applyTransition(next, strings.TrimSpace(reason), actorOrSystem(by), at.UTC())
	return nil
}

// AssignDoctor is the "take case" operation: it only succeeds while nobody
// holds the case. Use ReassignDoctor to replace an assignee.
func (p *Patient) AssignDoctor(doctor DoctorRef, at time.Time) error {
	if doctor.ID == "" {
		return &PatientValidationError{Field: "doctor_id", Reason: "is required"}
	}
	if p.IsClosed() {
		return &PatientClosedError{PatientID: p.id, Status: p.status, Operation: "accept case"}
	}
	if p.assignedDoctor != nil {
		return &CaseAlreadyAssignedError{
			PatientID:         p.id,
			AssignedDoctorID:  p.assignedDoctor.ID,
			RequestedDoctorID: doctor.ID,
		}
	}
	at = at.UTC()

	p.assignedDoctor = &doctor
	if p.treatmentStartedAt == nil {
		started := at
		p.treatmentStartedAt = &started
	}
	p.record(CaseAssigned{
		EventMeta:  newMeta(EventCaseAssigned, p.id, at),
		Name:       p.name,
		Priority:   p.EffectivePriority(),
		DoctorID:   doctor.ID,
		DoctorName: doctor.Name,
	})

	if p.status == StatusWaiting {
		p.applyTransition(StatusInProgress, "case accepted by "+displayName(doctor), doctor.ID, at)
	}
	return nil
}

// ReassignDoctor hands an assigned case to a different doctor.
func (p *Patient) ReassignDoctor(doctor DoctorRef, reason, by string, at time.Time) error {
	if doctor.ID == "" {
		return &PatientValidationError{Field: "doctor_id", Reason: "is required"}
	}
	if strings.TrimSpace(reason) == "" {
		return &PatientValidationError{Field: "reason", Reason: "is required"}
	}
	if p.IsClosed() {
		return &PatientClosedError{PatientID: p.id, Status: p.status, Operation: "reassign case"}
	}
	if p.assignedDoctor == nil {
		return &ReassignmentError{PatientID: p.id, RequestedDoctorID: doctor.ID, Reason: "case is not assigned"}
	}
	if p.assignedDoctor.ID == doctor.ID {
		return &ReassignmentError{
			PatientID:         p.id,
			CurrentDoctorID:   p.assignedDoctor.ID,
			RequestedDoctorID: doctor.ID,
			Reason:            "case is already assigned to this doctor",
		}
	}

	previous := p.assignedDoctor.ID
	p.assignedDoctor = &doctor
	p.record(CaseReassigned{
		EventMeta:        newMeta(EventCaseReassigned, p.id, at.UTC()),
		Name:             p.name,
		PreviousDoctorID: previous,
		NewDoctorID:      doctor.ID,
		NewDoctorName:    doctor.Name,
		Reason:           strings.TrimSpace(reason),
		ChangedBy:        actorOrSystem(by),
	})
	return nil
}

// AddComment appends a validated note.
func (p *Patient) AddComment(c Comment) error {
	if p.IsClosed() {
		return &PatientClosedError{PatientID: p.id, Status: p.status, Operation: "add comment"}
	}
	if c.ID == "" || c.AuthorID == "" {
		return &CommentValidationError{Field: "comment", Reason: "must be built with NewComment"}
	}
	p.comments = append(p.comments, c)
	return nil
}

// PendingEvents returns the events recorded since the last ClearPendingEvents.
func (p *Patient) PendingEvents() []DomainEvent {
	return append([]DomainEvent(nil), p.changes...)
}

func (p *Patient) ClearPendingEvents() {
	p.changes = nil
}

// MarkPersisted is called by repositories after a successful write.
func (p *Patient) MarkPersisted(version int) {
	p.version = version
}

func (p *Patient) record(e DomainEvent) {
	p.changes = append(p.changes, e)
}

func (p *Patient) changePriority(from, to Priority, source PrioritySource, reason, by string, at time.Time) {
	p.priorityHistory = append(p.priorityHistory, PriorityChange{
		From:      from,
		To:        to,
		Source:    source,
		Reason:    reason,
		ChangedBy: by,
		ChangedAt: at,
	})
	p.record(PatientPriorityChanged{
		EventMeta:   newMeta(EventPatientPriorityChanged, p.id, at),
		Name:        p.name,
		OldPriority: from,
		NewPriority: to,
		Source:      source,
		Reason:      reason,
		ChangedBy:   by,
	})
}

func (p *Patient) applyTransition(next Status, reason, by string, at time.Time) {
	prev := p.status
	p.status = next
	p.statusHistory = append(p.statusHistory, StatusChange{
		From:      prev,
		To:        next,
		Reason:    reason,
		ChangedBy: by,
		ChangedAt: at,
	})
	if p.treatmentStartedAt == nil && (next == StatusInProgress || next == StatusUnderTreatment) {
		started := at
		p.treatmentStartedAt = &started
	}
	if next.IsTerminal() {
		closed := at
		p.closedAt = &closed
	}
	p.record(PatientStatusChanged{
		EventMeta: newMeta(EventPatientStatusChanged, p.id, at),
		Name:      p.name,
		OldStatus: prev,
		NewStatus: next,
		Reason:    reason,
		ChangedBy: by,
	})
}

func actorOrSystem(by string) string {
	if strings.TrimSpace(by) == "" {
		return SystemActor
	}
	return by
}

func displayName(d DoctorRef) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
