package patient

import (
	"time"

	"github.com/jwalitptl/triage-api/internal/model"
)

type VitalsRequest struct {
	HeartRate          int     `json:"heart_rate"`
	Temperature        float64 `json:"temperature"`
	OxygenSaturation   int     `json:"oxygen_saturation"`
	RespiratoryRate    int     `json:"respiratory_rate"`
	BloodPressure      string  `json:"blood_pressure" binding:"omitempty,max=16"`
	Systolic           int     `json:"systolic"`
	Diastolic          int     `json:"diastolic"`
	ConsciousnessLevel string  `json:"consciousness_level" binding:"omitempty,oneof=alert verbal pain unresponsive"`
	PainLevel          *int    `json:"pain_level" binding:"omitempty,min=0,max=10"`
}

func (v VitalsRequest) toModel(by string) model.VitalSigns {
	return model.VitalSigns{
		HeartRate:        v.HeartRate,
		Temperature:      v.Temperature,
		OxygenSaturation: v.OxygenSaturation,
		RespiratoryRate:  v.RespiratoryRate,
		BloodPressure: model.BloodPressure{
			Formatted: v.BloodPressure,
			Systolic:  v.Systolic,
			Diastolic: v.Diastolic,
		},
		ConsciousnessLevel: model.ConsciousnessLevel(v.ConsciousnessLevel),
		PainLevel:          v.PainLevel,
		RecordedBy:         by,
	}
}

type RegisterPatientRequest struct {
	Name           string        `json:"name" binding:"required,min=2,max=200"`
	Age            int           `json:"age" binding:"min=0,max=150"`
	Gender         string        `json:"gender" binding:"required,oneof=male female other"`
	Symptoms       []string      `json:"symptoms" binding:"required,min=1,dive,max=500"`
	Vitals         VitalsRequest `json:"vitals"`
	ManualPriority *int          `json:"manual_priority"`
	RegisteredBy   string        `json:"registered_by"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason" binding:"required,max=500"`
}

type AcceptCaseRequest struct {
	DoctorID string `json:"doctor_id"`
}

type ReassignRequest struct {
	DoctorID string `json:"doctor_id" binding:"required"`
	Reason   string `json:"reason" binding:"required,max=500"`
}

type OverridePriorityRequest struct {
	Priority int    `json:"priority" binding:"required"`
	Reason   string `json:"reason" binding:"required,max=500"`
}

type CommentRequest struct {
	Content  string `json:"content" binding:"required"`
	Category string `json:"category" binding:"required"`
}

type EvaluateRequest struct {
	Vitals         VitalsRequest `json:"vitals"`
	ManualPriority *int          `json:"manual_priority"`
}

type PatientResponse struct {
	model.PatientSnapshot
	PriorityLabel  string `json:"priority_label"`
	WaitingMinutes int    `json:"waiting_minutes"`
}

func newPatientResponse(p *model.Patient, now time.Time) PatientResponse {
	return PatientResponse{
		PatientSnapshot: p.Snapshot(),
		PriorityLabel:   p.EffectivePriority().DisplayName(),
		WaitingMinutes:  int(p.WaitingTime(now).Minutes()),
	}
}
