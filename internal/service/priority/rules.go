package priority

import "github.com/jwalitptl/triage-api/internal/model"

// Rule is one threshold of the triage table.
type Rule struct {
	Name          string
	Priority      model.Priority
	Justification string
	Match         func(model.VitalSigns) bool
}

func systolic(v model.VitalSigns) (int, bool) {
	if v.BloodPressure.IsZero() {
		return 0, false
	}
	return v.BloodPressure.Systolic, true
}

func painAtLeast(n int) func(model.VitalSigns) bool {
	return func(v model.VitalSigns) bool { return v.PainLevel != nil && *v.PainLevel >= n }
}

func consciousness(level model.ConsciousnessLevel) func(model.VitalSigns) bool {
	return func(v model.VitalSigns) bool { return v.ConsciousnessLevel == level }
}

func systolicBelow(n int) func(model.VitalSigns) bool {
	return func(v model.VitalSigns) bool { s, ok := systolic(v); return ok && s < n }
}

func systolicAbove(n int) func(model.VitalSigns) bool {
	return func(v model.VitalSigns) bool { s, ok := systolic(v); return ok && s > n }
}

// DefaultRules is ordered from most to least severe. Thresholds are an
// operational default and are expected to be reviewed clinically.
var DefaultRules = []Rule{
	// P1
	{"severe_hypoxemia", model.PriorityCritical, "SpO2 below 90%", func(v model.VitalSigns) bool { return v.OxygenSaturation < 90 }},
	{"extreme_tachycardia", model.PriorityCritical, "heart rate above 150 bpm", func(v model.VitalSigns) bool { return v.HeartRate > 150 }},
	{"severe_bradycardia", model.PriorityCritical, "heart rate below 40 bpm", func(v model.VitalSigns) bool { return v.HeartRate < 40 }},
	{"hyperpyrexia", model.PriorityCritical, "temperature above 40°C", func(v model.VitalSigns) bool { return v.Temperature > 40 }},
	{"hypothermia", model.PriorityCritical, "temperature below 35°C", func(v model.VitalSigns) bool { return v.Temperature < 35 }},
	{"respiratory_distress", model.PriorityCritical, "respiratory rate above 30/min", func(v model.VitalSigns) bool { return v.RespiratoryRate > 30 }},
	{"respiratory_depression", model.PriorityCritical, "respiratory rate below 8/min", func(v model.VitalSigns) bool { return v.RespiratoryRate < 8 }},
	{"shock", model.PriorityCritical, "systolic pressure below 80 mmHg", systolicBelow(80)},
	{"unresponsive", model.PriorityCritical, "patient unresponsive", consciousness(model.ConsciousnessUnresponsive)},

	// P2
	{"hypoxemia", model.PriorityHigh, "SpO2 below 95%", func(v model.VitalSigns) bool { return v.OxygenSaturation < 95 }},
	{"marked_tachycardia", model.PriorityHigh, "heart rate above 120 bpm", func(v model.VitalSigns) bool { return v.HeartRate > 120 }},
	{"bradycardia", model.PriorityHigh, "heart rate below 50 bpm", func(v model.VitalSigns) bool { return v.HeartRate < 50 }},
	{"high_fever", model.PriorityHigh, "temperature at or above 39.5°C", func(v model.VitalSigns) bool { return v.Temperature >= 39.5 }},
	{"tachypnea", model.PriorityHigh, "respiratory rate above 24/min", func(v model.VitalSigns) bool { return v.RespiratoryRate > 24 }},
	{"hypotension", model.PriorityHigh, "systolic pressure below 90 mmHg", systolicBelow(90)},
	{"hypertensive_crisis", model.PriorityHigh, "systolic pressure above 180 mmHg", systolicAbove(180)},
	{"responds_to_pain", model.PriorityHigh, "responds only to pain", consciousness(model.ConsciousnessPain)},
	{"severe_pain", model.PriorityHigh, "pain 8/10 or worse", painAtLeast(8)},

	// P3
	{"tachycardia", model.PriorityModerate, "heart rate above 100 bpm", func(v model.VitalSigns) bool { return v.HeartRate > 100 }},
	{"fever", model.PriorityModerate, "temperature at or above 38.5°C", func(v model.VitalSigns) bool { return v.Temperature >= 38.5 }},
	{"elevated_respiration", model.PriorityModerate, "respiratory rate above 20/min", func(v model.VitalSigns) bool { return v.RespiratoryRate > 20 }},
	{"hypertension", model.PriorityModerate, "systolic pressure above 160 mmHg", systolicAbove(160)},
	{"responds_to_voice", model.PriorityModerate, "responds only to voice", consciousness(model.ConsciousnessVerbal)},
	{"moderate_pain", model.PriorityModerate, "pain 5/10 or worse", painAtLeast(5)},

	// P4
	{"low_grade_fever", model.PriorityLow, "temperature above 37.5°C", func(v model.VitalSigns) bool { return v.Temperature > 37.5 }},
	{"low_heart_rate", model.PriorityLow, "heart rate below 60 bpm", func(v model.VitalSigns) bool { return v.HeartRate < 60 }},
	{"low_respiration", model.PriorityLow, "respiratory rate below 12/min", func(v model.VitalSigns) bool { return v.RespiratoryRate < 12 }},
	{"elevated_pressure", model.PriorityLow, "systolic pressure above 140 mmHg", systolicAbove(140)},
	{"low_pressure", model.PriorityLow, "systolic pressure below 100 mmHg", systolicBelow(100)},
	{"mild_pain", model.PriorityLow, "pain 3/10 or worse", painAtLeast(3)},
}
