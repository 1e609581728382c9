package priority

import (
	"math"
	"strconv"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/pkg/result"
)

// Bound is the plausible physiological range of one vitals field.
type Bound struct {
	Field string
	Min   float64
	Max   float64
	value func(model.VitalSigns) float64
}

// DefaultBounds is checked in order; the first violation is reported.
var DefaultBounds = []Bound{
	{Field: "heartRate", Min: 30, Max: 250, value: func(v model.VitalSigns) float64 { return float64(v.HeartRate) }},
	{Field: "temperature", Min: 30, Max: 45, value: func(v model.VitalSigns) float64 { return v.Temperature }},
	{Field: "oxygenSaturation", Min: 50, Max: 100, value: func(v model.VitalSigns) float64 { return float64(v.OxygenSaturation) }},
	{Field: "respiratoryRate", Min: 5, Max: 60, value: func(v model.VitalSigns) float64 { return float64(v.RespiratoryRate) }},
}

const (
	minSystolic  = 50
	maxSystolic  = 260
	minDiastolic = 20
	maxDiastolic = 160
)

// Validator rejects readings that are malformed or outside the physiological
// envelope. It never clamps.
type Validator struct {
	bounds []Bound
}

func NewValidator() *Validator {
	return &Validator{bounds: DefaultBounds}
}

// Validate returns the reading unchanged on success, or the first violation
// in field order heartRate, temperature, oxygenSaturation, respiratoryRate,
// bloodPressure, painLevel, consciousnessLevel.
func (v *Validator) Validate(vitals model.VitalSigns) result.Result[model.VitalSigns] {
	for _, b := range v.bounds {
		val := b.value(vitals)
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return result.Err[model.VitalSigns](&model.VitalsValidationError{
				Field:  b.Field,
				Value:  strconv.FormatFloat(val, 'f', -1, 64),
				Reason: "not a number",
			})
		}
		if val < b.Min || val > b.Max {
			return result.Err[model.VitalSigns](&model.PhysiologicalLimitExceededError{
				Field: b.Field, Value: val, Min: b.Min, Max: b.Max,
			})
		}
	}

	bp, err := normalizeBloodPressure(vitals.BloodPressure)
	if err != nil {
		return result.Err[model.VitalSigns](err)
	}
	vitals.BloodPressure = bp

	if vitals.PainLevel != nil && (*vitals.PainLevel < 0 || *vitals.PainLevel > 10) {
		return result.Err[model.VitalSigns](&model.PhysiologicalLimitExceededError{
			Field: "painLevel", Value: float64(*vitals.PainLevel), Min: 0, Max: 10,
		})
	}
	if vitals.ConsciousnessLevel != "" && !vitals.ConsciousnessLevel.IsValid() {
		return result.Err[model.VitalSigns](&model.VitalsValidationError{
			Field:  "consciousnessLevel",
			Value:  string(vitals.ConsciousnessLevel),
			Reason: "must be alert, verbal, pain or unresponsive",
		})
	}

	return result.Ok(vitals)
}

// normalizeBloodPressure parses the formatted reading when only the string
// was supplied. A missing reading is allowed.
func normalizeBloodPressure(bp model.BloodPressure) (model.BloodPressure, error) {
	if bp.IsZero() {
		if bp.Formatted == "" {
			return bp, nil
		}
		parsed, err := model.ParseBloodPressure(bp.Formatted)
		if err != nil {
			return bp, err
		}
		bp = parsed
	}
	if bp.Systolic < minSystolic || bp.Systolic > maxSystolic {
		return bp, &model.PhysiologicalLimitExceededError{
			Field: "bloodPressure.systolic", Value: float64(bp.Systolic), Min: minSystolic, Max: maxSystolic,
		}
	}
	if bp.Diastolic < minDiastolic || bp.Diastolic > maxDiastolic {
		return bp, &model.PhysiologicalLimitExceededError{
			Field: "bloodPressure.diastolic", Value: float64(bp.Diastolic), Min: minDiastolic, Max: maxDiastolic,
		}
	}
	if bp.Diastolic >= bp.Systolic {
		return bp, &model.VitalsValidationError{
			Field:  "bloodPressure",
			Value:  model.NewBloodPressure(bp.Systolic, bp.Diastolic).Formatted,
			Reason: "diastolic must be lower than systolic",
		}
	}
	return model.NewBloodPressure(bp.Systolic, bp.Diastolic), nil
}
