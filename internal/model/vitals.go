package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ConsciousnessLevel follows the AVPU scale.
type ConsciousnessLevel string

const (
	ConsciousnessAlert        ConsciousnessLevel = "alert"
	ConsciousnessVerbal       ConsciousnessLevel = "verbal"
	ConsciousnessPain         ConsciousnessLevel = "pain"
	ConsciousnessUnresponsive ConsciousnessLevel = "unresponsive"
)

func (c ConsciousnessLevel) IsValid() bool {
	switch c {
	case ConsciousnessAlert, ConsciousnessVerbal, ConsciousnessPain, ConsciousnessUnresponsive:
		return true
	}
	return false
}

// BloodPressure keeps the reading as entered together with its parsed parts.
type BloodPressure struct {
	Formatted string `json:"formatted"`
	Systolic  int    `json:"systolic"`
	Diastolic int    `json:"diastolic"`
}

// ParseBloodPressure parses readings such as "120/80".
func ParseBloodPressure(s string) (BloodPressure, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return BloodPressure{}, &VitalsValidationError{Field: "bloodPressure", Value: s, Reason: "expected systolic/diastolic"}
	}
	systolic, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return BloodPressure{}, &VitalsValidationError{Field: "bloodPressure", Value: s, Reason: "systolic is not a number"}
	}
	diastolic, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return BloodPressure{}, &VitalsValidationError{Field: "bloodPressure", Value: s, Reason: "diastolic is not a number"}
	}
	return NewBloodPressure(systolic, diastolic), nil
}

func NewBloodPressure(systolic, diastolic int) BloodPressure {
	return BloodPressure{
		Formatted: fmt.Sprintf("%d/%d", systolic, diastolic),
		Systolic:  systolic,
		Diastolic: diastolic,
	}
}

func (b BloodPressure) IsZero() bool {
	return b.Systolic == 0 && b.Diastolic == 0
}

// VitalSigns is a single reading. It is a value; copy freely.
type VitalSigns struct {
	HeartRate          int                `json:"heart_rate"`
	Temperature        float64            `json:"temperature"`
	OxygenSaturation   int                `json:"oxygen_saturation"`
	RespiratoryRate    int                `json:"respiratory_rate"`
	BloodPressure      BloodPressure      `json:"blood_pressure"`
	ConsciousnessLevel ConsciousnessLevel `json:"consciousness_level,omitempty"`
	PainLevel          *int               `json:"pain_level,omitempty"`
	RecordedAt         time.Time          `json:"recorded_at"`
	RecordedBy         string             `json:"recorded_by,omitempty"`
}

// IsAbnormal flags readings outside the normal adult range.
func (v VitalSigns) IsAbnormal() bool {
	return v.HeartRate < 60 || v.HeartRate > 100 ||
		v.Temperature < 36 || v.Temperature > 37.5 ||
		v.OxygenSaturation < 95 ||
		v.RespiratoryRate < 12 || v.RespiratoryRate > 20 ||
		(!v.BloodPressure.IsZero() && (v.BloodPressure.Systolic < 90 || v.BloodPressure.Systolic > 140))
}

// IsCritical flags readings that need immediate clinical attention.
func (v VitalSigns) IsCritical() bool {
	return v.HeartRate < 40 || v.HeartRate > 130 ||
		v.Temperature < 35 || v.Temperature > 40 ||
		v.OxygenSaturation < 90 ||
		(!v.BloodPressure.IsZero() && (v.BloodPressure.Systolic < 70 || v.BloodPressure.Systolic > 180))
}

func (v VitalSigns) clone() VitalSigns {
	if v.PainLevel != nil {
		pain := *v.PainLevel
		v.PainLevel = &pain
	}
	return v
}
