package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityHelpers(t *testing.T) {
	assert.Equal(t, "P1 - CRITICAL", PriorityCritical.DisplayName())
	assert.True(t, PriorityCritical.MoreUrgentThan(PriorityModerate))
	assert.False(t, PriorityLow.MoreUrgentThan(PriorityLow))

	assert.Equal(t, UrgencyHigh, PriorityCritical.Urgency())
	assert.Equal(t, UrgencyHigh, PriorityHigh.Urgency())
	assert.Equal(t, UrgencyMedium, PriorityModerate.Urgency())
	assert.Equal(t, UrgencyLow, PriorityLow.Urgency())
	assert.Equal(t, UrgencyLow, PriorityNonUrgent.Urgency())

	_, err := ParsePriority(0)
	assert.Error(t, err)
	p, err := ParsePriority(2)
	assert.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)
}

func TestParseBloodPressure(t *testing.T) {
	bp, err := ParseBloodPressure(" 120/80 ")
	assert.NoError(t, err)
	assert.Equal(t, BloodPressure{Formatted: "120/80", Systolic: 120, Diastolic: 80}, bp)

	for _, in := range []string{"120", "abc/80", "120/x", ""} {
		_, err := ParseBloodPressure(in)
		var verr *VitalsValidationError
		assert.ErrorAs(t, err, &verr, in)
	}
}

func TestVitalsFlags(t *testing.T) {
	normal := VitalSigns{HeartRate: 72, Temperature: 36.8, OxygenSaturation: 98, RespiratoryRate: 14, BloodPressure: NewBloodPressure(118, 76)}
	assert.False(t, normal.IsAbnormal())
	assert.False(t, normal.IsCritical())

	abnormal := normal
	abnormal.HeartRate = 105
	assert.True(t, abnormal.IsAbnormal())
	assert.False(t, abnormal.IsCritical())

	critical := normal
	critical.OxygenSaturation = 88
	assert.True(t, critical.IsCritical())
}

func TestStatusWhitelist(t *testing.T) {
	assert.True(t, StatusWaiting.CanTransitionTo(StatusUnderTreatment))
	assert.False(t, StatusWaiting.CanTransitionTo(StatusDischarged))
	assert.False(t, StatusDischarged.CanTransitionTo(StatusWaiting))
	for _, s := range []Status{StatusDischarged, StatusTransferred, StatusCompleted} {
		assert.True(t, s.IsTerminal())
		assert.Empty(t, s.AllowedTransitions())
	}
}
