package model

import (
	"fmt"
	"strings"

	apperrors "github.com/jwalitptl/triage-api/pkg/errors"
)

// VitalsValidationError reports a malformed vitals field.
type VitalsValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *VitalsValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *VitalsValidationError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrBadRequest }

// PhysiologicalLimitExceededError reports a reading outside the plausible
// envelope, which almost always means a measurement error.
type PhysiologicalLimitExceededError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *PhysiologicalLimitExceededError) Error() string {
	return fmt.Sprintf("%s %g outside physiological limits [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

func (e *PhysiologicalLimitExceededError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrBadRequest
}

// PatientValidationError reports invalid demographics or command input.
type PatientValidationError struct {
	Field  string
	Reason string
}

func (e *PatientValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *PatientValidationError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrBadRequest }

// PriorityOverrideError reports a manual priority outside 1-5.
type PriorityOverrideError struct {
	Value int
}

func (e *PriorityOverrideError) Error() string {
	return fmt.Sprintf("manual priority %d out of range [1, 5]", e.Value)
}

func (e *PriorityOverrideError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrBadRequest }

type CommentValidationError struct {
	Field  string
	Reason string
}

func (e *CommentValidationError) Error() string {
	return fmt.Sprintf("invalid comment %s: %s", e.Field, e.Reason)
}

func (e *CommentValidationError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrBadRequest }

type PatientNotFoundError struct {
	PatientID string
}

func (e *PatientNotFoundError) Error() string {
	return fmt.Sprintf("patient %s not found", e.PatientID)
}

func (e *PatientNotFoundError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrNotFound }

// PatientNotFoundForVitalsError is returned when a vitals reading targets an
// unknown patient.
type PatientNotFoundForVitalsError struct {
	PatientID string
}

func (e *PatientNotFoundForVitalsError) Error() string {
	return fmt.Sprintf("cannot record vitals: patient %s not found", e.PatientID)
}

func (e *PatientNotFoundForVitalsError) ErrorCode() apperrors.ErrorCode {
	return apperrors.ErrNotFound
}

type StaffNotFoundError struct {
	StaffID string
}

func (e *StaffNotFoundError) Error() string {
	return fmt.Sprintf("staff member %s not found", e.StaffID)
}

func (e *StaffNotFoundError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrNotFound }

// InvalidTransitionError names both the current and the requested status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, 0, len(transitions[e.From]))
	for _, s := range e.From.AllowedTransitions() {
		allowed = append(allowed, string(s))
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("illegal transition from %s to %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("illegal transition from %s to %s (allowed: %s)", e.From, e.To, strings.Join(allowed, ", "))
}

func (e *InvalidTransitionError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrConflict }

// CaseAlreadyAssignedError is returned when a second staff member tries to
// take a case that already has an assignee.
type CaseAlreadyAssignedError struct {
	PatientID         string
	AssignedDoctorID  string
	RequestedDoctorID string
}

func (e *CaseAlreadyAssignedError) Error() string {
	return fmt.Sprintf("patient %s already assigned to %s (requested by %s)",
		e.PatientID, e.AssignedDoctorID, e.RequestedDoctorID)
}

func (e *CaseAlreadyAssignedError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrConflict }

// ReassignmentError covers reassigning an unassigned case or to the same doctor.
type ReassignmentError struct {
	PatientID         string
	CurrentDoctorID   string
	RequestedDoctorID string
	Reason            string
}

func (e *ReassignmentError) Error() string {
	return fmt.Sprintf("cannot reassign patient %s from %q to %q: %s",
		e.PatientID, e.CurrentDoctorID, e.RequestedDoctorID, e.Reason)
}

func (e *ReassignmentError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrConflict }

// PatientClosedError is returned for clinical mutations after discharge,
// transfer or completion.
type PatientClosedError struct {
	PatientID string
	Status    Status
	Operation string
}

func (e *PatientClosedError) Error() string {
	return fmt.Sprintf("cannot %s: patient %s is %s", e.Operation, e.PatientID, e.Status)
}

func (e *PatientClosedError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrConflict }

// DoctorUnavailableError is returned when a doctor is off duty or already
// holds their maximum number of open cases.
type DoctorUnavailableError struct {
	DoctorID string
	Load     int
	Capacity int
}

func (e *DoctorUnavailableError) Error() string {
	if e.Capacity > 0 {
		return fmt.Sprintf("doctor %s is at capacity (%d/%d open cases)", e.DoctorID, e.Load, e.Capacity)
	}
	return fmt.Sprintf("doctor %s is not available", e.DoctorID)
}

func (e *DoctorUnavailableError) ErrorCode() apperrors.ErrorCode { return apperrors.ErrConflict }
