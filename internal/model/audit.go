package model

import (
	"encoding/json"
	"time"
)

// AuditLog is written once per observed domain event and never updated.
type AuditLog struct {
	ID        string          `json:"id" db:"id"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	Action    string          `json:"action" db:"action"`
	PatientID *string         `json:"patient_id,omitempty" db:"patient_id"`
	Details   json.RawMessage `json:"details" db:"details"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
