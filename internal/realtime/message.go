// Package realtime pushes triage events to connected staff over WebSockets.
// Clients opt into rooms; the gateway subscribes to the domain event bus and
// forwards the single inbound command it accepts (case acceptance) to the
// use-case layer.
package realtime

import (
	"encoding/json"
	"time"
)

// MessageType identifies a wire message in either direction.
type MessageType string

// Server to client.
const (
	MsgPatientRegistered      MessageType = "PATIENT_REGISTERED"
	MsgPatientPriorityChanged MessageType = "PATIENT_PRIORITY_CHANGED"
	MsgCriticalVitals         MessageType = "CRITICAL_VITALS"
	MsgCaseAcceptedByOther    MessageType = "CASE_ACCEPTED_BY_OTHER"
	MsgPatientStatusChanged   MessageType = "PATIENT_STATUS_CHANGED"
	MsgCaseReassigned         MessageType = "CASE_REASSIGNED"
	MsgCaseAccepted           MessageType = "CASE_ACCEPTED"
	MsgRoomJoined             MessageType = "ROOM_JOINED"
	MsgRoomLeft               MessageType = "ROOM_LEFT"
	MsgError                  MessageType = "ERROR"
	MsgPong                   MessageType = "PONG"
)

// Client to server.
const (
	MsgJoinRoom   MessageType = "JOIN_ROOM"
	MsgLeaveRoom  MessageType = "LEAVE_ROOM"
	MsgAcceptCase MessageType = "ACCEPT_CASE"
	MsgPing       MessageType = "PING"
)

// Error codes carried by MsgError.
const (
	CodeInvalidData      = "INVALID_DATA"
	CodeAlreadyAssigned  = "ALREADY_ASSIGNED"
	CodeNotFound         = "NOT_FOUND"
	CodeAcceptCaseFailed = "ACCEPT_CASE_FAILED"
	CodeRateLimited      = "RATE_LIMITED"
)

// Room names with a fixed meaning.
const (
	RoomEmergencyStaff = "emergency-staff"
)

// StaffRoom is the personal room of one staff member.
func StaffRoom(staffID string) string { return "staff:" + staffID }

// Outbound is every server to client message. Seq increases by one per
// message sent by this instance so clients can spot gaps and reordering.
type Outbound struct {
	Type      MessageType `json:"type"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Inbound is every client to server message; Data is decoded per Type.
type Inbound struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type RoomRequest struct {
	Room string `json:"room" validate:"required,max=128"`
}

type AcceptCaseRequest struct {
	TriageID string `json:"triageId" validate:"required"`
	StaffID  string `json:"staffId" validate:"required"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RoomPayload struct {
	Room string `json:"room"`
}
