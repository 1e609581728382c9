package model

// StaffAlert is the message delivered to staff by the notification service.
type StaffAlert struct {
	PatientID string    `json:"patient_id"`
	EventType EventType `json:"event_type"`
	Priority  Priority  `json:"priority"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
}

// Notification channels
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)
