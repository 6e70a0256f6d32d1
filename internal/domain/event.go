package domain

import (
	"time"
)

// Event is owned by the ticketing subsystem; check-in only reads it
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	TotalTickets int64     `json:"total_tickets"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Kafka event types published by this service
const (
	EventTypeAttemptRecorded = "checkin.attempt.recorded"
)

// AttemptEvent is the Kafka payload for a verification attempt
type AttemptEvent struct {
	EventID   string               `json:"event_id"`
	EventType string               `json:"event_type"`
	Timestamp time.Time            `json:"timestamp"`
	Version   int                  `json:"version"`
	Attempt   *VerificationAttempt `json:"attempt"`
}

// NewAttemptEvent wraps an attempt for publishing. The envelope id is the
// attempt id so consumers can deduplicate redeliveries.
func NewAttemptEvent(a *VerificationAttempt) *AttemptEvent {
	return &AttemptEvent{
		EventID:   a.ID,
		EventType: EventTypeAttemptRecorded,
		Timestamp: time.Now().UTC(),
		Version:   1,
		Attempt:   a,
	}
}
