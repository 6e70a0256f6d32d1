package dto

import (
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
)

// VerifyRequest represents one scan submitted by an operator station
type VerifyRequest struct {
	RawCode string `json:"raw_code"`
	Mode    string `json:"mode,omitempty" binding:"omitempty,oneof=MANUAL QR manual qr"`
}

// TicketResponse represents a ticket in API responses
type TicketResponse struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	Code           string     `json:"code"`
	HolderRef      string     `json:"holder_ref,omitempty"`
	Status         string     `json:"status"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	UsedByOperator string     `json:"used_by_operator,omitempty"`
}

// VerifyResponse represents the decision for one scan
type VerifyResponse struct {
	Outcome          string          `json:"outcome"`
	Message          string          `json:"message"`
	Retryable        bool            `json:"retryable"`
	AttemptID        string          `json:"attempt_id"`
	AttemptTimestamp time.Time       `json:"attempt_timestamp"`
	Ticket           *TicketResponse `json:"ticket,omitempty"`
}

// StatsResponse represents an event's check-in counters
type StatsResponse struct {
	EventID           string    `json:"event_id"`
	TotalTickets      int64     `json:"total_tickets"`
	CheckedInCount    int64     `json:"checked_in_count"`
	RemainingCount    int64     `json:"remaining_count"`
	DuplicateAttempts int64     `json:"duplicate_attempts"`
	InvalidAttempts   int64     `json:"invalid_attempts"`
	FailedAttempts    int64     `json:"failed_attempts"`
	LastUpdated       time.Time `json:"last_updated"`
}

// AttemptResponse represents one entry of the activity feed
type AttemptResponse struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	EventID       string    `json:"event_id"`
	SubmittedCode string    `json:"submitted_code"`
	Mode          string    `json:"mode"`
	Outcome       string    `json:"outcome"`
	OperatorID    string    `json:"operator_id"`
	TicketID      string    `json:"ticket_id,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// RecentAttemptsResponse represents the newest attempts of an event
type RecentAttemptsResponse struct {
	EventID  string             `json:"event_id"`
	Limit    int                `json:"limit"`
	Attempts []*AttemptResponse `json:"attempts"`
}

// TicketFromDomain converts a domain Ticket; nil stays nil
func TicketFromDomain(t *domain.Ticket) *TicketResponse {
	if t == nil {
		return nil
	}
	resp := &TicketResponse{
		ID:        t.ID,
		EventID:   t.EventID,
		Code:      t.Code,
		HolderRef: t.HolderRef,
		Status:    string(t.Status),
		UsedAt:    t.UsedAt,
	}
	if t.UsedByOperator != nil {
		resp.UsedByOperator = *t.UsedByOperator
	}
	return resp
}

// VerifyFromDomain converts a VerificationResult
func VerifyFromDomain(r *domain.VerificationResult) *VerifyResponse {
	return &VerifyResponse{
		Outcome:          string(r.Outcome),
		Message:          r.Message,
		Retryable:        r.Retryable,
		AttemptID:        r.AttemptID,
		AttemptTimestamp: r.AttemptTimestamp,
		Ticket:           TicketFromDomain(r.Ticket),
	}
}

// StatsFromDomain converts EventStats
func StatsFromDomain(s *domain.EventStats) *StatsResponse {
	return &StatsResponse{
		EventID:           s.EventID,
		TotalTickets:      s.TotalTickets,
		CheckedInCount:    s.CheckedInCount,
		RemainingCount:    s.RemainingCount,
		DuplicateAttempts: s.DuplicateAttempts,
		InvalidAttempts:   s.InvalidAttempts,
		FailedAttempts:    s.FailedAttempts,
		LastUpdated:       s.LastUpdated,
	}
}

// AttemptFromDomain converts a VerificationAttempt
func AttemptFromDomain(a *domain.VerificationAttempt) *AttemptResponse {
	return &AttemptResponse{
		ID:            a.ID,
		Timestamp:     a.Timestamp,
		EventID:       a.EventID,
		SubmittedCode: a.SubmittedCode,
		Mode:          string(a.Mode),
		Outcome:       string(a.Outcome),
		OperatorID:    a.OperatorID,
		TicketID:      a.TicketID,
		Message:       a.Message,
	}
}

// AttemptsFromDomain converts a slice of attempts, never returning nil
func AttemptsFromDomain(attempts []*domain.VerificationAttempt) []*AttemptResponse {
	out := make([]*AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, AttemptFromDomain(a))
	}
	return out
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
