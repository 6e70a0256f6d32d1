package domain

import (
	"time"
)

// Outcome is the fixed-category result of one verification attempt
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeDuplicate        Outcome = "DUPLICATE"
	OutcomeNotFound         Outcome = "NOT_FOUND"
	OutcomeWrongEvent       Outcome = "WRONG_EVENT"
	OutcomeInvalidFormat    Outcome = "INVALID_FORMAT"
	OutcomeStoreUnavailable Outcome = "STORE_UNAVAILABLE"
	OutcomeInternal         Outcome = "INTERNAL"
)

// AllOutcomes lists every outcome in a stable order
var AllOutcomes = []Outcome{
	OutcomeSuccess,
	OutcomeDuplicate,
	OutcomeNotFound,
	OutcomeWrongEvent,
	OutcomeInvalidFormat,
	OutcomeStoreUnavailable,
	OutcomeInternal,
}

// IsValid checks if the outcome is known
func (o Outcome) IsValid() bool {
	for _, known := range AllOutcomes {
		if o == known {
			return true
		}
	}
	return false
}

// Retryable reports whether the caller may resubmit the same scan
func (o Outcome) Retryable() bool {
	return o == OutcomeStoreUnavailable
}

// StatsCategory maps an outcome onto the counter it increments.
// StatsFailed also counts toward StatsInvalid.
func (o Outcome) StatsCategory() StatsCategory {
	switch o {
	case OutcomeSuccess:
		return StatsCheckedIn
	case OutcomeDuplicate:
		return StatsDuplicate
	case OutcomeInvalidFormat, OutcomeWrongEvent, OutcomeNotFound:
		return StatsInvalid
	default:
		return StatsFailed
	}
}

// Message returns the operator-facing text for an outcome
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return "Check-in successful"
	case OutcomeDuplicate:
		return "Ticket already checked in"
	case OutcomeNotFound:
		return "Ticket not found for this event"
	case OutcomeWrongEvent:
		return "Ticket is not valid for this event"
	case OutcomeInvalidFormat:
		return "Invalid ticket code"
	case OutcomeStoreUnavailable:
		return "Ticket store unavailable, please retry"
	default:
		return "Internal error"
	}
}

// ScanMode tells how the raw code was captured
type ScanMode string

const (
	ScanModeManual ScanMode = "MANUAL"
	ScanModeQR     ScanMode = "QR"
)

// IsValid checks if the scan mode is known
func (m ScanMode) IsValid() bool {
	return m == ScanModeManual || m == ScanModeQR
}

// VerificationAttempt is an immutable record of one scan
type VerificationAttempt struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	EventID       string    `json:"event_id"`
	SubmittedCode string    `json:"submitted_code"`
	Mode          ScanMode  `json:"mode"`
	Outcome       Outcome   `json:"outcome"`
	OperatorID    string    `json:"operator_id"`
	TicketID      string    `json:"ticket_id,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// VerificationResult is returned to the scanning station
type VerificationResult struct {
	Outcome          Outcome   `json:"outcome"`
	Message          string    `json:"message"`
	Ticket           *Ticket   `json:"ticket,omitempty"`
	AttemptID        string    `json:"attempt_id"`
	AttemptTimestamp time.Time `json:"attempt_timestamp"`
	Retryable        bool      `json:"retryable"`
}
