package domain

import "time"

// StatsCategory names a per-event counter
type StatsCategory string

const (
	StatsCheckedIn StatsCategory = "checked_in"
	StatsDuplicate StatsCategory = "duplicate_attempts"
	StatsInvalid   StatsCategory = "invalid_attempts"
	StatsFailed    StatsCategory = "failed_attempts"
)

// EventStats is a derived view of check-in progress for one event
type EventStats struct {
	EventID           string    `json:"event_id"`
	TotalTickets      int64     `json:"total_tickets"`
	CheckedInCount    int64     `json:"checked_in_count"`
	RemainingCount    int64     `json:"remaining_count"`
	DuplicateAttempts int64     `json:"duplicate_attempts"`
	InvalidAttempts   int64     `json:"invalid_attempts"`
	// FailedAttempts is the share of InvalidAttempts caused by store or internal faults
	FailedAttempts    int64     `json:"failed_attempts"`
	LastUpdated       time.Time `json:"last_updated"`
}

// NewEventStats builds a snapshot from raw counters, keeping
// 0 <= checked_in <= total and remaining = total - checked_in.
func NewEventStats(eventID string, total, checkedIn, duplicate, invalid, failed int64, lastUpdated time.Time) *EventStats {
	total = max(total, 0)
	checkedIn = min(max(checkedIn, 0), total)
	return &EventStats{
		EventID:           eventID,
		TotalTickets:      total,
		CheckedInCount:    checkedIn,
		RemainingCount:    total - checkedIn,
		DuplicateAttempts: max(duplicate, 0),
		InvalidAttempts:   max(invalid, 0),
		FailedAttempts:    max(failed, 0),
		LastUpdated:       lastUpdated,
	}
}
