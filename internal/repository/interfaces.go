package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
)

// TicketRepository defines the interface for ticket data access
type TicketRepository interface {
	// GetByCode retrieves a ticket by its normalized code within an event.
	// Returns domain.ErrTicketNotFound when absent.
	GetByCode(ctx context.Context, eventID, code string) (*domain.Ticket, error)
	// MarkUsed atomically transitions UNUSED -> USED. If the ticket is already
	// USED the existing record is returned together with domain.ErrTicketAlreadyUsed.
	MarkUsed(ctx context.Context, eventID, ticketID, operatorID string, at time.Time) (*domain.Ticket, error)
	// CountUsed returns the number of USED tickets for an event
	CountUsed(ctx context.Context, eventID string) (int64, error)
	// ListUsedIDs returns the ids of every USED ticket for an event
	ListUsedIDs(ctx context.Context, eventID string) ([]string, error)
	// Import inserts issued tickets, skipping codes that already exist
	Import(ctx context.Context, tickets []*domain.Ticket) (int, error)
}

// EventRepository defines the interface for event data access
type EventRepository interface {
	// GetByID retrieves an event by ID. Returns domain.ErrEventNotFound when absent.
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	// Upsert creates or updates an event (used by the ticket importer)
	Upsert(ctx context.Context, event *domain.Event) error
}

// ErrUnknownCounter is returned when Increment is asked for a counter it does not own
var ErrUnknownCounter = errors.New("unknown stats counter")

// StatsRepository stores per-event check-in counters.
// checked_in is the size of the event's admitted ticket set, so a ticket is
// counted at most once however many times it is reported.
type StatsRepository interface {
	// Increment bumps a non-success counter and refreshes last_updated.
	// failed_attempts also counts toward invalid_attempts.
	Increment(ctx context.Context, eventID string, category domain.StatsCategory, at time.Time) error
	// AddCheckedIn adds ticket ids to the admitted set and sets checked_in to
	// its size, capped at total (a negative total disables the cap).
	// It returns how many ids were new.
	AddCheckedIn(ctx context.Context, eventID string, ticketIDs []string, total int64, at time.Time) (int, error)
	// Get returns the raw counters for an event
	Get(ctx context.Context, eventID string) (*StatsCounters, error)
}

func capCheckedIn(n, total int64) int64 {
	if total >= 0 && n > total {
		return total
	}
	return n
}

// StatsCounters is the raw per-event counter set
type StatsCounters struct {
	CheckedIn   int64
	Duplicate   int64
	Invalid     int64 // includes Failed
	Failed      int64
	LastUpdated time.Time
}

// ActivityRepository stores the bounded recent attempts feed
type ActivityRepository interface {
	// Append adds an attempt to the head of its event's feed and evicts past the cap
	Append(ctx context.Context, attempt *domain.VerificationAttempt) error
	// Range returns up to count attempts starting at offset, newest first
	Range(ctx context.Context, eventID string, offset, count int) ([]*domain.VerificationAttempt, error)
}

// AttemptArchive stores the durable audit history of attempts
type AttemptArchive interface {
	// SaveBatch inserts attempts, ignoring ids already stored
	SaveBatch(ctx context.Context, attempts []*domain.VerificationAttempt) (int, error)
	// ListByTicket returns archived attempts for a ticket, oldest first
	ListByTicket(ctx context.Context, eventID, ticketID string) ([]*domain.VerificationAttempt, error)
}
