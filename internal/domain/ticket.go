package domain

import (
	"regexp"
	"strings"
	"time"
)

// TicketStatus represents the admission state of a ticket (matches DB CHECK constraint)
type TicketStatus string

const (
	TicketStatusUnused TicketStatus = "UNUSED"
	TicketStatusUsed   TicketStatus = "USED"
)

// MaxTicketCodeLength is the longest accepted ticket code
const MaxTicketCodeLength = 64

var ticketCodePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._-]{0,63}$`)

// Ticket is a single admission right scoped to one event
type Ticket struct {
	ID             string       `json:"id"`
	EventID        string       `json:"event_id"`
	Code           string       `json:"code"`
	HolderRef      string       `json:"holder_ref,omitempty"`
	Status         TicketStatus `json:"status"`
	UsedAt         *time.Time   `json:"used_at,omitempty"`
	UsedByOperator *string      `json:"used_by_operator,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IsUsed reports whether the ticket has been admitted
func (t *Ticket) IsUsed() bool {
	return t.Status == TicketStatusUsed
}

// IsConsistent checks the USED <=> used_at/used_by_operator invariant
func (t *Ticket) IsConsistent() bool {
	switch t.Status {
	case TicketStatusUsed:
		return t.UsedAt != nil && t.UsedByOperator != nil && *t.UsedByOperator != ""
	case TicketStatusUnused:
		return t.UsedAt == nil && t.UsedByOperator == nil
	default:
		return false
	}
}

// Clone returns a deep copy so callers cannot mutate stored state
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	if t.UsedAt != nil {
		at := *t.UsedAt
		c.UsedAt = &at
	}
	if t.UsedByOperator != nil {
		op := *t.UsedByOperator
		c.UsedByOperator = &op
	}
	return &c
}

// NormalizeCode trims whitespace and upper-cases a ticket code.
// Ticket codes are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether an already normalized code is well-formed
func ValidCode(code string) bool {
	return ticketCodePattern.MatchString(code)
}
