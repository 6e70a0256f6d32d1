package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"T-042", "T-042"},
		{"  t-042 \n", "T-042"},
		{"\tabc.def_1", "ABC.DEF_1"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		if got := NormalizeCode(tt.in); got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"T-042", true},
		{"A", true},
		{"ABC.123_X-9", true},
		{"", false},
		{"-T42", false},
		{"T 42", false},
		{"t-042", false},
		{"T/42", false},
		{strings.Repeat("A", MaxTicketCodeLength), true},
		{strings.Repeat("A", MaxTicketCodeLength+1), false},
	}

	for _, tt := range tests {
		if got := ValidCode(tt.code); got != tt.want {
			t.Errorf("ValidCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestTicket_IsConsistent(t *testing.T) {
	now := time.Now()
	op := "op-1"
	empty := ""

	tests := []struct {
		name   string
		ticket Ticket
		want   bool
	}{
		{"unused", Ticket{Status: TicketStatusUnused}, true},
		{"used", Ticket{Status: TicketStatusUsed, UsedAt: &now, UsedByOperator: &op}, true},
		{"used without time", Ticket{Status: TicketStatusUsed, UsedByOperator: &op}, false},
		{"used with empty operator", Ticket{Status: TicketStatusUsed, UsedAt: &now, UsedByOperator: &empty}, false},
		{"unused with time", Ticket{Status: TicketStatusUnused, UsedAt: &now}, false},
		{"unknown status", Ticket{Status: "VOID"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ticket.IsConsistent(); got != tt.want {
				t.Errorf("IsConsistent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTicket_Clone(t *testing.T) {
	now := time.Now()
	op := "op-1"
	orig := &Ticket{ID: "t1", Status: TicketStatusUsed, UsedAt: &now, UsedByOperator: &op}

	c := orig.Clone()
	*c.UsedByOperator = "op-2"
	later := now.Add(time.Hour)
	c.UsedAt = &later

	if *orig.UsedByOperator != "op-1" {
		t.Errorf("original operator mutated to %q", *orig.UsedByOperator)
	}
	if !orig.UsedAt.Equal(now) {
		t.Errorf("original used_at mutated")
	}
	if (*Ticket)(nil).Clone() != nil {
		t.Errorf("Clone() of nil should be nil")
	}
}

func TestOutcome_StatsCategory(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    StatsCategory
	}{
		{OutcomeSuccess, StatsCheckedIn},
		{OutcomeDuplicate, StatsDuplicate},
		{OutcomeNotFound, StatsInvalid},
		{OutcomeWrongEvent, StatsInvalid},
		{OutcomeInvalidFormat, StatsInvalid},
		{OutcomeStoreUnavailable, StatsFailed},
		{OutcomeInternal, StatsFailed},
	}

	for _, tt := range tests {
		if got := tt.outcome.StatsCategory(); got != tt.want {
			t.Errorf("%s.StatsCategory() = %v, want %v", tt.outcome, got, tt.want)
		}
	}
}

func TestOutcome_IsValid(t *testing.T) {
	for _, o := range AllOutcomes {
		if !o.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", o)
		}
		if o.Message() == "" {
			t.Errorf("%s.Message() is empty", o)
		}
	}
	if Outcome("MAYBE").IsValid() {
		t.Errorf("unknown outcome reported valid")
	}
	if !OutcomeStoreUnavailable.Retryable() || OutcomeDuplicate.Retryable() {
		t.Errorf("only STORE_UNAVAILABLE should be retryable")
	}
}

func TestNewEventStats(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name          string
		total         int64
		checkedIn     int64
		wantChecked   int64
		wantRemaining int64
	}{
		{"normal", 100, 42, 42, 58},
		{"capped at total", 100, 150, 100, 0},
		{"negative counter", 100, -3, 0, 100},
		{"no inventory", 0, 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEventStats("e1", tt.total, tt.checkedIn, 1, 2, 3, now)
			if s.CheckedInCount != tt.wantChecked {
				t.Errorf("CheckedInCount = %v, want %v", s.CheckedInCount, tt.wantChecked)
			}
			if s.RemainingCount != tt.wantRemaining {
				t.Errorf("RemainingCount = %v, want %v", s.RemainingCount, tt.wantRemaining)
			}
			if s.RemainingCount != s.TotalTickets-s.CheckedInCount {
				t.Errorf("remaining != total - checked_in")
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", ErrTicketNotFound)

	if !IsNotFoundError(wrapped) {
		t.Errorf("IsNotFoundError(wrapped) = false")
	}
	if !IsValidationError(ErrInvalidScanMode) {
		t.Errorf("IsValidationError(ErrInvalidScanMode) = false")
	}
	if !IsConflictError(fmt.Errorf("mark: %w", ErrTicketAlreadyUsed)) {
		t.Errorf("IsConflictError = false")
	}
	if !IsPayloadError(ErrInvalidSignature) || IsPayloadError(ErrTicketNotFound) {
		t.Errorf("IsPayloadError misclassified")
	}
	if !IsStoreUnavailable(fmt.Errorf("x: %w", ErrStoreUnavailable)) {
		t.Errorf("IsStoreUnavailable = false")
	}
}
