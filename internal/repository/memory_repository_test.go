package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTickets(t *testing.T, repo TicketRepository, eventID string, codes ...string) {
	t.Helper()
	tickets := make([]*domain.Ticket, 0, len(codes))
	for _, c := range codes {
		tickets = append(tickets, &domain.Ticket{ID: eventID + "-" + c, EventID: eventID, Code: c, HolderRef: "order-" + c})
	}
	n, err := repo.Import(context.Background(), tickets)
	require.NoError(t, err)
	require.Equal(t, len(codes), n)
}

func TestMemoryTicketRepository_GetByCode(t *testing.T) {
	repo := NewMemoryTicketRepository()
	seedTickets(t, repo, "e1", "T-042")

	tests := []struct {
		name    string
		eventID string
		code    string
		wantErr error
	}{
		{"exact", "e1", "T-042", nil},
		{"normalized", "e1", "  t-042 ", nil},
		{"other event", "e2", "T-042", domain.ErrTicketNotFound},
		{"missing", "e1", "T-999", domain.ErrTicketNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.GetByCode(context.Background(), tt.eventID, tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetByCode() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.Code != "T-042" {
				t.Errorf("GetByCode().Code = %v, want T-042", got.Code)
			}
		})
	}
}

func TestMemoryTicketRepository_MarkUsed(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	seedTickets(t, repo, "e1", "T-1")

	first := time.Date(2026, 5, 1, 19, 0, 0, 0, time.UTC)
	got, err := repo.MarkUsed(ctx, "e1", "e1-T-1", "op-a", first)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusUsed, got.Status)
	assert.True(t, got.UsedAt.Equal(first))
	assert.Equal(t, "op-a", *got.UsedByOperator)

	again, err := repo.MarkUsed(ctx, "e1", "e1-T-1", "op-b", first.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrTicketAlreadyUsed)
	assert.True(t, again.UsedAt.Equal(first), "used_at must not be overwritten")
	assert.Equal(t, "op-a", *again.UsedByOperator)

	_, err = repo.MarkUsed(ctx, "e2", "e1-T-1", "op-a", first)
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)

	// Returned records are copies
	*got.UsedByOperator = "tampered"
	stored, err := repo.GetByCode(ctx, "e1", "T-1")
	require.NoError(t, err)
	assert.Equal(t, "op-a", *stored.UsedByOperator)
}

func TestMemoryTicketRepository_MarkUsedConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	seedTickets(t, repo, "e1", "T-1")

	const callers = 50
	var wins, dups atomic.Int32
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.MarkUsed(ctx, "e1", "e1-T-1", fmt.Sprintf("op-%d", i), time.Now())
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrTicketAlreadyUsed):
				dups.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(callers-1), dups.Load())

	used, err := repo.CountUsed(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)
}

func TestMemoryTicketRepository_ImportIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	seedTickets(t, repo, "e1", "T-1", "T-2")

	_, err := repo.MarkUsed(ctx, "e1", "e1-T-1", "op", time.Now())
	require.NoError(t, err)

	n, err := repo.Import(ctx, []*domain.Ticket{
		{ID: "x", EventID: "e1", Code: "t-1"},
		{EventID: "e1", Code: "T-3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	t1, err := repo.GetByCode(ctx, "e1", "T-1")
	require.NoError(t, err)
	assert.True(t, t1.IsUsed(), "re-import must not reset USED tickets")

	t3, err := repo.GetByCode(ctx, "e1", "T-3")
	require.NoError(t, err)
	assert.NotEmpty(t, t3.ID)
}

func TestMemoryStatsRepository_Increment(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStatsRepository()
	now := time.Now()

	require.NoError(t, repo.Increment(ctx, "e1", domain.StatsDuplicate, now))
	require.NoError(t, repo.Increment(ctx, "e1", domain.StatsInvalid, now))
	require.NoError(t, repo.Increment(ctx, "e1", domain.StatsFailed, now))
	assert.ErrorIs(t, repo.Increment(ctx, "e1", domain.StatsCheckedIn, now), ErrUnknownCounter)

	c, err := repo.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.CheckedIn)
	assert.Equal(t, int64(1), c.Duplicate)
	assert.Equal(t, int64(2), c.Invalid, "failed attempts count as invalid too")
	assert.Equal(t, int64(1), c.Failed)
	assert.False(t, c.LastUpdated.IsZero())
}

func TestMemoryStatsRepository_AddCheckedIn(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStatsRepository()
	now := time.Now()

	added, err := repo.AddCheckedIn(ctx, "e1", []string{"a", "b"}, 5, now)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = repo.AddCheckedIn(ctx, "e1", []string{"a", "b", "c", ""}, 5, now)
	require.NoError(t, err)
	assert.Equal(t, 1, added, "ids already admitted are not counted again")

	c, _ := repo.Get(ctx, "e1")
	assert.Equal(t, int64(3), c.CheckedIn)

	_, err = repo.AddCheckedIn(ctx, "e1", []string{"d", "e", "f"}, 4, now)
	require.NoError(t, err)
	c, _ = repo.Get(ctx, "e1")
	assert.Equal(t, int64(4), c.CheckedIn, "checked_in is capped at total")

	other, _ := repo.Get(ctx, "e2")
	assert.Equal(t, int64(0), other.CheckedIn)
}

func TestMemoryTicketRepository_ListUsedIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTicketRepository()
	seedTickets(t, repo, "e1", "T-1", "T-2", "T-3")
	seedTickets(t, repo, "e2", "T-1")

	for _, id := range []string{"e1-T-1", "e1-T-3", "e2-T-1"} {
		ev := id[:2]
		_, err := repo.MarkUsed(ctx, ev, id, "op", time.Now())
		require.NoError(t, err)
	}

	ids, err := repo.ListUsedIDs(ctx, "e1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1-T-1", "e1-T-3"}, ids)
}

func TestMemoryActivityRepository_Range(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryActivityRepository(3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Append(ctx, &domain.VerificationAttempt{
			ID:      fmt.Sprintf("a%d", i),
			EventID: "e1",
			Outcome: domain.OutcomeSuccess,
		}))
	}
	require.NoError(t, repo.Append(ctx, &domain.VerificationAttempt{ID: "other", EventID: "e2"}))

	tests := []struct {
		name   string
		offset int
		count  int
		want   []string
	}{
		{"all newest first", 0, 10, []string{"a5", "a4", "a3"}},
		{"first page", 0, 2, []string{"a5", "a4"}},
		{"second page", 2, 2, []string{"a3"}},
		{"past end", 3, 2, nil},
		{"zero count", 0, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Range(ctx, "e1", tt.offset, tt.count)
			require.NoError(t, err)
			var ids []string
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryEventRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	_, err := repo.GetByID(ctx, "e1")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	require.NoError(t, repo.Upsert(ctx, &domain.Event{ID: "e1", Title: "Concert", TotalTickets: 100}))
	e, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), e.TotalTickets)
	assert.False(t, e.CreatedAt.IsZero())
}
