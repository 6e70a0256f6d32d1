package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
event:
  id: E1
  title: Opening night
  total_tickets: 5
tickets:
  - code: " t-041 "
    holder_ref: order-9
  - id: tk-042
    code: T-042
  - code: T-043
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	assert.Equal(t, "E1", m.Event.ID)
	assert.Equal(t, int64(5), m.Event.TotalTickets)
	require.Len(t, m.Tickets, 3)
	assert.Equal(t, "T-041", m.Tickets[0].Code)
	assert.NotEmpty(t, m.Tickets[0].ID, "missing ids are generated")
	assert.Equal(t, "tk-042", m.Tickets[1].ID)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "empty", input: "", wantErr: "empty"},
		{name: "no event id", input: "event: {title: x}\ntickets: []", wantErr: "event.id"},
		{name: "unknown field", input: "event: {id: E1}\nseats: []", wantErr: "seats"},
		{name: "bad code", input: "event: {id: E1}\ntickets: [{code: 'has space'}]", wantErr: "invalid code"},
		{name: "duplicate after normalize", input: "event: {id: E1}\ntickets: [{code: a-1}, {code: A-1}]", wantErr: "already listed"},
		{name: "total below listed", input: "event: {id: E1, total_tickets: 1}\ntickets: [{code: A}, {code: B}]", wantErr: "less than"},
		{name: "negative total", input: "event: {id: E1, total_tickets: -1}", wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseManifest() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseManifest_TotalDefaultsToListed(t *testing.T) {
	m, err := ParseManifest(strings.NewReader("event: {id: E2}\ntickets: [{code: A}, {code: B}]"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Event.TotalTickets)
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "e1.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Tickets, 3)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	events := repository.NewMemoryEventRepository()
	tickets := repository.NewMemoryTicketRepository()

	m, err := ParseManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	res, err := Apply(ctx, m, events, tickets, 2)
	require.NoError(t, err)
	assert.Equal(t, &Result{EventID: "E1", Listed: 3, Inserted: 3, Skipped: 0}, res)

	event, err := events.GetByID(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), event.TotalTickets)

	ticket, err := tickets.GetByCode(ctx, "E1", "T-041")
	require.NoError(t, err)
	assert.Equal(t, "order-9", ticket.HolderRef)
	assert.Equal(t, domain.TicketStatusUnused, ticket.Status)

	// re-running never resets a used ticket
	_, err = tickets.MarkUsed(ctx, "E1", "tk-042", "gate-a", time.Now())
	require.NoError(t, err)
	res, err = Apply(ctx, m, events, tickets, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 3, res.Skipped)

	used, err := tickets.GetByCode(ctx, "E1", "T-042")
	require.NoError(t, err)
	assert.True(t, used.IsUsed())
}

type failingTickets struct {
	repository.TicketRepository
}

func (failingTickets) Import(ctx context.Context, tickets []*domain.Ticket) (int, error) {
	return 0, errors.New("connection refused")
}

func TestApply_ImportError(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	_, err = Apply(context.Background(), m, repository.NewMemoryEventRepository(), failingTickets{}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
