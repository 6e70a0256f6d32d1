// Package importer loads issued-ticket manifests into the ticket store.
//
// A manifest is a YAML document describing one event and its tickets:
//
//	event:
//	  id: E1
//	  title: Opening night
//	  total_tickets: 3
//	tickets:
//	  - code: T-041
//	    holder_ref: order-9
//	  - id: tk-042
//	    code: t-042
//
// Codes are normalized before import. Ticket ids are generated when omitted.
// total_tickets defaults to the number of tickets listed.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"gopkg.in/yaml.v3"
)

// DefaultChunkSize bounds one Import call
const DefaultChunkSize = 1000

// Manifest is one event's issued tickets
type Manifest struct {
	Event   ManifestEvent    `yaml:"event"`
	Tickets []ManifestTicket `yaml:"tickets"`
}

// ManifestEvent describes the event the tickets belong to
type ManifestEvent struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	TotalTickets int64  `yaml:"total_tickets"`
}

// ManifestTicket is one issued ticket
type ManifestTicket struct {
	ID        string `yaml:"id"`
	Code      string `yaml:"code"`
	HolderRef string `yaml:"holder_ref"`
}

// Result summarizes an import run
type Result struct {
	EventID  string
	Listed   int
	Inserted int
	// Skipped counts codes already in the store, used or not
	Skipped int
}

// LoadManifest reads and validates a manifest file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := ParseManifest(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes a manifest, rejecting unknown fields, then normalizes and validates it
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.normalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) normalize() error {
	m.Event.ID = strings.TrimSpace(m.Event.ID)
	if m.Event.ID == "" {
		return fmt.Errorf("event.id is required")
	}
	if m.Event.TotalTickets < 0 {
		return fmt.Errorf("event.total_tickets must not be negative")
	}

	seen := make(map[string]int, len(m.Tickets))
	for i := range m.Tickets {
		t := &m.Tickets[i]
		t.Code = domain.NormalizeCode(t.Code)
		if !domain.ValidCode(t.Code) {
			return fmt.Errorf("tickets[%d]: invalid code %q", i, t.Code)
		}
		if prev, dup := seen[t.Code]; dup {
			return fmt.Errorf("tickets[%d]: code %s already listed at tickets[%d]", i, t.Code, prev)
		}
		seen[t.Code] = i

		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
	}

	if m.Event.TotalTickets == 0 {
		m.Event.TotalTickets = int64(len(m.Tickets))
	}
	if m.Event.TotalTickets < int64(len(m.Tickets)) {
		return fmt.Errorf("event.total_tickets %d is less than the %d tickets listed", m.Event.TotalTickets, len(m.Tickets))
	}
	return nil
}

// DomainTickets converts the manifest entries into store records
func (m *Manifest) DomainTickets() []*domain.Ticket {
	out := make([]*domain.Ticket, 0, len(m.Tickets))
	for _, t := range m.Tickets {
		out = append(out, &domain.Ticket{
			ID:        t.ID,
			EventID:   m.Event.ID,
			Code:      t.Code,
			HolderRef: t.HolderRef,
			Status:    domain.TicketStatusUnused,
		})
	}
	return out
}

// Apply upserts the event and imports its tickets in chunks. Re-running a
// manifest is safe: existing codes, USED ones included, are left untouched.
func Apply(ctx context.Context, m *Manifest, events repository.EventRepository, tickets repository.TicketRepository, chunkSize int) (*Result, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	err := events.Upsert(ctx, &domain.Event{
		ID:           m.Event.ID,
		Title:        m.Event.Title,
		TotalTickets: m.Event.TotalTickets,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert event %s: %w", m.Event.ID, err)
	}

	res := &Result{EventID: m.Event.ID, Listed: len(m.Tickets)}
	all := m.DomainTickets()
	for start := 0; start < len(all); start += chunkSize {
		end := min(start+chunkSize, len(all))
		n, err := tickets.Import(ctx, all[start:end])
		res.Inserted += n
		if err != nil {
			return res, fmt.Errorf("failed to import tickets %d-%d: %w", start, end-1, err)
		}
	}
	res.Skipped = res.Listed - res.Inserted
	return res, nil
}
