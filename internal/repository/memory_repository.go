package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
)

// MemoryTicketRepository is an in-process ticket store for local runs and tests.
// A single mutex makes MarkUsed a true compare-and-swap.
type MemoryTicketRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Ticket
	byCode map[string]string // event_id + "/" + code -> ticket id
}

// NewMemoryTicketRepository creates an empty store
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		byID:   make(map[string]*domain.Ticket),
		byCode: make(map[string]string),
	}
}

func codeKey(eventID, code string) string {
	return eventID + "/" + code
}

func (r *MemoryTicketRepository) GetByCode(_ context.Context, eventID, code string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[codeKey(eventID, domain.NormalizeCode(code))]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return r.byID[id].Clone(), nil
}

func (r *MemoryTicketRepository) MarkUsed(_ context.Context, eventID, ticketID, operatorID string, at time.Time) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[ticketID]
	if !ok || t.EventID != eventID {
		return nil, domain.ErrTicketNotFound
	}
	if t.IsUsed() {
		return t.Clone(), domain.ErrTicketAlreadyUsed
	}

	usedAt := at.UTC()
	op := operatorID
	t.Status = domain.TicketStatusUsed
	t.UsedAt = &usedAt
	t.UsedByOperator = &op
	t.UpdatedAt = usedAt
	return t.Clone(), nil
}

func (r *MemoryTicketRepository) CountUsed(_ context.Context, eventID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, t := range r.byID {
		if t.EventID == eventID && t.IsUsed() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryTicketRepository) ListUsedIDs(_ context.Context, eventID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, t := range r.byID {
		if t.EventID == eventID && t.IsUsed() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryTicketRepository) Import(_ context.Context, tickets []*domain.Ticket) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	inserted := 0
	for _, in := range tickets {
		code := domain.NormalizeCode(in.Code)
		key := codeKey(in.EventID, code)
		if _, exists := r.byCode[key]; exists {
			continue
		}

		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		r.byID[id] = &domain.Ticket{
			ID:        id,
			EventID:   in.EventID,
			Code:      code,
			HolderRef: in.HolderRef,
			Status:    domain.TicketStatusUnused,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.byCode[key] = id
		inserted++
	}
	return inserted, nil
}

// MemoryEventRepository is an in-process event store
type MemoryEventRepository struct {
	mu     sync.RWMutex
	events map[string]*domain.Event
}

// NewMemoryEventRepository creates an empty store
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{events: make(map[string]*domain.Event)}
}

func (r *MemoryEventRepository) GetByID(_ context.Context, id string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	c := *e
	return &c, nil
}

func (r *MemoryEventRepository) Upsert(_ context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	c := *event
	if existing, ok := r.events[event.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.events[event.ID] = &c
	return nil
}

// MemoryStatsRepository keeps counters and admitted ticket sets in maps
type MemoryStatsRepository struct {
	mu       sync.Mutex
	counters map[string]*StatsCounters
	admitted map[string]map[string]struct{}
}

// NewMemoryStatsRepository creates an empty store
func NewMemoryStatsRepository() *MemoryStatsRepository {
	return &MemoryStatsRepository{
		counters: make(map[string]*StatsCounters),
		admitted: make(map[string]map[string]struct{}),
	}
}

func (r *MemoryStatsRepository) get(eventID string) *StatsCounters {
	c, ok := r.counters[eventID]
	if !ok {
		c = &StatsCounters{}
		r.counters[eventID] = c
	}
	return c
}

func (r *MemoryStatsRepository) Increment(_ context.Context, eventID string, category domain.StatsCategory, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.get(eventID)
	switch category {
	case domain.StatsDuplicate:
		c.Duplicate++
	case domain.StatsInvalid:
		c.Invalid++
	case domain.StatsFailed:
		c.Invalid++
		c.Failed++
	default:
		return fmt.Errorf("%w: cannot increment %s", ErrUnknownCounter, category)
	}
	c.LastUpdated = at.UTC()
	return nil
}

func (r *MemoryStatsRepository) AddCheckedIn(_ context.Context, eventID string, ticketIDs []string, total int64, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.admitted[eventID]
	if !ok {
		set = make(map[string]struct{})
		r.admitted[eventID] = set
	}

	added := 0
	for _, id := range ticketIDs {
		if id == "" {
			continue
		}
		if _, seen := set[id]; !seen {
			set[id] = struct{}{}
			added++
		}
	}

	c := r.get(eventID)
	c.CheckedIn = capCheckedIn(int64(len(set)), total)
	if added > 0 {
		c.LastUpdated = at.UTC()
	}
	return added, nil
}

func (r *MemoryStatsRepository) Get(_ context.Context, eventID string) (*StatsCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *r.get(eventID)
	return &c, nil
}

// MemoryActivityRepository keeps a fixed-size ring buffer per event
type MemoryActivityRepository struct {
	mu    sync.RWMutex
	cap   int
	rings map[string]*attemptRing
}

type attemptRing struct {
	buf  []*domain.VerificationAttempt
	head int // next write position
	size int
}

// NewMemoryActivityRepository creates a store capped at feedCap entries per event
func NewMemoryActivityRepository(feedCap int) *MemoryActivityRepository {
	if feedCap <= 0 {
		feedCap = DefaultActivityFeedCap
	}
	return &MemoryActivityRepository{cap: feedCap, rings: make(map[string]*attemptRing)}
}

func (r *MemoryActivityRepository) Append(_ context.Context, attempt *domain.VerificationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ring, ok := r.rings[attempt.EventID]
	if !ok {
		ring = &attemptRing{buf: make([]*domain.VerificationAttempt, r.cap)}
		r.rings[attempt.EventID] = ring
	}

	a := *attempt
	ring.buf[ring.head] = &a
	ring.head = (ring.head + 1) % len(ring.buf)
	if ring.size < len(ring.buf) {
		ring.size++
	}
	return nil
}

func (r *MemoryActivityRepository) Range(_ context.Context, eventID string, offset, count int) ([]*domain.VerificationAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ring, ok := r.rings[eventID]
	if !ok || offset < 0 || count <= 0 || offset >= ring.size {
		return nil, nil
	}

	end := min(offset+count, ring.size)
	out := make([]*domain.VerificationAttempt, 0, end-offset)
	n := len(ring.buf)
	for i := offset; i < end; i++ {
		// i-th newest entry
		idx := (ring.head - 1 - i + n) % n
		a := *ring.buf[idx]
		out = append(out, &a)
	}
	return out, nil
}

var (
	_ TicketRepository   = (*MemoryTicketRepository)(nil)
	_ EventRepository    = (*MemoryEventRepository)(nil)
	_ StatsRepository    = (*MemoryStatsRepository)(nil)
	_ ActivityRepository = (*MemoryActivityRepository)(nil)
)
