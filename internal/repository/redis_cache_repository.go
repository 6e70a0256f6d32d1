package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	pkgredis "github.com/prohmpiriya/booking-rush-checkin/pkg/redis"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// CachedTicketRepository serves lookups from Redis with bounded staleness.
// MarkUsed always goes to the primary store, which re-checks authoritative state.
// Cache failures fall through to the primary.
type CachedTicketRepository struct {
	primary TicketRepository
	client  *pkgredis.Client
	ttl     time.Duration
}

// NewCachedTicketRepository wraps primary with a read-through cache
func NewCachedTicketRepository(primary TicketRepository, client *pkgredis.Client, ttl time.Duration) *CachedTicketRepository {
	return &CachedTicketRepository{primary: primary, client: client, ttl: ttl}
}

func ticketCacheKey(eventID, code string) string {
	return fmt.Sprintf("checkin:ticket:%s:%s", eventID, domain.NormalizeCode(code))
}

// GetByCode returns the cached ticket or loads and caches it
func (r *CachedTicketRepository) GetByCode(ctx context.Context, eventID, code string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.cache.ticket.get_by_code")
	defer span.End()

	key := ticketCacheKey(eventID, code)
	if data, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var t domain.Ticket
		if json.Unmarshal(data, &t) == nil {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return &t, nil
		}
	}

	span.SetAttributes(attribute.Bool("cache_hit", false))
	ticket, err := r.primary.GetByCode(ctx, eventID, code)
	if err != nil {
		return nil, err
	}
	r.store(ctx, ticket)
	return ticket, nil
}

// MarkUsed delegates to the primary and refreshes the cache with the result
func (r *CachedTicketRepository) MarkUsed(ctx context.Context, eventID, ticketID, operatorID string, at time.Time) (*domain.Ticket, error) {
	ticket, err := r.primary.MarkUsed(ctx, eventID, ticketID, operatorID, at)
	if ticket != nil && (err == nil || errors.Is(err, domain.ErrTicketAlreadyUsed)) {
		r.store(ctx, ticket)
	}
	return ticket, err
}

// CountUsed is never cached
func (r *CachedTicketRepository) CountUsed(ctx context.Context, eventID string) (int64, error) {
	return r.primary.CountUsed(ctx, eventID)
}

// ListUsedIDs is never cached
func (r *CachedTicketRepository) ListUsedIDs(ctx context.Context, eventID string) ([]string, error) {
	return r.primary.ListUsedIDs(ctx, eventID)
}

// Import delegates to the primary. New codes cannot be cached yet, so nothing is invalidated.
func (r *CachedTicketRepository) Import(ctx context.Context, tickets []*domain.Ticket) (int, error) {
	return r.primary.Import(ctx, tickets)
}

func (r *CachedTicketRepository) store(ctx context.Context, t *domain.Ticket) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, ticketCacheKey(t.EventID, t.Code), data, r.ttl).Err()
}

// CachedEventRepository caches event metadata, which changes rarely during check-in
type CachedEventRepository struct {
	primary EventRepository
	client  *pkgredis.Client
	ttl     time.Duration
}

// NewCachedEventRepository wraps primary with a read-through cache
func NewCachedEventRepository(primary EventRepository, client *pkgredis.Client, ttl time.Duration) *CachedEventRepository {
	return &CachedEventRepository{primary: primary, client: client, ttl: ttl}
}

func eventCacheKey(id string) string {
	return fmt.Sprintf("checkin:event:%s", id)
}

// GetByID returns the cached event or loads and caches it
func (r *CachedEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	key := eventCacheKey(id)
	if data, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var e domain.Event
		if json.Unmarshal(data, &e) == nil {
			return &e, nil
		}
	}

	event, err := r.primary.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(event); err == nil {
		_ = r.client.Set(ctx, key, data, r.ttl).Err()
	}
	return event, nil
}

// Upsert writes through and drops the cached copy
func (r *CachedEventRepository) Upsert(ctx context.Context, event *domain.Event) error {
	if err := r.primary.Upsert(ctx, event); err != nil {
		return err
	}
	_ = r.client.Del(ctx, eventCacheKey(event.ID)).Err()
	return nil
}

var (
	_ TicketRepository = (*CachedTicketRepository)(nil)
	_ EventRepository  = (*CachedEventRepository)(nil)
)
