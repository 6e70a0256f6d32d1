package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/metrics"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StatsService aggregates per-event check-in counters
type StatsService interface {
	// Record counts one attempt. A SUCCESS adds ticketID to the admitted set,
	// so reporting the same ticket twice never raises checked_in.
	Record(ctx context.Context, eventID, ticketID string, outcome domain.Outcome) error
	// Snapshot returns a consistent, clamped view of an event's counters
	Snapshot(ctx context.Context, eventID string) (*domain.EventStats, error)
	// Reconcile adds USED tickets missing from the admitted set and returns the corrected snapshot
	Reconcile(ctx context.Context, eventID string) (*domain.EventStats, error)
}

type statsService struct {
	statsRepo  repository.StatsRepository
	eventRepo  repository.EventRepository
	ticketRepo repository.TicketRepository
	now        func() time.Time
}

// NewStatsService creates a new stats service
func NewStatsService(
	statsRepo repository.StatsRepository,
	eventRepo repository.EventRepository,
	ticketRepo repository.TicketRepository,
) StatsService {
	return &statsService{
		statsRepo:  statsRepo,
		eventRepo:  eventRepo,
		ticketRepo: ticketRepo,
		now:        time.Now,
	}
}

// totalTickets returns the event's inventory, or -1 when the event is unknown
func (s *statsService) totalTickets(ctx context.Context, eventID string) (int64, error) {
	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			return -1, nil
		}
		return 0, err
	}
	return event.TotalTickets, nil
}

func (s *statsService) Record(ctx context.Context, eventID, ticketID string, outcome domain.Outcome) error {
	ctx, span := telemetry.StartSpan(ctx, "service.stats.record")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("outcome", string(outcome)),
	)

	category := outcome.StatsCategory()
	if category != domain.StatsCheckedIn {
		if err := s.statsRepo.Increment(ctx, eventID, category, s.now()); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to record %s: %w", outcome, err)
		}
		span.SetStatus(codes.Ok, "")
		return nil
	}

	if ticketID == "" {
		span.SetStatus(codes.Error, "missing ticket id")
		return fmt.Errorf("failed to record %s: ticket id is required", outcome)
	}
	span.SetAttributes(attribute.String("ticket_id", ticketID))

	total, err := s.totalTickets(ctx, eventID)
	if err != nil {
		// Record uncapped rather than drop the success; Snapshot clamps.
		span.RecordError(err)
		total = -1
	}

	added, err := s.statsRepo.AddCheckedIn(ctx, eventID, []string{ticketID}, total, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to record %s: %w", outcome, err)
	}

	span.SetAttributes(attribute.Bool("already_counted", added == 0))
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *statsService) Snapshot(ctx context.Context, eventID string) (*domain.EventStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.stats.snapshot")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	event, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load event: %w: %w", domain.ErrStoreUnavailable, err)
	}

	counters, err := s.statsRepo.Get(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load stats: %w: %w", domain.ErrStoreUnavailable, err)
	}

	stats := domain.NewEventStats(
		eventID,
		event.TotalTickets,
		counters.CheckedIn,
		counters.Duplicate,
		counters.Invalid,
		counters.Failed,
		counters.LastUpdated,
	)

	span.SetAttributes(
		attribute.Int64("checked_in", stats.CheckedInCount),
		attribute.Int64("remaining", stats.RemainingCount),
	)
	span.SetStatus(codes.Ok, "")
	return stats, nil
}

func (s *statsService) Reconcile(ctx context.Context, eventID string) (*domain.EventStats, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.stats.reconcile")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	before, err := s.statsRepo.Get(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	used, err := s.ticketRepo.CountUsed(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to count used tickets: %w", err)
	}

	// The admitted set only ever holds USED tickets, so equal sizes mean equal sets
	if used != before.CheckedIn {
		ids, err := s.ticketRepo.ListUsedIDs(ctx, eventID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to list used tickets: %w", err)
		}

		total, err := s.totalTickets(ctx, eventID)
		if err != nil {
			span.RecordError(err)
			total = -1
		}

		added, err := s.statsRepo.AddCheckedIn(ctx, eventID, ids, total, s.now())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to correct checked_in: %w", err)
		}
		span.SetAttributes(attribute.Int("added", added))
		if added > 0 {
			metrics.RecordDriftCorrected(ctx, eventID, int64(added))
		}
	}

	span.SetStatus(codes.Ok, "")
	return s.Snapshot(ctx, eventID)
}
