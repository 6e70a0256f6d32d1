package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresTicketRepository is the authoritative ticket store
type PostgresTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository creates a new PostgresTicketRepository
func NewPostgresTicketRepository(pool *pgxpool.Pool) *PostgresTicketRepository {
	return &PostgresTicketRepository{pool: pool}
}

const ticketColumns = `id, event_id, code, COALESCE(holder_ref, '') as holder_ref,
	status, used_at, used_by_operator, created_at, updated_at`

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	t := &domain.Ticket{}
	var status string
	err := row.Scan(
		&t.ID,
		&t.EventID,
		&t.Code,
		&t.HolderRef,
		&status,
		&t.UsedAt,
		&t.UsedByOperator,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	return t, nil
}

// GetByCode retrieves a ticket by event and normalized code
func (r *PostgresTicketRepository) GetByCode(ctx context.Context, eventID, code string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get_by_code")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_code", code),
	)

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE event_id = $1 AND code = $2`, ticketColumns)
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, eventID, domain.NormalizeCode(code)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return ticket, nil
}

// MarkUsed performs the UNUSED -> USED compare-and-swap in a single statement.
// The row lock taken by UPDATE serializes concurrent callers; losers see zero rows.
func (r *PostgresTicketRepository) MarkUsed(ctx context.Context, eventID, ticketID, operatorID string, at time.Time) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.mark_used")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_id", ticketID),
		attribute.String("operator_id", operatorID),
	)

	query := fmt.Sprintf(`
		UPDATE tickets
		SET status = 'USED', used_at = $3, used_by_operator = $4, updated_at = $3
		WHERE id = $1 AND event_id = $2 AND status = 'UNUSED'
		RETURNING %s
	`, ticketColumns)

	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, ticketID, eventID, at.UTC(), operatorID))
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to mark ticket used: %w", err)
	}

	// Lost the race or already used: report the winner's record
	existing, err := scanTicket(r.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM tickets WHERE id = $1 AND event_id = $2`, ticketColumns),
		ticketID, eventID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to reload ticket: %w", err)
	}

	if !existing.IsUsed() {
		span.SetStatus(codes.Error, "inconsistent state")
		return nil, fmt.Errorf("ticket %s not updated but still %s: %w", ticketID, existing.Status, domain.ErrInconsistentState)
	}

	span.SetAttributes(attribute.Bool("already_used", true))
	span.SetStatus(codes.Ok, "")
	return existing, domain.ErrTicketAlreadyUsed
}

// CountUsed returns the authoritative number of admitted tickets
func (r *PostgresTicketRepository) CountUsed(ctx context.Context, eventID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.count_used")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND status = 'USED'`,
		eventID,
	).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count used tickets: %w", err)
	}

	span.SetAttributes(attribute.Int64("used_count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

// ListUsedIDs returns the ids of every admitted ticket for an event
func (r *PostgresTicketRepository) ListUsedIDs(ctx context.Context, eventID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.list_used_ids")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM tickets WHERE event_id = $1 AND status = 'USED'`,
		eventID,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list used tickets: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to scan used tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("used_count", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids, nil
}

// Import inserts issued tickets in one batch. Existing codes, used or not, are left untouched.
func (r *PostgresTicketRepository) Import(ctx context.Context, tickets []*domain.Ticket) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.import")
	defer span.End()

	span.SetAttributes(attribute.Int("ticket_count", len(tickets)))

	if len(tickets) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO tickets (id, event_id, code, holder_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), 'UNUSED', $5, $5)
		ON CONFLICT (event_id, code) DO NOTHING
	`

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, t := range tickets {
		batch.Queue(query, t.ID, t.EventID, domain.NormalizeCode(t.Code), t.HolderRef, now)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range tickets {
		tag, err := results.Exec()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return inserted, fmt.Errorf("failed to import tickets: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	span.SetAttributes(attribute.Int("inserted", inserted))
	span.SetStatus(codes.Ok, "")
	return inserted, nil
}

// Ensure PostgresTicketRepository implements TicketRepository
var _ TicketRepository = (*PostgresTicketRepository)(nil)
