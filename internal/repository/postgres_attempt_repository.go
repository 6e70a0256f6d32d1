package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresAttemptRepository archives verification attempts
type PostgresAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAttemptRepository creates a new PostgresAttemptRepository
func NewPostgresAttemptRepository(pool *pgxpool.Pool) *PostgresAttemptRepository {
	return &PostgresAttemptRepository{pool: pool}
}

// SaveBatch inserts attempts. Redelivered ids are skipped so the archiver can be at-least-once.
func (r *PostgresAttemptRepository) SaveBatch(ctx context.Context, attempts []*domain.VerificationAttempt) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.attempt.save_batch")
	defer span.End()

	span.SetAttributes(attribute.Int("batch_size", len(attempts)))

	if len(attempts) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO verification_attempts (
			id, event_id, submitted_code, mode, outcome,
			operator_id, ticket_id, message, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, a := range attempts {
		batch.Queue(query,
			a.ID,
			a.EventID,
			a.SubmittedCode,
			string(a.Mode),
			string(a.Outcome),
			a.OperatorID,
			a.TicketID,
			a.Message,
			a.Timestamp.UTC(),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range attempts {
		tag, err := results.Exec()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return inserted, fmt.Errorf("failed to archive attempts: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}

	span.SetAttributes(attribute.Int("inserted", inserted))
	span.SetStatus(codes.Ok, "")
	return inserted, nil
}

// ListByTicket returns a ticket's archived attempts in chronological order
func (r *PostgresAttemptRepository) ListByTicket(ctx context.Context, eventID, ticketID string) ([]*domain.VerificationAttempt, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.attempt.list_by_ticket")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("ticket_id", ticketID),
	)

	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, submitted_code, mode, outcome, operator_id,
			COALESCE(ticket_id, ''), COALESCE(message, ''), attempted_at
		FROM verification_attempts
		WHERE event_id = $1 AND ticket_id = $2
		ORDER BY attempted_at ASC
	`, eventID, ticketID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.VerificationAttempt
	for rows.Next() {
		a := &domain.VerificationAttempt{}
		var mode, outcome string
		if err := rows.Scan(
			&a.ID,
			&a.EventID,
			&a.SubmittedCode,
			&mode,
			&outcome,
			&a.OperatorID,
			&a.TicketID,
			&a.Message,
			&a.Timestamp,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Mode = domain.ScanMode(mode)
		a.Outcome = domain.Outcome(outcome)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return attempts, nil
}

// Ensure PostgresAttemptRepository implements AttemptArchive
var _ AttemptArchive = (*PostgresAttemptRepository)(nil)
