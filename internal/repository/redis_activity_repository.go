package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	pkgredis "github.com/prohmpiriya/booking-rush-checkin/pkg/redis"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultActivityFeedCap is the per-event feed size when none is configured
const DefaultActivityFeedCap = 500

// RedisActivityRepository keeps each event's recent attempts in a capped Redis list,
// newest at the head.
type RedisActivityRepository struct {
	client *pkgredis.Client
	cap    int
}

// NewRedisActivityRepository creates a new RedisActivityRepository
func NewRedisActivityRepository(client *pkgredis.Client, feedCap int) *RedisActivityRepository {
	if feedCap <= 0 {
		feedCap = DefaultActivityFeedCap
	}
	return &RedisActivityRepository{client: client, cap: feedCap}
}

func activityKey(eventID string) string {
	return fmt.Sprintf("checkin:activity:%s", eventID)
}

// Append pushes and trims in one MULTI so the list never exceeds the cap
func (r *RedisActivityRepository) Append(ctx context.Context, attempt *domain.VerificationAttempt) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.activity.append")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", attempt.EventID),
		attribute.String("outcome", string(attempt.Outcome)),
	)

	data, err := json.Marshal(attempt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}

	key := activityKey(attempt.EventID)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(r.cap-1))
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to append attempt: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Range reads one page of the feed. Entries that fail to decode are skipped.
func (r *RedisActivityRepository) Range(ctx context.Context, eventID string, offset, count int) ([]*domain.VerificationAttempt, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.activity.range")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("offset", offset),
		attribute.Int("count", count),
	)

	if count <= 0 || offset < 0 {
		return nil, nil
	}

	raw, err := r.client.LRange(ctx, activityKey(eventID), int64(offset), int64(offset+count-1)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read activity feed: %w", err)
	}

	attempts := make([]*domain.VerificationAttempt, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		var a domain.VerificationAttempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			skipped++
			continue
		}
		attempts = append(attempts, &a)
	}

	if skipped > 0 {
		span.SetAttributes(attribute.Int("skipped", skipped))
	}
	span.SetStatus(codes.Ok, "")
	return attempts, nil
}

// Ensure RedisActivityRepository implements ActivityRepository
var _ ActivityRepository = (*RedisActivityRepository)(nil)
