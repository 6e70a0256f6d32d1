package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	pkgredis "github.com/prohmpiriya/booking-rush-checkin/pkg/redis"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	//go:embed scripts/record_outcome.lua
	recordOutcomeScript string

	//go:embed scripts/add_checked_in.lua
	addCheckedInScript string
)

const (
	scriptRecordOutcome = "record_outcome"
	scriptAddCheckedIn  = "add_checked_in"

	// admittedBatchSize bounds the ids sent in one add_checked_in call
	admittedBatchSize = 500
)

// RedisStatsRepository keeps per-event counters in a Redis hash and the
// admitted ticket ids in a set next to it
type RedisStatsRepository struct {
	client *pkgredis.Client
}

// NewRedisStatsRepository creates a new RedisStatsRepository
func NewRedisStatsRepository(client *pkgredis.Client) *RedisStatsRepository {
	return &RedisStatsRepository{client: client}
}

// Both keys share a hash tag so the scripts stay on one cluster slot
func statsKey(eventID string) string {
	return fmt.Sprintf("checkin:stats:{%s}", eventID)
}

func admittedKey(eventID string) string {
	return fmt.Sprintf("checkin:admitted:{%s}", eventID)
}

// LoadScripts preloads the Lua scripts so the first scan does not pay for SCRIPT LOAD
func (r *RedisStatsRepository) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptRecordOutcome: recordOutcomeScript,
		scriptAddCheckedIn:  addCheckedInScript,
	}
	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

// Increment bumps one non-success counter through the record_outcome script
func (r *RedisStatsRepository) Increment(ctx context.Context, eventID string, category domain.StatsCategory, at time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.stats.increment")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("category", string(category)),
	)

	if category == domain.StatsCheckedIn {
		span.SetStatus(codes.Error, "checked_in is set based")
		return fmt.Errorf("%w: %s goes through AddCheckedIn", ErrUnknownCounter, category)
	}

	keys := []string{statsKey(eventID)}
	args := []any{
		string(category), // ARGV[1]: field
		at.UnixMilli(),   // ARGV[2]: last_updated
	}

	values, err := r.eval(ctx, scriptRecordOutcome, recordOutcomeScript, keys, args, 2)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	value, _ := toInt64(values[1])
	span.SetAttributes(attribute.Int64("value", value))
	span.SetStatus(codes.Ok, "")
	return nil
}

// AddCheckedIn records admitted tickets through the add_checked_in script.
// Large id lists are sent in batches; each batch is atomic.
func (r *RedisStatsRepository) AddCheckedIn(ctx context.Context, eventID string, ticketIDs []string, total int64, at time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.stats.add_checked_in")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("ticket_count", len(ticketIDs)),
	)

	keys := []string{statsKey(eventID), admittedKey(eventID)}
	added := 0
	var checkedIn int64

	// An empty list still runs once so checked_in is re-derived from the set
	for start := 0; start == 0 || start < len(ticketIDs); start += admittedBatchSize {
		end := min(start+admittedBatchSize, len(ticketIDs))

		args := make([]any, 0, 2+end-start)
		args = append(args, total, at.UnixMilli())
		for _, id := range ticketIDs[start:end] {
			args = append(args, id)
		}

		values, err := r.eval(ctx, scriptAddCheckedIn, addCheckedInScript, keys, args, 3)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return added, err
		}
		checkedIn, _ = toInt64(values[1])
		n, _ := toInt64(values[2])
		added += int(n)
	}

	span.SetAttributes(
		attribute.Int64("checked_in", checkedIn),
		attribute.Int("added", added),
	)
	span.SetStatus(codes.Ok, "")
	return added, nil
}

// eval runs a stats script and unpacks its {ok, ...} reply
func (r *RedisStatsRepository) eval(ctx context.Context, name, script string, keys []string, args []any, want int) ([]any, error) {
	result := r.client.EvalWithFallback(ctx, name, script, keys, args...)
	if result.Err() != nil {
		return nil, fmt.Errorf("failed to execute %s script: %w", name, result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s result: %w", name, err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("unexpected %s result length: %d", name, len(values))
	}

	if ok, _ := toInt64(values[0]); ok != 1 {
		errorCode, _ := values[1].(string)
		errorMessage := ""
		if len(values) > 2 {
			errorMessage, _ = values[2].(string)
		}
		return nil, fmt.Errorf("%s failed: %s: %s", name, errorCode, errorMessage)
	}
	if len(values) < want {
		return nil, fmt.Errorf("unexpected %s result length: %d", name, len(values))
	}
	return values, nil
}

// Get reads every counter with a single HGETALL
func (r *RedisStatsRepository) Get(ctx context.Context, eventID string) (*StatsCounters, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.stats.get")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	fields, err := r.client.HGetAll(ctx, statsKey(eventID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	counters := &StatsCounters{
		CheckedIn: parseCounter(fields[string(domain.StatsCheckedIn)]),
		Duplicate: parseCounter(fields[string(domain.StatsDuplicate)]),
		Invalid:   parseCounter(fields[string(domain.StatsInvalid)]),
		Failed:    parseCounter(fields[string(domain.StatsFailed)]),
	}
	if ms := parseCounter(fields["last_updated"]); ms > 0 {
		counters.LastUpdated = time.UnixMilli(ms).UTC()
	}

	span.SetStatus(codes.Ok, "")
	return counters, nil
}

func parseCounter(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// toInt64 converts a Lua reply element to int64
func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Ensure RedisStatsRepository implements StatsRepository
var _ StatsRepository = (*RedisStatsRepository)(nil)
