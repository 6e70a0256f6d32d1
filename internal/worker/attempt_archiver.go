package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/metrics"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/kafka"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/retry"
	"go.uber.org/zap"
)

// RecordSource is satisfied by kafka.Consumer
type RecordSource interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// AttemptArchiverConfig holds configuration for the attempt archiver
type AttemptArchiverConfig struct {
	// BatchSize flushes once this many attempts are pending
	BatchSize int
	// FlushInterval flushes pending attempts when the topic goes quiet
	FlushInterval time.Duration
	// Retry controls SaveBatch retries before records are dead-lettered
	Retry *retry.Config
}

// AttemptArchiver copies the attempts topic into the durable archive.
// Offsets are committed only after their attempts are stored or dead-lettered.
type AttemptArchiver struct {
	config  *AttemptArchiverConfig
	source  RecordSource
	archive repository.AttemptArchive
	retrier *retry.Retrier
	dlq     *retry.DLQHandler
	log     *logger.Logger

	pending []*kafka.Record
	batch   []*domain.VerificationAttempt
}

// NewAttemptArchiver creates a new attempt archiver. A nil dlq drops poison records.
func NewAttemptArchiver(
	cfg *AttemptArchiverConfig,
	source RecordSource,
	archive repository.AttemptArchive,
	dlq retry.DLQPublisher,
	log *logger.Logger,
) *AttemptArchiver {
	if cfg == nil {
		cfg = &AttemptArchiverConfig{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = &retry.Config{
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		}
	}
	if log == nil {
		log = logger.Get()
	}

	return &AttemptArchiver{
		config:  cfg,
		source:  source,
		archive: archive,
		retrier: retry.New(cfg.Retry),
		dlq:     retry.NewDLQHandler(dlq, cfg.Retry, "attempt-archiver"),
		log:     log.Named("attempt-archiver"),
	}
}

// Start consumes until ctx is done, then flushes what is pending
func (w *AttemptArchiver) Start(ctx context.Context) {
	w.log.Info("attempt archiver started",
		zap.Int("batch_size", w.config.BatchSize),
		zap.Duration("flush_interval", w.config.FlushInterval),
	)

	for {
		if ctx.Err() != nil {
			w.log.Info("attempt archiver stopping, flushing remaining batch...")
			w.flush(context.Background())
			return
		}

		pollCtx, cancel := context.WithTimeout(ctx, w.config.FlushInterval)
		records, err := w.source.Poll(pollCtx)
		cancel()

		switch {
		case err == nil:
			w.add(ctx, records)
			if len(w.batch) >= w.config.BatchSize {
				w.flush(ctx)
			}
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// quiet topic
			w.flush(ctx)
		case errors.Is(err, kafka.ErrClientClosed):
			w.log.Warn("kafka client closed, stopping archiver")
			w.flush(context.Background())
			return
		case ctx.Err() != nil:
			// loop top handles shutdown
		default:
			w.log.Error("failed to poll attempts", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// add decodes records into the pending batch. Undecodable records go
// straight to the DLQ; retrying cannot fix them.
func (w *AttemptArchiver) add(ctx context.Context, records []*kafka.Record) {
	for _, record := range records {
		w.pending = append(w.pending, record)

		attempt, err := decodeAttempt(record)
		if err != nil {
			w.deadLetter(ctx, record, retry.Permanent(err))
			continue
		}
		w.batch = append(w.batch, attempt)
	}
}

func decodeAttempt(record *kafka.Record) (*domain.VerificationAttempt, error) {
	var event domain.AttemptEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attempt event: %w", err)
	}
	if event.Attempt == nil || event.Attempt.ID == "" || event.Attempt.EventID == "" {
		return nil, fmt.Errorf("attempt event %s has no attempt data", event.EventID)
	}
	if !event.Attempt.Outcome.IsValid() {
		return nil, fmt.Errorf("attempt %s has unknown outcome %q", event.Attempt.ID, event.Attempt.Outcome)
	}
	return event.Attempt, nil
}

// flush stores the batch and commits the offsets it covers
func (w *AttemptArchiver) flush(ctx context.Context) {
	if len(w.pending) == 0 {
		return
	}

	if len(w.batch) > 0 {
		batch := w.batch
		var inserted int
		res := w.retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			inserted, err = w.archive.SaveBatch(ctx, batch)
			return err
		}, func(attempt int, err error, next time.Duration) {
			w.log.Warn("archive batch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Int("size", len(batch)),
				zap.Duration("next", next),
				zap.Error(err),
			)
		})

		if res.Err != nil {
			if ctx.Err() != nil {
				// Leave offsets uncommitted; the records are redelivered.
				return
			}
			// Isolate the poison rows: each attempt gets its own retries, then the DLQ
			w.log.Error("archive batch failed, falling back to per-record writes",
				zap.Int("size", len(batch)), zap.Error(res.LastError))
			inserted = w.saveIndividually(ctx)
		}

		metrics.RecordArchived(ctx, inserted)
		w.log.Debug("archived attempts", zap.Int("batch", len(batch)), zap.Int("inserted", inserted))
	}

	if err := w.source.CommitRecords(ctx, w.pending); err != nil {
		w.log.Error("failed to commit offsets", zap.Error(err))
	}
	w.pending = w.pending[:0]
	w.batch = w.batch[:0]
}

func (w *AttemptArchiver) saveIndividually(ctx context.Context) int {
	byID := make(map[string]*kafka.Record, len(w.pending))
	for _, r := range w.pending {
		if a, err := decodeAttempt(r); err == nil {
			byID[a.ID] = r
		}
	}

	inserted := 0
	for _, attempt := range w.batch {
		one := []*domain.VerificationAttempt{attempt}
		err := w.dlq.ProcessWithDLQ(ctx, messageContext(byID[attempt.ID]), func(ctx context.Context) error {
			n, err := w.archive.SaveBatch(ctx, one)
			inserted += n
			return err
		})
		if err != nil {
			metrics.RecordDeadLetter(ctx, byID[attempt.ID].Topic)
			w.log.Error("attempt dead-lettered",
				zap.String("attempt_id", attempt.ID),
				zap.String("event_id", attempt.EventID),
				zap.Error(err),
			)
		}
	}
	return inserted
}

func (w *AttemptArchiver) deadLetter(ctx context.Context, record *kafka.Record, cause error) {
	err := w.dlq.ProcessWithDLQ(ctx, messageContext(record), func(context.Context) error { return cause })
	metrics.RecordDeadLetter(ctx, record.Topic)
	w.log.Warn("undecodable attempt record dead-lettered",
		zap.String("topic", record.Topic),
		zap.Int32("partition", record.Partition),
		zap.Int64("offset", record.Offset),
		zap.Error(err),
	)
}

func messageContext(record *kafka.Record) *retry.MessageContext {
	id := record.Headers["event_id"]
	if id == "" {
		id = record.Topic + "/" + strconv.Itoa(int(record.Partition)) + "/" + strconv.FormatInt(record.Offset, 10)
	}
	payload := json.RawMessage(record.Value)
	if !json.Valid(record.Value) {
		payload, _ = json.Marshal(string(record.Value))
	}
	return &retry.MessageContext{
		ID:      id,
		Topic:   record.Topic,
		Key:     string(record.Key),
		Payload: payload,
		Headers: record.Headers,
	}
}
