package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Verification counters
	VerificationsTotal *telemetry.Counter
	SideEffectFailures *telemetry.Counter

	// Worker counters
	AttemptsArchived    *telemetry.Counter
	AttemptsDeadLetter  *telemetry.Counter
	StatsDriftCorrected *telemetry.Counter

	// Histograms
	VerificationDuration *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init initializes all check-in metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	VerificationsTotal, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "checkin_verifications_total",
		Description: "Total number of verification attempts by outcome",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	SideEffectFailures, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "checkin_side_effect_failures_total",
		Description: "Failures recording stats, activity or publishing an attempt",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	AttemptsArchived, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "checkin_attempts_archived_total",
		Description: "Attempts written to the durable archive",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	AttemptsDeadLetter, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "checkin_attempts_dlq_total",
		Description: "Attempt records moved to the dead letter topic",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	StatsDriftCorrected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "checkin_stats_drift_corrected_total",
		Description: "Reconciliations that changed checked_in",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	// Scans should finish well under the store timeout
	VerificationDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "checkin_verification_duration_seconds",
		Description: "End-to-end verification latency",
		Unit:        "s",
	}, []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	if err != nil {
		return err
	}

	return nil
}

// RecordVerification records one verification outcome and its latency
func RecordVerification(ctx context.Context, eventID, outcome, mode string, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("event_id", eventID),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
	}
	if VerificationsTotal != nil {
		VerificationsTotal.Inc(ctx, attrs...)
	}
	if VerificationDuration != nil {
		VerificationDuration.Record(ctx, duration.Seconds(), attrs...)
	}
}

// RecordSideEffectFailure records a failed stats, activity or publish step
func RecordSideEffectFailure(ctx context.Context, step string) {
	if SideEffectFailures != nil {
		SideEffectFailures.Inc(ctx, attribute.String("step", step))
	}
}

// RecordArchived records attempts persisted by the archiver
func RecordArchived(ctx context.Context, n int) {
	if AttemptsArchived != nil && n > 0 {
		AttemptsArchived.Add(ctx, int64(n))
	}
}

// RecordDeadLetter records an attempt record moved to the DLQ
func RecordDeadLetter(ctx context.Context, topic string) {
	if AttemptsDeadLetter != nil {
		AttemptsDeadLetter.Inc(ctx, attribute.String("topic", topic))
	}
}

// RecordDriftCorrected records a reconciliation that changed checked_in
func RecordDriftCorrected(ctx context.Context, eventID string, delta int64) {
	if StatsDriftCorrected != nil {
		StatsDriftCorrected.Inc(ctx,
			attribute.String("event_id", eventID),
			attribute.Int64("delta", delta),
		)
	}
}
