package worker

import (
	"context"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	"go.uber.org/zap"
)

// StatsReconcilerConfig holds configuration for the stats reconciler
type StatsReconcilerConfig struct {
	Interval time.Duration
	EventIDs []string
	// Timeout bounds one event's reconciliation
	Timeout time.Duration
}

// StatsReconciler periodically resets checked_in from the ticket store.
// It repairs undercounts left by stats writes that failed after a committed check-in.
type StatsReconciler struct {
	config *StatsReconcilerConfig
	stats  service.StatsService
	log    *logger.Logger
}

// NewStatsReconciler creates a new stats reconciler
func NewStatsReconciler(cfg *StatsReconcilerConfig, stats service.StatsService, log *logger.Logger) *StatsReconciler {
	if cfg == nil {
		cfg = &StatsReconcilerConfig{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Get()
	}
	return &StatsReconciler{config: cfg, stats: stats, log: log.Named("stats-reconciler")}
}

// Start runs one pass immediately and then every interval until ctx is done
func (w *StatsReconciler) Start(ctx context.Context) {
	w.log.Info("stats reconciler started",
		zap.Duration("interval", w.config.Interval),
		zap.Strings("event_ids", w.config.EventIDs),
	)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("stats reconciler stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles every configured event and returns how many succeeded
func (w *StatsReconciler) RunOnce(ctx context.Context) int {
	ok := 0
	for _, eventID := range w.config.EventIDs {
		if ctx.Err() != nil {
			break
		}

		eventCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		stats, err := w.stats.Reconcile(eventCtx, eventID)
		cancel()
		if err != nil {
			w.log.Error("failed to reconcile stats", zap.String("event_id", eventID), zap.Error(err))
			continue
		}

		ok++
		w.log.Debug("stats reconciled",
			zap.String("event_id", eventID),
			zap.Int64("checked_in", stats.CheckedInCount),
			zap.Int64("remaining", stats.RemainingCount),
		)
	}
	return ok
}
