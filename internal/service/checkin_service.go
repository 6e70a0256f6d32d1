package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/metrics"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/logger"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	// DefaultStoreTimeout bounds each ticket store call
	DefaultStoreTimeout = 2 * time.Second
	// maxSubmittedCodeLength bounds what is kept of a raw scan in the activity log
	maxSubmittedCodeLength = 512
)

// VerifyRequest is one scan submitted by an operator station
type VerifyRequest struct {
	EventID    string
	RawCode    string
	OperatorID string
	Mode       domain.ScanMode
}

// CheckInService is the boundary the transports call
type CheckInService interface {
	// Verify decides one scan and applies the UNUSED -> USED transition on success.
	// Outcomes are returned in the result; errors are request validation failures only.
	Verify(ctx context.Context, req *VerifyRequest) (*domain.VerificationResult, error)
	// GetStats returns the event's check-in snapshot
	GetStats(ctx context.Context, eventID string) (*domain.EventStats, error)
	// GetRecentAttempts returns up to limit attempts, newest first, as a lazy sequence
	GetRecentAttempts(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error]
	// LookupTicket returns a ticket without changing it
	LookupTicket(ctx context.Context, eventID, code string) (*domain.Ticket, error)
}

// CheckInServiceConfig contains configuration for the check-in service
type CheckInServiceConfig struct {
	StoreTimeout    time.Duration
	QRSecret        string
	RequireSignedQR bool
}

type checkInService struct {
	ticketRepo   repository.TicketRepository
	stats        StatsService
	activity     ActivityService
	publisher    AttemptPublisher
	parser       *PayloadParser
	storeTimeout time.Duration
	log          *logger.Logger
	now          func() time.Time
}

// NewCheckInService creates a new check-in service
func NewCheckInService(
	ticketRepo repository.TicketRepository,
	stats StatsService,
	activity ActivityService,
	publisher AttemptPublisher,
	log *logger.Logger,
	cfg *CheckInServiceConfig,
) CheckInService {
	timeout := DefaultStoreTimeout
	var signer *QRSigner
	requireSigned := false
	if cfg != nil {
		if cfg.StoreTimeout > 0 {
			timeout = cfg.StoreTimeout
		}
		signer = NewQRSigner(cfg.QRSecret)
		requireSigned = cfg.RequireSignedQR
	}
	if publisher == nil {
		publisher = NewNoOpAttemptPublisher()
	}
	if log == nil {
		log = logger.Get()
	}
	return &checkInService{
		ticketRepo:   ticketRepo,
		stats:        stats,
		activity:     activity,
		publisher:    publisher,
		parser:       NewPayloadParser(signer, requireSigned),
		storeTimeout: timeout,
		log:          log.Named("checkin"),
		now:          time.Now,
	}
}

// decision is the engine's verdict before side effects
type decision struct {
	outcome domain.Outcome
	ticket  *domain.Ticket
	cause   error
}

func (s *checkInService) Verify(ctx context.Context, req *VerifyRequest) (*domain.VerificationResult, error) {
	// A submitted scan runs to a terminal outcome even if the client goes away
	ctx = context.WithoutCancel(ctx)

	ctx, span := telemetry.StartSpan(ctx, "service.checkin.verify")
	defer span.End()

	if req == nil || strings.TrimSpace(req.EventID) == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if strings.TrimSpace(req.OperatorID) == "" {
		span.SetStatus(codes.Error, "invalid operator_id")
		return nil, domain.ErrInvalidOperatorID
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ScanModeManual
	}
	if !mode.IsValid() {
		span.SetStatus(codes.Error, "invalid mode")
		return nil, domain.ErrInvalidScanMode
	}

	eventID := strings.TrimSpace(req.EventID)
	operatorID := strings.TrimSpace(req.OperatorID)
	start := s.now().UTC()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("operator_id", operatorID),
		attribute.String("mode", string(mode)),
	)

	d := s.decide(ctx, eventID, operatorID, req.RawCode, mode, start)

	attempt := &domain.VerificationAttempt{
		ID:            uuid.New().String(),
		Timestamp:     start,
		EventID:       eventID,
		SubmittedCode: truncate(req.RawCode, maxSubmittedCodeLength),
		Mode:          mode,
		Outcome:       d.outcome,
		OperatorID:    operatorID,
		Message:       resultMessage(d),
	}
	if d.ticket != nil && (d.outcome == domain.OutcomeSuccess || d.outcome == domain.OutcomeDuplicate) {
		attempt.TicketID = d.ticket.ID
	}

	s.recordSideEffects(ctx, attempt)
	metrics.RecordVerification(ctx, eventID, string(d.outcome), string(mode), time.Since(start))

	span.SetAttributes(attribute.String("outcome", string(d.outcome)))
	if d.cause != nil {
		span.RecordError(d.cause)
	}
	if d.outcome == domain.OutcomeStoreUnavailable || d.outcome == domain.OutcomeInternal {
		span.SetStatus(codes.Error, string(d.outcome))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	result := &domain.VerificationResult{
		Outcome:          d.outcome,
		Message:          attempt.Message,
		AttemptID:        attempt.ID,
		AttemptTimestamp: start,
		Retryable:        d.outcome.Retryable(),
	}
	if d.outcome == domain.OutcomeSuccess || d.outcome == domain.OutcomeDuplicate {
		result.Ticket = d.ticket
	}
	return result, nil
}

// decide runs the verification rules. Store access happens only after the
// payload is well-formed and scoped to this event.
func (s *checkInService) decide(ctx context.Context, eventID, operatorID, raw string, mode domain.ScanMode, at time.Time) decision {
	payload, err := s.parser.Parse(raw, mode)
	if err != nil {
		return decision{outcome: domain.OutcomeInvalidFormat, cause: err}
	}
	if payload.EventID != "" && payload.EventID != eventID {
		return decision{outcome: domain.OutcomeWrongEvent}
	}

	ticket, err := s.lookup(ctx, eventID, payload.Code)
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		return decision{outcome: domain.OutcomeNotFound}
	case err != nil:
		return decision{outcome: domain.OutcomeStoreUnavailable, cause: err}
	case ticket.EventID != eventID:
		return decision{outcome: domain.OutcomeInternal, cause: fmt.Errorf("ticket %s scoped to %s: %w", ticket.ID, ticket.EventID, domain.ErrInconsistentState)}
	}

	if ticket.IsUsed() {
		return duplicateOf(ticket)
	}

	markCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	marked, err := s.ticketRepo.MarkUsed(markCtx, eventID, ticket.ID, operatorID, at)
	switch {
	case err == nil:
		if !marked.IsUsed() || !marked.IsConsistent() || *marked.UsedByOperator != operatorID {
			return decision{outcome: domain.OutcomeInternal, cause: fmt.Errorf("ticket %s after mark_used: %w", ticket.ID, domain.ErrInconsistentState)}
		}
		return decision{outcome: domain.OutcomeSuccess, ticket: marked}
	case errors.Is(err, domain.ErrTicketAlreadyUsed):
		// Lost the race: the winner's record is authoritative
		if marked == nil {
			return decision{outcome: domain.OutcomeInternal, cause: err}
		}
		return duplicateOf(marked)
	case errors.Is(err, domain.ErrTicketNotFound):
		return decision{outcome: domain.OutcomeNotFound}
	case errors.Is(err, domain.ErrInconsistentState):
		return decision{outcome: domain.OutcomeInternal, cause: err}
	default:
		return decision{outcome: domain.OutcomeStoreUnavailable, cause: err}
	}
}

func duplicateOf(t *domain.Ticket) decision {
	if !t.IsConsistent() {
		return decision{outcome: domain.OutcomeInternal, cause: fmt.Errorf("ticket %s used without used_at/operator: %w", t.ID, domain.ErrInconsistentState)}
	}
	return decision{outcome: domain.OutcomeDuplicate, ticket: t}
}

func (s *checkInService) lookup(ctx context.Context, eventID, code string) (*domain.Ticket, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.ticketRepo.GetByCode(lookupCtx, eventID, code)
}

// recordSideEffects appends to the feed, updates stats and publishes the attempt.
// Failures are logged; they never change the outcome already decided.
func (s *checkInService) recordSideEffects(ctx context.Context, attempt *domain.VerificationAttempt) {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"activity", func(ctx context.Context) error { return s.activity.Append(ctx, attempt) }},
		{"stats", func(ctx context.Context) error { return s.stats.Record(ctx, attempt.EventID, attempt.TicketID, attempt.Outcome) }},
		{"publish", func(ctx context.Context) error { return s.publisher.PublishAttempt(ctx, attempt) }},
	}

	for _, step := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
		err := step.run(stepCtx)
		cancel()
		if err != nil {
			metrics.RecordSideEffectFailure(ctx, step.name)
			s.log.WithContext(ctx).Warn("verification side effect failed",
				zap.String("step", step.name),
				zap.String("attempt_id", attempt.ID),
				zap.String("event_id", attempt.EventID),
				zap.String("outcome", string(attempt.Outcome)),
				zap.Error(err),
			)
		}
	}
}

func (s *checkInService) GetStats(ctx context.Context, eventID string) (*domain.EventStats, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.stats.Snapshot(ctx, eventID)
}

func (s *checkInService) GetRecentAttempts(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error] {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return func(yield func(*domain.VerificationAttempt, error) bool) {
			yield(nil, domain.ErrInvalidEventID)
		}
	}
	return s.activity.Recent(ctx, eventID, limit)
}

func (s *checkInService) LookupTicket(ctx context.Context, eventID, code string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkin.lookup_ticket")
	defer span.End()

	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	code = domain.NormalizeCode(code)
	if !domain.ValidCode(code) {
		span.SetStatus(codes.Error, "invalid code")
		return nil, domain.ErrInvalidTicket
	}

	ticket, err := s.lookup(ctx, eventID, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	span.SetStatus(codes.Ok, "")
	return ticket, nil
}

func resultMessage(d decision) string {
	if d.outcome == domain.OutcomeDuplicate && d.ticket != nil && d.ticket.UsedAt != nil && d.ticket.UsedByOperator != nil {
		return fmt.Sprintf("Ticket already checked in by %s at %s",
			*d.ticket.UsedByOperator, d.ticket.UsedAt.UTC().Format(time.RFC3339))
	}
	return d.outcome.Message()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
