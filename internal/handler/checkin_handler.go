package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/dto"
	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/middleware"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CheckInHandler handles ticket verification HTTP requests
type CheckInHandler struct {
	checkInService service.CheckInService
}

// NewCheckInHandler creates a new check-in handler
func NewCheckInHandler(checkInService service.CheckInService) *CheckInHandler {
	return &CheckInHandler{checkInService: checkInService}
}

// Verify handles POST /events/:event_id/verify.
// Every decided scan returns 200 with its outcome; only store failures map to 5xx.
func (h *CheckInHandler) Verify(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkin.verify")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	operatorID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid request",
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		})
		return
	}

	eventID := c.Param("event_id")
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("operator_id", operatorID),
	)

	result, err := h.checkInService.Verify(ctx, &service.VerifyRequest{
		EventID:    eventID,
		RawCode:    req.RawCode,
		OperatorID: operatorID,
		Mode:       domain.ScanMode(strings.ToUpper(req.Mode)),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	span.SetStatus(codes.Ok, "")
	c.JSON(verifyStatus(result.Outcome), dto.VerifyFromDomain(result))
}

func verifyStatus(outcome domain.Outcome) int {
	switch outcome {
	case domain.OutcomeStoreUnavailable:
		return http.StatusServiceUnavailable
	case domain.OutcomeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// GetStats handles GET /events/:event_id/stats
func (h *CheckInHandler) GetStats(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkin.get_stats")
	defer span.End()

	eventID := c.Param("event_id")
	span.SetAttributes(attribute.String("event_id", eventID))

	stats, err := h.checkInService.GetStats(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.StatsFromDomain(stats))
}

// GetRecentAttempts handles GET /events/:event_id/attempts?limit=N
func (h *CheckInHandler) GetRecentAttempts(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkin.get_recent_attempts")
	defer span.End()

	eventID := c.Param("event_id")
	limit := service.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			span.SetStatus(codes.Error, "invalid limit")
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_LIMIT",
			})
			return
		}
		limit = service.ClampRecentLimit(n)
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("limit", limit),
	)

	attempts, err := service.CollectRecent(h.checkInService.GetRecentAttempts(ctx, eventID, limit))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(attempts)))
	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.RecentAttemptsResponse{
		EventID:  eventID,
		Limit:    limit,
		Attempts: dto.AttemptsFromDomain(attempts),
	})
}

// LookupTicket handles GET /events/:event_id/tickets/:code
func (h *CheckInHandler) LookupTicket(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.checkin.lookup_ticket")
	defer span.End()

	eventID := c.Param("event_id")
	code := c.Param("code")
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("code", code),
	)

	ticket, err := h.checkInService.LookupTicket(ctx, eventID, code)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	c.JSON(http.StatusOK, dto.TicketFromDomain(ticket))
}

func (h *CheckInHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEventID):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_EVENT_ID",
		})
	case errors.Is(err, domain.ErrInvalidOperatorID):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_OPERATOR_ID",
		})
	case errors.Is(err, domain.ErrInvalidScanMode):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "INVALID_MODE",
			Message: "mode must be MANUAL or QR",
		})
	case errors.Is(err, domain.ErrInvalidTicket):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_TICKET_CODE",
		})
	case errors.Is(err, domain.ErrEventNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "EVENT_NOT_FOUND",
		})
	case errors.Is(err, domain.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  "TICKET_NOT_FOUND",
		})
	case domain.IsStoreUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   err.Error(),
			Code:    "STORE_UNAVAILABLE",
			Message: "Please retry",
		})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error: "internal server error",
			Code:  "INTERNAL_ERROR",
		})
	}
}
