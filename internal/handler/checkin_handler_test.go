package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/dto"
	"github.com/prohmpiriya/booking-rush-checkin/internal/service"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/middleware"
)

// MockCheckInService is a mock implementation of CheckInService for testing
type MockCheckInService struct {
	VerifyFunc            func(ctx context.Context, req *service.VerifyRequest) (*domain.VerificationResult, error)
	GetStatsFunc          func(ctx context.Context, eventID string) (*domain.EventStats, error)
	GetRecentAttemptsFunc func(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error]
	LookupTicketFunc      func(ctx context.Context, eventID, code string) (*domain.Ticket, error)
}

func (m *MockCheckInService) Verify(ctx context.Context, req *service.VerifyRequest) (*domain.VerificationResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockCheckInService) GetStats(ctx context.Context, eventID string) (*domain.EventStats, error) {
	if m.GetStatsFunc != nil {
		return m.GetStatsFunc(ctx, eventID)
	}
	return nil, nil
}

func (m *MockCheckInService) GetRecentAttempts(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error] {
	if m.GetRecentAttemptsFunc != nil {
		return m.GetRecentAttemptsFunc(ctx, eventID, limit)
	}
	return func(yield func(*domain.VerificationAttempt, error) bool) {}
}

func (m *MockCheckInService) LookupTicket(ctx context.Context, eventID, code string) (*domain.Ticket, error) {
	if m.LookupTicketFunc != nil {
		return m.LookupTicketFunc(ctx, eventID, code)
	}
	return nil, nil
}

func setupCheckInRouter(svc *MockCheckInService, operatorID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if operatorID != "" {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.ContextKeyUserID, operatorID)
			c.Next()
		})
	}

	h := NewCheckInHandler(svc)
	events := router.Group("/events/:event_id")
	{
		events.POST("/verify", h.Verify)
		events.GET("/stats", h.GetStats)
		events.GET("/attempts", h.GetRecentAttempts)
		events.GET("/tickets/:code", h.LookupTicket)
	}
	return router
}

func usedTicket() *domain.Ticket {
	usedAt := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	op := "gate-a"
	return &domain.Ticket{
		ID:             "tk-042",
		EventID:        "E1",
		Code:           "T-042",
		Status:         domain.TicketStatusUsed,
		UsedAt:         &usedAt,
		UsedByOperator: &op,
	}
}

func TestCheckInHandler_Verify(t *testing.T) {
	tests := []struct {
		name       string
		operator   string
		body       string
		result     *domain.VerificationResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "success",
			operator:   "gate-a",
			body:       `{"raw_code":"T-042","mode":"manual"}`,
			result:     &domain.VerificationResult{Outcome: domain.OutcomeSuccess, Ticket: usedTicket()},
			wantStatus: http.StatusOK,
		},
		{
			name:       "duplicate is a decision",
			operator:   "gate-b",
			body:       `{"raw_code":"T-042"}`,
			result:     &domain.VerificationResult{Outcome: domain.OutcomeDuplicate, Ticket: usedTicket()},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not found is a decision",
			operator:   "gate-a",
			body:       `{"raw_code":"T-999"}`,
			result:     &domain.VerificationResult{Outcome: domain.OutcomeNotFound},
			wantStatus: http.StatusOK,
		},
		{
			name:       "store unavailable",
			operator:   "gate-a",
			body:       `{"raw_code":"T-042"}`,
			result:     &domain.VerificationResult{Outcome: domain.OutcomeStoreUnavailable, Retryable: true},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "internal",
			operator:   "gate-a",
			body:       `{"raw_code":"T-042"}`,
			result:     &domain.VerificationResult{Outcome: domain.OutcomeInternal},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "no operator",
			body:       `{"raw_code":"T-042"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "bad json",
			operator:   "gate-a",
			body:       `{"raw_code":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "bad mode",
			operator:   "gate-a",
			body:       `{"raw_code":"T-042","mode":"NFC"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "service validation error",
			operator:   "gate-a",
			body:       `{"raw_code":"T-042"}`,
			err:        domain.ErrInvalidOperatorID,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_OPERATOR_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *service.VerifyRequest
			svc := &MockCheckInService{
				VerifyFunc: func(ctx context.Context, req *service.VerifyRequest) (*domain.VerificationResult, error) {
					got = req
					return tt.result, tt.err
				},
			}
			router := setupCheckInRouter(svc, tt.operator)

			req := httptest.NewRequest(http.MethodPost, "/events/E1/verify", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				var resp dto.ErrorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("failed to decode error: %v", err)
				}
				if resp.Code != tt.wantCode {
					t.Errorf("code = %v, want %v", resp.Code, tt.wantCode)
				}
				return
			}

			var resp dto.VerifyResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Outcome != string(tt.result.Outcome) {
				t.Errorf("outcome = %v, want %v", resp.Outcome, tt.result.Outcome)
			}
			if got.EventID != "E1" || got.OperatorID != tt.operator {
				t.Errorf("request = %+v, want event E1 operator %s", got, tt.operator)
			}
			if tt.result.Ticket != nil && (resp.Ticket == nil || resp.Ticket.UsedByOperator != "gate-a") {
				t.Errorf("ticket = %+v, want used by gate-a", resp.Ticket)
			}
		})
	}
}

func TestCheckInHandler_Verify_UppercasesMode(t *testing.T) {
	var gotMode domain.ScanMode
	svc := &MockCheckInService{
		VerifyFunc: func(ctx context.Context, req *service.VerifyRequest) (*domain.VerificationResult, error) {
			gotMode = req.Mode
			return &domain.VerificationResult{Outcome: domain.OutcomeInvalidFormat}, nil
		},
	}
	router := setupCheckInRouter(svc, "gate-a")

	req := httptest.NewRequest(http.MethodPost, "/events/E1/verify", bytes.NewBufferString(`{"raw_code":"x","mode":"qr"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v", w.Code, http.StatusOK)
	}
	if gotMode != domain.ScanModeQR {
		t.Errorf("mode = %v, want %v", gotMode, domain.ScanModeQR)
	}
}

func TestCheckInHandler_GetStats(t *testing.T) {
	tests := []struct {
		name       string
		stats      *domain.EventStats
		err        error
		wantStatus int
	}{
		{name: "ok", stats: domain.NewEventStats("E1", 3, 1, 1, 2, 0, time.Now()), wantStatus: http.StatusOK},
		{name: "unknown event", err: domain.ErrEventNotFound, wantStatus: http.StatusNotFound},
		{name: "store down", err: fmt.Errorf("load: %w", domain.ErrStoreUnavailable), wantStatus: http.StatusServiceUnavailable},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckInService{
				GetStatsFunc: func(ctx context.Context, eventID string) (*domain.EventStats, error) {
					return tt.stats, tt.err
				},
			}
			router := setupCheckInRouter(svc, "gate-a")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/E1/stats", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.stats == nil {
				return
			}
			var resp dto.StatsResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.RemainingCount != 2 || resp.CheckedInCount != 1 {
				t.Errorf("stats = %+v, want checked_in 1 remaining 2", resp)
			}
		})
	}
}

func TestCheckInHandler_GetRecentAttempts(t *testing.T) {
	attempts := []*domain.VerificationAttempt{
		{ID: "a2", EventID: "E1", Outcome: domain.OutcomeDuplicate, Mode: domain.ScanModeQR},
		{ID: "a1", EventID: "E1", Outcome: domain.OutcomeSuccess, Mode: domain.ScanModeManual},
	}

	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantStatus int
	}{
		{name: "default limit", query: "", wantLimit: service.DefaultRecentLimit, wantStatus: http.StatusOK},
		{name: "explicit limit", query: "?limit=10", wantLimit: 10, wantStatus: http.StatusOK},
		{name: "clamped limit", query: "?limit=100000", wantLimit: service.MaxRecentLimit, wantStatus: http.StatusOK},
		{name: "bad limit", query: "?limit=abc", wantStatus: http.StatusBadRequest},
		{name: "negative limit", query: "?limit=-1", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			svc := &MockCheckInService{
				GetRecentAttemptsFunc: func(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error] {
					gotLimit = limit
					return func(yield func(*domain.VerificationAttempt, error) bool) {
						for _, a := range attempts {
							if !yield(a, nil) {
								return
							}
						}
					}
				},
			}
			router := setupCheckInRouter(svc, "gate-a")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/E1/attempts"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if gotLimit != tt.wantLimit {
				t.Errorf("limit = %v, want %v", gotLimit, tt.wantLimit)
			}
			var resp dto.RecentAttemptsResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp.Attempts) != 2 || resp.Attempts[0].ID != "a2" {
				t.Errorf("attempts = %+v, want [a2 a1]", resp.Attempts)
			}
		})
	}
}

func TestCheckInHandler_GetRecentAttempts_StoreError(t *testing.T) {
	svc := &MockCheckInService{
		GetRecentAttemptsFunc: func(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error] {
			return func(yield func(*domain.VerificationAttempt, error) bool) {
				yield(nil, fmt.Errorf("range: %w", domain.ErrStoreUnavailable))
			}
		},
	}
	router := setupCheckInRouter(svc, "gate-a")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/E1/attempts", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %v, want %v", w.Code, http.StatusServiceUnavailable)
	}
}

func TestCheckInHandler_GetRecentAttempts_EmptyIsArray(t *testing.T) {
	router := setupCheckInRouter(&MockCheckInService{}, "gate-a")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/E1/attempts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %v, want %v", w.Code, http.StatusOK)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"attempts":[]`)) {
		t.Errorf("body = %s, want empty attempts array", w.Body.String())
	}
}

func TestCheckInHandler_LookupTicket(t *testing.T) {
	tests := []struct {
		name       string
		ticket     *domain.Ticket
		err        error
		wantStatus int
	}{
		{name: "found", ticket: usedTicket(), wantStatus: http.StatusOK},
		{name: "not found", err: domain.ErrTicketNotFound, wantStatus: http.StatusNotFound},
		{name: "malformed code", err: domain.ErrInvalidTicket, wantStatus: http.StatusBadRequest},
		{name: "store down", err: fmt.Errorf("%w: timeout", domain.ErrStoreUnavailable), wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockCheckInService{
				LookupTicketFunc: func(ctx context.Context, eventID, code string) (*domain.Ticket, error) {
					if eventID != "E1" || code != "T-042" {
						t.Errorf("LookupTicket(%s, %s), want (E1, T-042)", eventID, code)
					}
					return tt.ticket, tt.err
				},
			}
			router := setupCheckInRouter(svc, "gate-a")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/E1/tickets/T-042", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}
}
