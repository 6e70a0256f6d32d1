package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type stubChecker struct {
	err error
}

func (s stubChecker) HealthCheck(ctx context.Context) error {
	return s.err
}

func TestHealthHandler_Health(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", NewHealthHandler(nil, nil).Health)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %v, want %v", w.Code, http.StatusOK)
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		db         HealthChecker
		redis      HealthChecker
		wantStatus int
		wantDB     string
	}{
		{name: "all healthy", db: stubChecker{}, redis: stubChecker{}, wantStatus: http.StatusOK, wantDB: "healthy"},
		{name: "memory backend", db: nil, redis: stubChecker{}, wantStatus: http.StatusOK, wantDB: "not configured"},
		{name: "db down", db: stubChecker{err: errors.New("refused")}, redis: stubChecker{}, wantStatus: http.StatusServiceUnavailable, wantDB: "unhealthy: refused"},
		{name: "redis down", db: stubChecker{}, redis: stubChecker{err: errors.New("refused")}, wantStatus: http.StatusServiceUnavailable, wantDB: "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.GET("/ready", NewHealthHandler(tt.db, tt.redis).Ready)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %v, want %v", w.Code, tt.wantStatus)
			}
			var resp ReadyResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Components["database"] != tt.wantDB {
				t.Errorf("database = %q, want %q", resp.Components["database"], tt.wantDB)
			}
		})
	}
}
