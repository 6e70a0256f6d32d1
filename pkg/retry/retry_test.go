package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s", config.InitialInterval)
	}
	if config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s", config.MaxInterval)
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	input := &Config{JitterFactor: 3}
	retrier := New(input)

	if retrier.config.InitialInterval != time.Second {
		t.Errorf("InitialInterval = %v, want 1s (default)", retrier.config.InitialInterval)
	}
	if retrier.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0 (default)", retrier.config.Multiplier)
	}
	if retrier.config.JitterFactor != 1 {
		t.Errorf("JitterFactor = %f, want clamped 1", retrier.config.JitterFactor)
	}
	if input.InitialInterval != 0 {
		t.Error("New must not mutate the caller's config")
	}
}

func TestRetrier_Do(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name         string
		failures     int
		permanent    bool
		maxRetries   int
		wantErr      error
		wantAttempts int
	}{
		{"success first try", 0, false, 3, nil, 1},
		{"success after retries", 2, false, 3, nil, 3},
		{"max retries exceeded", 10, false, 2, ErrMaxRetriesExceeded, 3},
		{"permanent error stops", 10, true, 5, errBoom, 1},
		{"no retries", 10, false, 0, ErrMaxRetriesExceeded, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			op := func(ctx context.Context) error {
				calls++
				if calls > tt.failures {
					return nil
				}
				if tt.permanent {
					return Permanent(errBoom)
				}
				return errBoom
			}

			result := New(fastConfig(tt.maxRetries)).Do(context.Background(), op, nil)

			if !errors.Is(result.Err, tt.wantErr) && result.Err != tt.wantErr {
				t.Errorf("Err = %v, want %v", result.Err, tt.wantErr)
			}
			if result.Attempts != tt.wantAttempts {
				t.Errorf("Attempts = %d, want %d", result.Attempts, tt.wantAttempts)
			}
			if tt.wantErr != nil && !errors.Is(result.LastError, errBoom) {
				t.Errorf("LastError = %v, want %v", result.LastError, errBoom)
			}
		})
	}
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialInterval: time.Second, MaxInterval: time.Second}

	result := New(cfg).Do(ctx, func(ctx context.Context) error {
		cancel()
		return errors.New("transient")
	}, nil)

	if result.Err != ErrContextCanceled {
		t.Errorf("Err = %v, want %v", result.Err, ErrContextCanceled)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
}

func TestRetrier_Do_Callback(t *testing.T) {
	var seen []int
	New(fastConfig(2)).Do(context.Background(), func(ctx context.Context) error {
		return errors.New("fail")
	}, func(attempt int, err error, next time.Duration) {
		seen = append(seen, attempt)
		if next <= 0 {
			t.Errorf("callback interval = %v, want positive", next)
		}
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("callback attempts = %v, want [1 2]", seen)
	}
}

func TestRetrier_Interval(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for attempt, w := range want {
		if got := r.interval(attempt); got != w {
			t.Errorf("interval(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestRetrier_Interval_Jitter(t *testing.T) {
	r := New(&Config{InitialInterval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2, JitterFactor: 0.5})

	for i := 0; i < 50; i++ {
		got := r.interval(0)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("interval(0) = %v, want within [50ms, 150ms]", got)
		}
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}

	base := errors.New("bad payload")
	err := Permanent(base)
	if !IsPermanent(err) {
		t.Error("IsPermanent() = false, want true")
	}
	if !errors.Is(err, base) {
		t.Error("Permanent error should unwrap to base")
	}
	if IsPermanent(base) {
		t.Error("IsPermanent(base) = true, want false")
	}
}
