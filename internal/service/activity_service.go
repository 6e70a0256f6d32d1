package service

import (
	"context"
	"fmt"
	"iter"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
)

const (
	// DefaultRecentLimit is used when a caller does not pass a limit
	DefaultRecentLimit = 50
	// MaxRecentLimit bounds a single recent() call
	MaxRecentLimit = 500
)

// ActivityService exposes the bounded recent-attempts feed
type ActivityService interface {
	// Append records an attempt in its event's feed
	Append(ctx context.Context, attempt *domain.VerificationAttempt) error
	// Recent returns up to limit attempts, newest first. The sequence is lazy:
	// nothing is read until ranging starts, each range reads one consistent
	// snapshot of the feed, and ranging again starts over from current state.
	Recent(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error]
}

type activityService struct {
	repo repository.ActivityRepository
}

// NewActivityService creates a new activity service
func NewActivityService(repo repository.ActivityRepository) ActivityService {
	return &activityService{repo: repo}
}

func (s *activityService) Append(ctx context.Context, attempt *domain.VerificationAttempt) error {
	if attempt == nil || attempt.EventID == "" {
		return fmt.Errorf("append attempt: %w", domain.ErrInvalidEventID)
	}
	if err := s.repo.Append(ctx, attempt); err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}
	return nil
}

// ClampRecentLimit applies the default and the maximum to a requested limit
func ClampRecentLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	return min(limit, MaxRecentLimit)
}

func (s *activityService) Recent(ctx context.Context, eventID string, limit int) iter.Seq2[*domain.VerificationAttempt, error] {
	limit = ClampRecentLimit(limit)

	return func(yield func(*domain.VerificationAttempt, error) bool) {
		// One Range per pass so appends during iteration cannot shift entries
		snapshot, err := s.repo.Range(ctx, eventID, 0, limit)
		if err != nil {
			yield(nil, fmt.Errorf("failed to read recent attempts: %w: %w", domain.ErrStoreUnavailable, err))
			return
		}
		for _, a := range snapshot {
			if !yield(a, nil) {
				return
			}
		}
	}
}

// CollectRecent drains a Recent sequence into a slice
func CollectRecent(seq iter.Seq2[*domain.VerificationAttempt, error]) ([]*domain.VerificationAttempt, error) {
	attempts := make([]*domain.VerificationAttempt, 0)
	for a, err := range seq {
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
