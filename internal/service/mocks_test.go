package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/internal/repository"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/kafka"
)

// MockTicketRepository wraps a real in-memory store. Func fields override
// individual calls; counters record store access.
type MockTicketRepository struct {
	*repository.MemoryTicketRepository

	GetByCodeFunc func(ctx context.Context, eventID, code string) (*domain.Ticket, error)
	MarkUsedFunc  func(ctx context.Context, eventID, ticketID, operatorID string, at time.Time) (*domain.Ticket, error)

	lookups atomic.Int32
	marks   atomic.Int32
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{MemoryTicketRepository: repository.NewMemoryTicketRepository()}
}

func (m *MockTicketRepository) GetByCode(ctx context.Context, eventID, code string) (*domain.Ticket, error) {
	m.lookups.Add(1)
	if m.GetByCodeFunc != nil {
		return m.GetByCodeFunc(ctx, eventID, code)
	}
	return m.MemoryTicketRepository.GetByCode(ctx, eventID, code)
}

func (m *MockTicketRepository) MarkUsed(ctx context.Context, eventID, ticketID, operatorID string, at time.Time) (*domain.Ticket, error) {
	m.marks.Add(1)
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, eventID, ticketID, operatorID, at)
	}
	return m.MemoryTicketRepository.MarkUsed(ctx, eventID, ticketID, operatorID, at)
}

func (m *MockTicketRepository) StoreCalls() int {
	return int(m.lookups.Load() + m.marks.Load())
}

// MockActivityRepository counts Range calls and can fail appends
type MockActivityRepository struct {
	*repository.MemoryActivityRepository

	AppendErr  error
	rangeCalls atomic.Int32
}

func NewMockActivityRepository(feedCap int) *MockActivityRepository {
	return &MockActivityRepository{MemoryActivityRepository: repository.NewMemoryActivityRepository(feedCap)}
}

func (m *MockActivityRepository) Append(ctx context.Context, a *domain.VerificationAttempt) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	return m.MemoryActivityRepository.Append(ctx, a)
}

func (m *MockActivityRepository) Range(ctx context.Context, eventID string, offset, count int) ([]*domain.VerificationAttempt, error) {
	m.rangeCalls.Add(1)
	return m.MemoryActivityRepository.Range(ctx, eventID, offset, count)
}

// MockStatsRepository can fail increments and admissions
type MockStatsRepository struct {
	*repository.MemoryStatsRepository

	IncrementErr    error
	AddCheckedInErr error
}

func NewMockStatsRepository() *MockStatsRepository {
	return &MockStatsRepository{MemoryStatsRepository: repository.NewMemoryStatsRepository()}
}

func (m *MockStatsRepository) Increment(ctx context.Context, eventID string, category domain.StatsCategory, at time.Time) error {
	if m.IncrementErr != nil {
		return m.IncrementErr
	}
	return m.MemoryStatsRepository.Increment(ctx, eventID, category, at)
}

func (m *MockStatsRepository) AddCheckedIn(ctx context.Context, eventID string, ticketIDs []string, total int64, at time.Time) (int, error) {
	if m.AddCheckedInErr != nil {
		return 0, m.AddCheckedInErr
	}
	return m.MemoryStatsRepository.AddCheckedIn(ctx, eventID, ticketIDs, total, at)
}

// MockAttemptPublisher records published attempts
type MockAttemptPublisher struct {
	mu         sync.Mutex
	attempts   []*domain.VerificationAttempt
	publishErr error
}

func NewMockAttemptPublisher() *MockAttemptPublisher {
	return &MockAttemptPublisher{attempts: make([]*domain.VerificationAttempt, 0)}
}

func (m *MockAttemptPublisher) PublishAttempt(ctx context.Context, attempt *domain.VerificationAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.attempts = append(m.attempts, attempt)
	return nil
}

func (m *MockAttemptPublisher) Close() error {
	return nil
}

func (m *MockAttemptPublisher) Published() []*domain.VerificationAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.VerificationAttempt(nil), m.attempts...)
}

// MockProducer captures Kafka messages
type MockProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	err      error
	closed   bool
}

func (m *MockProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockProducer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
