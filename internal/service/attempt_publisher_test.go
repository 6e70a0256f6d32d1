package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAttempt() *domain.VerificationAttempt {
	return &domain.VerificationAttempt{
		ID:            "att-1",
		Timestamp:     time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC),
		EventID:       "E1",
		SubmittedCode: "T-042",
		Mode:          domain.ScanModeQR,
		Outcome:       domain.OutcomeSuccess,
		OperatorID:    "gate-a",
		TicketID:      "tk-042",
	}
}

func TestKafkaAttemptPublisher_PublishAttempt(t *testing.T) {
	producer := &MockProducer{}
	publisher := NewAttemptPublisherWithProducer(producer, "", "")

	require.NoError(t, publisher.PublishAttempt(context.Background(), testAttempt()))
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, DefaultAttemptsTopic, msg.Topic)
	assert.Equal(t, []byte("E1"), msg.Key)
	assert.Equal(t, domain.EventTypeAttemptRecorded, msg.Headers["event_type"])
	assert.Equal(t, "att-1", msg.Headers["event_id"])
	assert.Equal(t, "checkin-service", msg.Headers["source"])
	assert.Equal(t, "SUCCESS", msg.Headers["outcome"])

	var event domain.AttemptEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	require.NotNil(t, event.Attempt)
	assert.Equal(t, "tk-042", event.Attempt.TicketID)
	assert.Equal(t, domain.OutcomeSuccess, event.Attempt.Outcome)
}

func TestKafkaAttemptPublisher_ProduceError(t *testing.T) {
	producer := &MockProducer{err: errors.New("broker not available")}
	publisher := NewAttemptPublisherWithProducer(producer, "audit", "gate-service")

	err := publisher.PublishAttempt(context.Background(), testAttempt())
	if err == nil {
		t.Fatal("PublishAttempt() error = nil, want error")
	}
	assert.Contains(t, err.Error(), "att-1")
}

func TestKafkaAttemptPublisher_Close(t *testing.T) {
	producer := &MockProducer{}
	publisher := NewAttemptPublisherWithProducer(producer, "audit", "")

	assert.NoError(t, publisher.Close())
	assert.True(t, producer.closed)
}

func TestNewKafkaAttemptPublisher_Validation(t *testing.T) {
	_, err := NewKafkaAttemptPublisher(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewKafkaAttemptPublisher(context.Background(), &AttemptPublisherConfig{})
	assert.Error(t, err)
}

func TestNoOpAttemptPublisher(t *testing.T) {
	publisher := NewNoOpAttemptPublisher()
	assert.NoError(t, publisher.PublishAttempt(context.Background(), testAttempt()))
	assert.NoError(t, publisher.Close())
}
