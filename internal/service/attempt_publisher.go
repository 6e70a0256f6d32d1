package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-checkin/internal/domain"
	"github.com/prohmpiriya/booking-rush-checkin/pkg/kafka"
)

// DefaultAttemptsTopic carries every verification attempt
const DefaultAttemptsTopic = "checkin-attempts"

// AttemptPublisher streams verification attempts for durable audit
type AttemptPublisher interface {
	// PublishAttempt publishes one attempt, keyed by event id
	PublishAttempt(ctx context.Context, attempt *domain.VerificationAttempt) error
	// Close closes the publisher
	Close() error
}

// MessageProducer is satisfied by kafka.Producer
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	Close()
}

// KafkaAttemptPublisher implements AttemptPublisher using Kafka
type KafkaAttemptPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// AttemptPublisherConfig contains configuration for the attempt publisher
type AttemptPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaAttemptPublisher connects a producer and creates the publisher
func NewKafkaAttemptPublisher(ctx context.Context, cfg *AttemptPublisherConfig) (*KafkaAttemptPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("attempt publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "checkin-service-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewAttemptPublisherWithProducer(producer, cfg.Topic, cfg.ServiceName), nil
}

// NewAttemptPublisherWithProducer wraps an existing producer
func NewAttemptPublisherWithProducer(producer MessageProducer, topic, serviceName string) *KafkaAttemptPublisher {
	if topic == "" {
		topic = DefaultAttemptsTopic
	}
	if serviceName == "" {
		serviceName = "checkin-service"
	}
	return &KafkaAttemptPublisher{producer: producer, topic: topic, serviceName: serviceName}
}

// PublishAttempt publishes an attempt. Keying by event id keeps one event's attempts ordered.
func (p *KafkaAttemptPublisher) PublishAttempt(ctx context.Context, attempt *domain.VerificationAttempt) error {
	event := domain.NewAttemptEvent(attempt)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}

	headers := map[string]string{
		"event_type":   event.EventType,
		"event_id":     event.EventID,
		"source":       p.serviceName,
		"content_type": "application/json",
		"outcome":      string(attempt.Outcome),
	}

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(attempt.EventID),
		Value:     value,
		Headers:   headers,
		Timestamp: attempt.Timestamp,
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish attempt %s: %w", attempt.ID, err)
	}
	return nil
}

// Close closes the underlying producer
func (p *KafkaAttemptPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// NoOpAttemptPublisher is used when Kafka is disabled
type NoOpAttemptPublisher struct{}

// NewNoOpAttemptPublisher creates a new no-op attempt publisher
func NewNoOpAttemptPublisher() *NoOpAttemptPublisher {
	return &NoOpAttemptPublisher{}
}

// PublishAttempt is a no-op
func (p *NoOpAttemptPublisher) PublishAttempt(ctx context.Context, attempt *domain.VerificationAttempt) error {
	return nil
}

// Close is a no-op
func (p *NoOpAttemptPublisher) Close() error {
	return nil
}
