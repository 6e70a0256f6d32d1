package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), &ProducerConfig{})
	assert.Error(t, err)

	_, err = NewProducer(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewConsumer_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *ConsumerConfig
	}{
		{"nil config", nil},
		{"no brokers", &ConsumerConfig{GroupID: "g", Topics: []string{"t"}}},
		{"no group", &ConsumerConfig{Brokers: []string{"localhost:9092"}, Topics: []string{"t"}}},
		{"no topics", &ConsumerConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConsumer(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestFromKgo(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	raw := &kgo.Record{
		Topic:     "checkin-attempts",
		Partition: 3,
		Offset:    42,
		Key:       []byte("evt-1"),
		Value:     []byte(`{"outcome":"SUCCESS"}`),
		Headers:   []kgo.RecordHeader{{Key: "event_type", Value: []byte("checkin.attempt")}},
		Timestamp: ts,
	}

	rec := fromKgo(raw)

	require.NotNil(t, rec)
	assert.Equal(t, "checkin-attempts", rec.Topic)
	assert.Equal(t, int32(3), rec.Partition)
	assert.Equal(t, int64(42), rec.Offset)
	assert.Equal(t, "evt-1", string(rec.Key))
	assert.Equal(t, "checkin.attempt", rec.Headers["event_type"])
	assert.Equal(t, ts, rec.Timestamp)
	assert.Same(t, raw, rec.raw)
}
