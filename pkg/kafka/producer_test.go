package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(context.Background(), &ProducerConfig{})
	assert.Error(t, err)

	_, err = NewProducer(context.Background(), nil)
	assert.Error(t, err)
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := toRecord(&Message{
		Topic:     "booking-events",
		Key:       []byte("booking-1"),
		Value:     []byte(`{"ok":true}`),
		Headers:   map[string]string{"event_type": "booking.created"},
		Timestamp: ts,
	})

	assert.Equal(t, "booking-events", rec.Topic)
	assert.Equal(t, []byte("booking-1"), rec.Key)
	assert.Equal(t, ts, rec.Timestamp)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "event_type", rec.Headers[0].Key)
	assert.Equal(t, []byte("booking.created"), rec.Headers[0].Value)
}
