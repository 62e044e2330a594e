package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/pkg/kafka"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"go.uber.org/zap"
)

// EventPublisher dispatches booking notifications after a commit
type EventPublisher interface {
	// Publish sends one booking event
	Publish(ctx context.Context, eventType domain.BookingEventType, booking *domain.Booking) error

	// Close releases the publisher's resources
	Close() error
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    *kafka.Producer
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "booking-events"
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "tourismhub-booking"
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = serviceName + "-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		Linger:        10 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewKafkaEventPublisherWithProducer(producer, topic, serviceName), nil
}

// NewKafkaEventPublisherWithProducer wraps an existing producer
func NewKafkaEventPublisherWithProducer(producer *kafka.Producer, topic, serviceName string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic, serviceName: serviceName}
}

// Publish publishes a booking event keyed by booking id
func (p *KafkaEventPublisher) Publish(ctx context.Context, eventType domain.BookingEventType, booking *domain.Booking) error {
	eventID := uuid.New().String()
	event := domain.NewBookingEvent(eventType, booking, eventID)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.Key()),
		Value: value,
		Headers: map[string]string{
			"event_type":   string(eventType),
			"event_id":     eventID,
			"source":       p.serviceName,
			"content_type": "application/json",
		},
		Timestamp: event.OccurredAt,
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}
	return nil
}

// Close flushes and closes the producer
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// NoOpEventPublisher is a no-op implementation of EventPublisher
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// Publish is a no-op
func (p *NoOpEventPublisher) Publish(ctx context.Context, eventType domain.BookingEventType, booking *domain.Booking) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}

const publishTimeout = 5 * time.Second

// pendingEvent is a notification collected inside a unit of work and sent
// only after it commits
type pendingEvent struct {
	eventType domain.BookingEventType
	booking   *domain.Booking
}

// dispatch publishes events in the background. Failures are logged and never
// reach the caller.
func dispatch(ctx context.Context, publisher EventPublisher, log *logger.Logger, events []pendingEvent) {
	if len(events) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		for _, e := range events {
			if err := publisher.Publish(ctx, e.eventType, e.booking); err != nil {
				log.WarnContext(ctx, "failed to publish booking event",
					zap.String("event_type", string(e.eventType)),
					zap.String("booking_id", e.booking.ID),
					zap.Error(err),
				)
			}
		}
	}()
}
