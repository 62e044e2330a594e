package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// Booking counters
	BookingsCreated   *telemetry.Counter
	BookingsRejected  *telemetry.Counter
	BookingsConfirmed *telemetry.Counter
	BookingsCanceled  *telemetry.Counter
	BookingsDeleted   *telemetry.Counter

	// Webhook counters
	WebhookEvents        *telemetry.Counter
	ReconcileConflicts   *telemetry.Counter
	SignatureRejections  *telemetry.Counter
	TransientStoreErrors *telemetry.Counter

	// Histograms
	CreateBookingDuration *telemetry.Histogram

	initOnce sync.Once
	initErr  error
)

// Init registers all booking metrics. Instruments stay nil (and their
// recording helpers no-ops) until Init succeeds.
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	counters := []struct {
		dst  **telemetry.Counter
		name string
		desc string
	}{
		{&BookingsCreated, "booking_created_total", "Bookings created with slots reserved"},
		{&BookingsRejected, "booking_rejected_total", "Booking requests rejected"},
		{&BookingsConfirmed, "booking_confirmed_total", "Bookings confirmed by a payment"},
		{&BookingsCanceled, "booking_canceled_total", "Bookings canceled with slots released"},
		{&BookingsDeleted, "booking_deleted_total", "Bookings hard-deleted"},
		{&WebhookEvents, "payment_webhook_events_total", "Payment webhook events by outcome"},
		{&ReconcileConflicts, "payment_reconcile_conflicts_total", "Payments that could not be applied"},
		{&SignatureRejections, "payment_webhook_signature_rejections_total", "Webhooks rejected by signature verification"},
		{&TransientStoreErrors, "store_transient_errors_total", "Transient store errors that triggered a retry"},
	}
	for _, c := range counters {
		counter, err := telemetry.NewCounter(c.name, c.desc)
		if err != nil {
			return err
		}
		*c.dst = counter
	}

	var err error
	CreateBookingDuration, err = telemetry.NewHistogram("booking_create_duration_ms", "CreateBooking latency", "ms")
	return err
}

// RecordBookingCreated counts a successful reservation
func RecordBookingCreated(ctx context.Context, activityID string, people int) {
	BookingsCreated.Add(ctx, 1, attribute.String("activity_id", activityID), attribute.Int("people", people))
}

// RecordBookingRejected counts a rejected booking request by reason
func RecordBookingRejected(ctx context.Context, reason string) {
	BookingsRejected.Add(ctx, 1, attribute.String("reason", reason))
}

// RecordBookingConfirmed counts a booking confirmed by payment
func RecordBookingConfirmed(ctx context.Context) {
	BookingsConfirmed.Add(ctx, 1)
}

// RecordBookingCanceled counts a cancellation by reason
func RecordBookingCanceled(ctx context.Context, reason string) {
	BookingsCanceled.Add(ctx, 1, attribute.String("reason", reason))
}

// RecordBookingDeleted counts a hard delete
func RecordBookingDeleted(ctx context.Context) {
	BookingsDeleted.Add(ctx, 1)
}

// RecordWebhookEvent counts a processed webhook by type and outcome
func RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	WebhookEvents.Add(ctx, 1, attribute.String("type", eventType), attribute.String("outcome", outcome))
}

// RecordReconcileConflict counts a conflict by reason
func RecordReconcileConflict(ctx context.Context, reason string) {
	ReconcileConflicts.Add(ctx, 1, attribute.String("reason", reason))
}

// RecordSignatureRejection counts a webhook that failed verification
func RecordSignatureRejection(ctx context.Context) {
	SignatureRejections.Add(ctx, 1)
}

// RecordTransientStoreError counts a retried store error
func RecordTransientStoreError(ctx context.Context, operation string) {
	TransientStoreErrors.Add(ctx, 1, attribute.String("operation", operation))
}

// RecordCreateBookingDuration records CreateBooking latency
func RecordCreateBookingDuration(ctx context.Context, d time.Duration) {
	CreateBookingDuration.Record(ctx, float64(d.Microseconds())/1000)
}
