package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/internal/dto"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookSecret = "whsec_test_secret"

type fakeRefunds struct {
	mu       sync.Mutex
	refundID string
	err      error
	txs      []string
}

func (f *fakeRefunds) InitiateRefund(ctx context.Context, conflict *domain.ReconciliationConflict) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, conflict.TransactionID)
	return f.refundID, f.err
}

func (f *fakeRefunds) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.txs...)
}

type reconcilerFixture struct {
	store      *repository.MemoryStore
	bookings   BookingService
	reconciler PaymentReconciler
	refunds    *fakeRefunds
	activityID string
}

func newReconcilerFixture(t *testing.T, autoRefund bool) *reconcilerFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	ledger := NewInventoryLedger()
	refunds := &fakeRefunds{refundID: "re_test"}
	return &reconcilerFixture{
		store:    store,
		bookings: NewBookingService(store, ledger, nil, nil, &BookingServiceConfig{Retry: fastRetry()}),
		reconciler: NewPaymentReconciler(store, ledger, nil, refunds, &PaymentReconcilerConfig{
			WebhookSecret: testWebhookSecret,
			AutoRefund:    autoRefund,
			Retry:         fastRetry(),
		}),
		refunds:    refunds,
		activityID: seedActivity(store, 10),
	}
}

func (f *reconcilerFixture) book(t *testing.T, people int) *domain.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(context.Background(), tourist, &dto.CreateBookingRequest{
		ActivityID:     f.activityID,
		NumberOfPeople: people,
	})
	require.NoError(t, err)
	return b
}

func paymentEvent(eventType domain.PaymentEventType, bookingID, transactionID string) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		Provider:      ProviderStripe,
		EventID:       "evt_" + uuid.New().String(),
		ProviderType:  string(eventType),
		Type:          eventType,
		BookingID:     bookingID,
		TransactionID: transactionID,
		Currency:      "eur",
		OccurredAt:    time.Now(),
	}
}

// stripePayload builds a Stripe event body around object
func stripePayload(t *testing.T, eventID, eventType string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":      eventID,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func sign(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

func TestVerifyAndParse(t *testing.T) {
	r := NewPaymentReconciler(repository.NewMemoryStore(), nil, nil, nil, &PaymentReconcilerConfig{WebhookSecret: testWebhookSecret})
	bookingID := uuid.New().String()

	succeeded := stripePayload(t, "evt_1", "payment_intent.succeeded", map[string]any{
		"id":                   "pi_123",
		"object":               "payment_intent",
		"amount":               5000,
		"currency":             "eur",
		"payment_method_types": []string{"card"},
		"metadata":             map[string]string{"booking_id": bookingID},
	})

	t.Run("payment intent succeeded", func(t *testing.T) {
		event, err := r.VerifyAndParse(succeeded, sign(succeeded, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentEventChargeSucceeded, event.Type)
		assert.Equal(t, "evt_1", event.EventID)
		assert.Equal(t, ProviderStripe, event.Provider)
		assert.Equal(t, bookingID, event.BookingID)
		assert.Equal(t, "pi_123", event.TransactionID)
		assert.Equal(t, int64(5000), event.Amount)
		assert.Equal(t, "eur", event.Currency)
		assert.Equal(t, "card", event.PaymentMethod)
	})

	t.Run("payment intent failed", func(t *testing.T) {
		payload := stripePayload(t, "evt_2", "payment_intent.payment_failed", map[string]any{
			"id":                 "pi_456",
			"object":             "payment_intent",
			"metadata":           map[string]string{"booking_id": bookingID},
			"last_payment_error": map[string]any{"message": "card declined"},
		})
		event, err := r.VerifyAndParse(payload, sign(payload, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentEventChargeFailed, event.Type)
		assert.Equal(t, "card declined", event.FailureReason)
	})

	t.Run("charge refunded", func(t *testing.T) {
		payload := stripePayload(t, "evt_3", "charge.refunded", map[string]any{
			"id":              "ch_1",
			"object":          "charge",
			"payment_intent":  "pi_123",
			"amount_refunded": 5000,
			"currency":        "eur",
		})
		event, err := r.VerifyAndParse(payload, sign(payload, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentEventChargeRefunded, event.Type)
		assert.Equal(t, "pi_123", event.TransactionID)
		assert.Equal(t, int64(5000), event.Amount)
	})

	t.Run("unknown type", func(t *testing.T) {
		payload := stripePayload(t, "evt_4", "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
		event, err := r.VerifyAndParse(payload, sign(payload, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentEventUnknown, event.Type)
		assert.Equal(t, "customer.created", event.ProviderType)
	})

	signatureCases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", sign(succeeded, "whsec_other", time.Now())},
		{"expired timestamp", sign(succeeded, testWebhookSecret, time.Now().Add(-time.Hour))},
		{"garbage header", "t=abc,v1=def"},
	}
	for _, tc := range signatureCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.VerifyAndParse(succeeded, tc.header)
			assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
		})
	}

	t.Run("tampered body", func(t *testing.T) {
		header := sign(succeeded, testWebhookSecret, time.Now())
		tampered := append([]byte{}, succeeded...)
		tampered[len(tampered)-2] = ' '
		_, err := r.VerifyAndParse(tampered, header)
		assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
	})

	t.Run("invalid json", func(t *testing.T) {
		payload := []byte(`{"id": "evt_5", "type":`)
		_, err := r.VerifyAndParse(payload, sign(payload, testWebhookSecret, time.Now()))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("missing booking metadata", func(t *testing.T) {
		payload := stripePayload(t, "evt_6", "payment_intent.succeeded", map[string]any{
			"id":     "pi_789",
			"object": "payment_intent",
		})
		_, err := r.VerifyAndParse(payload, sign(payload, testWebhookSecret, time.Now()))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("booking metadata is not a uuid", func(t *testing.T) {
		payload := stripePayload(t, "evt_7", "payment_intent.succeeded", map[string]any{
			"id":       "pi_790",
			"object":   "payment_intent",
			"metadata": map[string]string{"booking_id": "not-a-uuid"},
		})
		_, err := r.VerifyAndParse(payload, sign(payload, testWebhookSecret, time.Now()))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("refund metadata is not a uuid", func(t *testing.T) {
		payload := stripePayload(t, "evt_8", "charge.refunded", map[string]any{
			"id":              "ch_2",
			"object":          "charge",
			"payment_intent":  "pi_123",
			"amount_refunded": 5000,
			"currency":        "eur",
			"metadata":        map[string]string{"booking_id": "42"},
		})
		_, err := r.VerifyAndParse(payload, sign(payload, testWebhookSecret, time.Now()))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})
}

func TestHandle_SucceededConfirmsOnce(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 2)

	event := paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx1")
	outcome, err := f.reconciler.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	got := f.store.Booking(b.ID)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)

	// Same delivery replayed
	outcome, err = f.reconciler.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)

	// Same transaction under a new event id
	outcome, err = f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)

	payments := f.store.PaymentsForBooking(b.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, "tx1", payments[0].TransactionID)
	assert.Equal(t, b.TotalPrice, payments[0].Amount)
	assert.Empty(t, f.store.Conflicts())
	assert.Equal(t, 8, f.store.Activity(f.activityID).AvailableSlots)
}

func TestHandle_ConcurrentDuplicateDeliveries(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 1)
	event := paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-race")

	var wg sync.WaitGroup
	outcomes := make([]domain.ReconcileOutcome, 5)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := f.reconciler.Handle(context.Background(), event)
			assert.NoError(t, err)
			outcomes[i] = o
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, o := range outcomes {
		if o == domain.OutcomeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Len(t, f.store.PaymentsForBooking(b.ID), 1)
}

func TestHandle_FailedReleasesSlots(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 2)
	require.Equal(t, 8, f.store.Activity(f.activityID).AvailableSlots)

	outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeFailed, b.ID, "tx-fail"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	got := f.store.Booking(b.ID)
	assert.Equal(t, domain.BookingStatusCanceled, got.Status)
	assert.Equal(t, domain.PaymentStatusFailed, got.PaymentStatus)
	assert.Equal(t, domain.CancelReasonPaymentFailed, got.CancelReason)
	assert.Equal(t, 10, f.store.Activity(f.activityID).AvailableSlots)

	// A second failure notice changes nothing
	outcome, err = f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeFailed, b.ID, "tx-fail-2"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
	assert.Equal(t, 10, f.store.Activity(f.activityID).AvailableSlots)
}

func TestHandle_FailedAfterPaidIsIgnored(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 2)

	_, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-ok"))
	require.NoError(t, err)

	outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeFailed, b.ID, "tx-late"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
	assert.Equal(t, domain.BookingStatusConfirmed, f.store.Booking(b.ID).Status)
	assert.Equal(t, 8, f.store.Activity(f.activityID).AvailableSlots)
}

func TestHandle_SucceededAfterCancelIsConflict(t *testing.T) {
	f := newReconcilerFixture(t, true)
	b := f.book(t, 2)
	_, err := f.bookings.CancelBooking(context.Background(), tourist, b.ID)
	require.NoError(t, err)

	outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-late"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConflict, outcome)

	got := f.store.Booking(b.ID)
	assert.Equal(t, domain.BookingStatusCanceled, got.Status)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
	assert.Equal(t, 10, f.store.Activity(f.activityID).AvailableSlots)

	require.Len(t, f.store.PaymentsForBooking(b.ID), 1)
	conflicts := f.store.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.ConflictPaidAfterCancel, conflicts[0].Reason)
	assert.Equal(t, domain.RefundInitiated, conflicts[0].RefundStatus)
	assert.Equal(t, "re_test", conflicts[0].RefundID)
	assert.Equal(t, []string{"tx-late"}, f.refunds.calls())

	// Redelivery under a new event id does not add a second conflict
	outcome, err = f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-late"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
	assert.Len(t, f.store.Conflicts(), 1)
}

func TestHandle_TwoLateChargesAfterCancel(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 1)
	_, err := f.bookings.CancelBooking(context.Background(), tourist, b.ID)
	require.NoError(t, err)

	for _, tx := range []string{"tx-a", "tx-b"} {
		outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, tx))
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeConflict, outcome)
	}

	payments := f.store.PaymentsForBooking(b.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, "tx-a", payments[0].TransactionID)
	assert.Equal(t, domain.PaymentStatusPaid, payments[0].Status)

	var txs []string
	for _, c := range f.store.Conflicts() {
		assert.Equal(t, domain.ConflictPaidAfterCancel, c.Reason)
		assert.Equal(t, domain.RefundRequired, c.RefundStatus)
		txs = append(txs, c.TransactionID)
	}
	assert.ElementsMatch(t, []string{"tx-a", "tx-b"}, txs)
	assert.Equal(t, domain.BookingStatusCanceled, f.store.Booking(b.ID).Status)
}

func TestHandle_SecondChargeForPaidBooking(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 1)

	_, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-first"))
	require.NoError(t, err)

	outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-second"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)

	assert.Len(t, f.store.PaymentsForBooking(b.ID), 1)
	conflicts := f.store.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.ConflictDuplicateCharge, conflicts[0].Reason)
	assert.Equal(t, "tx-second", conflicts[0].TransactionID)
	assert.Equal(t, domain.RefundRequired, conflicts[0].RefundStatus)
	assert.Empty(t, f.refunds.calls())
}

func TestHandle_UnknownBookingIsRetryable(t *testing.T) {
	f := newReconcilerFixture(t, false)
	missing := uuid.New().String()
	event := paymentEvent(domain.PaymentEventChargeSucceeded, missing, "tx-early")

	_, err := f.reconciler.Handle(context.Background(), event)
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	// The event id was rolled back with everything else, so a later delivery
	// is processed once the booking exists
	b := f.book(t, 1)
	event.BookingID = b.ID
	outcome, err := f.reconciler.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)
}

func TestHandle_RefundClosesPaymentAndConflict(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 1)

	_, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-refund"))
	require.NoError(t, err)
	_, err = f.bookings.CancelBooking(context.Background(), admin, b.ID)
	require.NoError(t, err)
	require.Len(t, f.store.Conflicts(), 1)

	outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeRefunded, "", "tx-refund"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeApplied, outcome)

	got := f.store.Booking(b.ID)
	assert.Equal(t, domain.BookingStatusCanceled, got.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, got.PaymentStatus)
	assert.Equal(t, domain.PaymentStatusRefunded, f.store.PaymentsForBooking(b.ID)[0].Status)
	assert.Equal(t, domain.RefundCompleted, f.store.Conflicts()[0].RefundStatus)

	outcome, err = f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeRefunded, "", "tx-refund"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
}

func TestHandle_UnknownEventIgnored(t *testing.T) {
	f := newReconcilerFixture(t, false)
	b := f.book(t, 1)

	outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventUnknown, b.ID, ""))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, outcome)
	assert.Equal(t, domain.BookingStatusPending, f.store.Booking(b.ID).Status)
}

func TestHandle_RefundFailureLeavesConflictForManualHandling(t *testing.T) {
	f := newReconcilerFixture(t, true)
	f.refunds.err = fmt.Errorf("stripe unavailable")
	b := f.book(t, 1)
	_, err := f.bookings.CancelBooking(context.Background(), tourist, b.ID)
	require.NoError(t, err)

	outcome, err := f.reconciler.Handle(context.Background(), paymentEvent(domain.PaymentEventChargeSucceeded, b.ID, "tx-x"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeConflict, outcome)

	conflicts := f.store.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, domain.RefundFailed, conflicts[0].RefundStatus)
}
