package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType is the provider-neutral kind of a webhook event
type PaymentEventType string

const (
	PaymentEventChargeSucceeded PaymentEventType = "charge_succeeded"
	PaymentEventChargeFailed    PaymentEventType = "charge_failed"
	PaymentEventChargeRefunded  PaymentEventType = "charge_refunded"
	PaymentEventUnknown         PaymentEventType = "unknown"
)

// PaymentEvent is a verified, parsed provider notification
type PaymentEvent struct {
	Provider      string           `json:"provider"`
	EventID       string           `json:"event_id"`
	ProviderType  string           `json:"provider_type"`
	Type          PaymentEventType `json:"type"`
	BookingID     string           `json:"booking_id,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Amount        int64            `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// ReconcileOutcome is the result of applying a payment event
type ReconcileOutcome string

const (
	OutcomeApplied  ReconcileOutcome = "applied"
	OutcomeIgnored  ReconcileOutcome = "ignored"
	OutcomeConflict ReconcileOutcome = "conflict"
)

// WebhookEventRecord marks a provider event as processed
type WebhookEventRecord struct {
	Provider    string           `json:"provider"`
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	BookingID   string           `json:"booking_id,omitempty"`
	Outcome     ReconcileOutcome `json:"outcome"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// ConflictReason explains why a payment could not be applied
type ConflictReason string

const (
	// ConflictPaidAfterCancel: money captured for a booking already canceled
	ConflictPaidAfterCancel ConflictReason = "paid_after_cancel"
	// ConflictDuplicateCharge: a second distinct charge for an already-paid booking
	ConflictDuplicateCharge ConflictReason = "duplicate_charge"
	// ConflictCanceledAfterPaid: a paid booking was canceled by an admin
	ConflictCanceledAfterPaid ConflictReason = "canceled_after_paid"
)

// RefundStatus tracks the resolution of a reconciliation conflict
type RefundStatus string

const (
	RefundRequired  RefundStatus = "required"
	RefundInitiated RefundStatus = "initiated"
	RefundCompleted RefundStatus = "refunded"
	RefundFailed    RefundStatus = "failed"
)

// ReconciliationConflict flags captured money that needs a refund decision
type ReconciliationConflict struct {
	ID            string         `json:"id"`
	BookingID     string         `json:"booking_id"`
	TransactionID string         `json:"transaction_id"`
	Reason        ConflictReason `json:"reason"`
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	RefundStatus  RefundStatus   `json:"refund_status"`
	RefundID      string         `json:"refund_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewReconciliationConflict builds a conflict awaiting a refund
func NewReconciliationConflict(bookingID, transactionID string, reason ConflictReason, amount int64, currency string) *ReconciliationConflict {
	now := time.Now()
	return &ReconciliationConflict{
		ID:            uuid.New().String(),
		BookingID:     bookingID,
		TransactionID: transactionID,
		Reason:        reason,
		Amount:        amount,
		Currency:      currency,
		RefundStatus:  RefundRequired,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
