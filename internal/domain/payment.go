package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment records money captured by the payment provider for a booking.
// TransactionID is the provider's charge identifier and is unique.
type Payment struct {
	ID            string        `json:"id"`
	BookingID     string        `json:"booking_id"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	PaymentMethod string        `json:"payment_method"`
	Status        PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewPaidPayment builds the payment row for a succeeded charge
func NewPaidPayment(bookingID, transactionID string, amount int64, currency, method string) *Payment {
	now := time.Now()
	if method == "" {
		method = "card"
	}
	return &Payment{
		ID:            uuid.New().String(),
		BookingID:     bookingID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: method,
		Status:        PaymentStatusPaid,
		TransactionID: transactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarkRefunded moves a paid payment to refunded
func (p *Payment) MarkRefunded() error {
	if !CanTransitionPayment(p.Status, PaymentStatusRefunded) {
		return &TransitionError{Facet: "payment", From: p.Status.String(), To: PaymentStatusRefunded.String()}
	}
	p.Status = PaymentStatusRefunded
	p.UpdatedAt = time.Now()
	return nil
}
