package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCanceled  BookingStatus = "canceled"
	BookingStatusCompleted BookingStatus = "completed"
)

// IsValid checks if the status is valid
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCanceled, BookingStatusCompleted:
		return true
	}
	return false
}

// String returns string representation
func (s BookingStatus) String() string {
	return string(s)
}

// PaymentStatus is the payment facet of a booking and the state of a payment row
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// IsValid checks if the status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// String returns string representation
func (s PaymentStatus) String() string {
	return string(s)
}

// Cancellation reasons
const (
	CancelReasonUser          = "canceled_by_user"
	CancelReasonAdmin         = "canceled_by_admin"
	CancelReasonPaymentFailed = "payment_failed"
	CancelReasonExpired       = "expired"
)

// Booking is a tourist's reservation against one activity
type Booking struct {
	ID             string        `json:"id"`
	ActivityID     string        `json:"activity_id"`
	UserID         string        `json:"user_id"`
	NumberOfPeople int           `json:"number_of_people"`
	TotalPrice     int64         `json:"total_price"`
	Currency       string        `json:"currency"`
	BookingDate    time.Time     `json:"booking_date"`
	Status         BookingStatus `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	CancelReason   string        `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewBooking builds a pending, unpaid booking
func NewBooking(activityID, userID string, numberOfPeople int, totalPrice int64, currency string, bookingDate time.Time) (*Booking, error) {
	if activityID == "" {
		return nil, ErrInvalidActivityID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if numberOfPeople < 1 {
		return nil, ErrInvalidNumberOfPeople
	}
	if totalPrice < 0 {
		return nil, ErrInvalidTotalPrice
	}

	now := time.Now()
	if bookingDate.IsZero() {
		bookingDate = now
	}

	return &Booking{
		ID:             uuid.New().String(),
		ActivityID:     activityID,
		UserID:         userID,
		NumberOfPeople: numberOfPeople,
		TotalPrice:     totalPrice,
		Currency:       currency,
		BookingDate:    bookingDate,
		Status:         BookingStatusPending,
		PaymentStatus:  PaymentStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsOwnedBy reports whether userID created the booking
func (b *Booking) IsOwnedBy(userID string) bool {
	return b.UserID == userID
}

// HoldsInventory reports whether the booking's people are currently charged
// against the activity's slots.
func (b *Booking) HoldsInventory() bool {
	return HoldsInventory(b.Status)
}

// Clone returns a copy safe to mutate independently
func (b *Booking) Clone() *Booking {
	c := *b
	return &c
}
