package dto

import (
	"strings"
	"time"

	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
)

// CreateBookingRequest represents a request to book an activity
type CreateBookingRequest struct {
	ActivityID     string `json:"activity_id" binding:"required"`
	NumberOfPeople int    `json:"number_of_people"`
	// BookingDate accepts RFC 3339 or YYYY-MM-DD; empty means now
	BookingDate string `json:"booking_date,omitempty"`
	// TotalPrice in minor units; honored only under the price override policy
	TotalPrice *int64 `json:"total_price,omitempty"`
}

// ParseBookingDate returns the requested booking date, or the zero time when unset
func (r *CreateBookingRequest) ParseBookingDate() (time.Time, error) {
	s := strings.TrimSpace(r.BookingDate)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, domain.ErrInvalidBookingDate
	}
	return t, nil
}

// BookingResponse represents a booking in API responses
type BookingResponse struct {
	ID             string    `json:"id"`
	ActivityID     string    `json:"activity_id"`
	UserID         string    `json:"user_id"`
	NumberOfPeople int       `json:"number_of_people"`
	TotalPrice     int64     `json:"total_price"`
	Currency       string    `json:"currency"`
	BookingDate    time.Time `json:"booking_date"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	CancelReason   string    `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FromBooking converts a domain booking to its API shape
func FromBooking(b *domain.Booking) *BookingResponse {
	if b == nil {
		return nil
	}
	return &BookingResponse{
		ID:             b.ID,
		ActivityID:     b.ActivityID,
		UserID:         b.UserID,
		NumberOfPeople: b.NumberOfPeople,
		TotalPrice:     b.TotalPrice,
		Currency:       b.Currency,
		BookingDate:    b.BookingDate,
		Status:         b.Status.String(),
		PaymentStatus:  b.PaymentStatus.String(),
		CancelReason:   b.CancelReason,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

// DeleteBookingResponse confirms a hard delete
type DeleteBookingResponse struct {
	BookingID string `json:"booking_id"`
	Deleted   bool   `json:"deleted"`
}

// WebhookResponse acknowledges a payment provider notification
type WebhookResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"event_id,omitempty"`
	Outcome  string `json:"outcome"`
}
