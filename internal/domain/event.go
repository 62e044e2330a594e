package domain

import "time"

// BookingEventType names notifications published after a commit
type BookingEventType string

const (
	BookingEventCreated         BookingEventType = "booking.created"
	BookingEventConfirmed       BookingEventType = "booking.confirmed"
	BookingEventCanceled        BookingEventType = "booking.canceled"
	BookingEventExpired         BookingEventType = "booking.expired"
	BookingEventDeleted         BookingEventType = "booking.deleted"
	BookingEventPaymentFailed   BookingEventType = "payment.failed"
	BookingEventPaymentRefunded BookingEventType = "payment.refunded"
	BookingEventPaymentConflict BookingEventType = "payment.conflict"
)

// BookingEvent is the notification payload
type BookingEvent struct {
	EventID    string           `json:"event_id"`
	EventType  BookingEventType `json:"event_type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Version    int              `json:"version"`
	Data       BookingEventData `json:"data"`
}

// BookingEventData carries the booking snapshot
type BookingEventData struct {
	BookingID      string        `json:"booking_id"`
	ActivityID     string        `json:"activity_id"`
	UserID         string        `json:"user_id"`
	NumberOfPeople int           `json:"number_of_people"`
	TotalPrice     int64         `json:"total_price"`
	Currency       string        `json:"currency"`
	Status         BookingStatus `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	Reason         string        `json:"reason,omitempty"`
}

// NewBookingEvent snapshots b for publishing
func NewBookingEvent(eventType BookingEventType, b *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: time.Now(),
		Version:    1,
		Data: BookingEventData{
			BookingID:      b.ID,
			ActivityID:     b.ActivityID,
			UserID:         b.UserID,
			NumberOfPeople: b.NumberOfPeople,
			TotalPrice:     b.TotalPrice,
			Currency:       b.Currency,
			Status:         b.Status,
			PaymentStatus:  b.PaymentStatus,
			Reason:         b.CancelReason,
		},
	}
}

// Key partitions events by booking so one booking's events stay ordered
func (e *BookingEvent) Key() string {
	return e.Data.BookingID
}
