package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBooking(t *testing.T) *Booking {
	t.Helper()
	b, err := NewBooking("activity-1", "user-1", 2, 5000, "eur", time.Time{})
	require.NoError(t, err)
	return b
}

func TestTransition_Table(t *testing.T) {
	all := []BookingStatus{BookingStatusPending, BookingStatusConfirmed, BookingStatusCanceled, BookingStatusCompleted}
	allowed := map[BookingStatus]map[BookingStatus]bool{
		BookingStatusPending:   {BookingStatusConfirmed: true, BookingStatusCanceled: true},
		BookingStatusConfirmed: {BookingStatusCompleted: true, BookingStatusCanceled: true},
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				b := newTestBooking(t)
				b.Status = from
				before := *b

				err := Transition(b, to)
				if allowed[from][to] {
					require.NoError(t, err)
					assert.Equal(t, to, b.Status)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
					assert.Equal(t, before, *b)
				}
			})
		}
	}
}

func TestTransitionPayment_Table(t *testing.T) {
	all := []PaymentStatus{PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded}
	allowed := map[PaymentStatus]map[PaymentStatus]bool{
		PaymentStatusPending: {PaymentStatusPaid: true, PaymentStatusFailed: true},
		PaymentStatusPaid:    {PaymentStatusRefunded: true},
		PaymentStatusFailed:  {PaymentStatusPending: true},
	}

	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				b := newTestBooking(t)
				b.PaymentStatus = from
				before := *b

				err := TransitionPayment(b, to)
				if allowed[from][to] {
					require.NoError(t, err)
					assert.Equal(t, to, b.PaymentStatus)
				} else {
					assert.ErrorIs(t, err, ErrInvalidTransition)
					assert.Equal(t, before, *b)
				}
			})
		}
	}
}

func TestTransition_CompletedToPendingRejected(t *testing.T) {
	b := newTestBooking(t)
	b.Status = BookingStatusCompleted
	b.UpdatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := Transition(b, BookingStatusPending)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "completed", te.From)
	assert.Equal(t, "pending", te.To)
	assert.Equal(t, BookingStatusCompleted, b.Status)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), b.UpdatedAt)
}

func TestTransition_UpdatesTimestamp(t *testing.T) {
	b := newTestBooking(t)
	b.UpdatedAt = time.Time{}

	require.NoError(t, Transition(b, BookingStatusConfirmed))
	assert.False(t, b.UpdatedAt.IsZero())
}

func TestHoldsInventory(t *testing.T) {
	assert.True(t, HoldsInventory(BookingStatusPending))
	assert.True(t, HoldsInventory(BookingStatusConfirmed))
	assert.False(t, HoldsInventory(BookingStatusCanceled))
	assert.False(t, HoldsInventory(BookingStatusCompleted))
	assert.True(t, IsTerminal(BookingStatusCanceled))
	assert.False(t, IsTerminal(BookingStatusPending))
}

func TestNewBooking_Validation(t *testing.T) {
	tests := []struct {
		name       string
		activityID string
		userID     string
		people     int
		total      int64
		wantErr    error
	}{
		{"valid", "a", "u", 1, 0, nil},
		{"missing activity", "", "u", 1, 0, ErrInvalidActivityID},
		{"missing user", "a", "", 1, 0, ErrInvalidUserID},
		{"zero people", "a", "u", 0, 0, ErrInvalidNumberOfPeople},
		{"negative total", "a", "u", 1, -1, ErrInvalidTotalPrice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBooking(tt.activityID, tt.userID, tt.people, tt.total, "eur", time.Time{})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, BookingStatusPending, b.Status)
			assert.Equal(t, PaymentStatusPending, b.PaymentStatus)
			assert.NotEmpty(t, b.ID)
			assert.False(t, b.BookingDate.IsZero())
		})
	}
}

func TestPayment_MarkRefunded(t *testing.T) {
	p := NewPaidPayment("b1", "pi_1", 1000, "eur", "")
	assert.Equal(t, "card", p.PaymentMethod)
	require.NoError(t, p.MarkRefunded())
	assert.Equal(t, PaymentStatusRefunded, p.Status)
	assert.ErrorIs(t, p.MarkRefunded(), ErrInvalidTransition)
}

func TestIsBusinessError(t *testing.T) {
	assert.True(t, IsBusinessError(ErrInsufficientSlots))
	assert.True(t, IsBusinessError(&TransitionError{Facet: "status"}))
	assert.False(t, IsBusinessError(errors.New("connection reset")))
}
