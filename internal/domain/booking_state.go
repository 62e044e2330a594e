package domain

import (
	"fmt"
	"time"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCanceled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCanceled},
	BookingStatusCanceled:  {},
	BookingStatusCompleted: {},
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:  {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:     {PaymentStatusRefunded},
	PaymentStatusFailed:   {PaymentStatusPending},
	PaymentStatusRefunded: {},
}

// TransitionError describes a rejected state change
type TransitionError struct {
	Facet string
	From  string
	To    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s %s -> %s", ErrInvalidTransition, e.Facet, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// CanTransition reports whether from -> to is allowed for booking status
func CanTransition(from, to BookingStatus) bool {
	for _, s := range bookingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether from -> to is allowed for payment status
func CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves status
func IsTerminal(status BookingStatus) bool {
	return len(bookingTransitions[status]) == 0
}

// HoldsInventory reports whether a booking in status keeps its slots reserved
func HoldsInventory(status BookingStatus) bool {
	return status == BookingStatusPending || status == BookingStatusConfirmed
}

// Transition moves b to status to. On rejection b is left untouched.
func Transition(b *Booking, to BookingStatus) error {
	if !CanTransition(b.Status, to) {
		return &TransitionError{Facet: "status", From: b.Status.String(), To: to.String()}
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	return nil
}

// TransitionPayment moves b's payment facet to status to. On rejection b is
// left untouched.
func TransitionPayment(b *Booking, to PaymentStatus) error {
	if !CanTransitionPayment(b.PaymentStatus, to) {
		return &TransitionError{Facet: "payment_status", From: b.PaymentStatus.String(), To: to.String()}
	}
	b.PaymentStatus = to
	b.UpdatedAt = time.Now()
	return nil
}
