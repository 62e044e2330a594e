package repository

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
)

// ErrPaymentNotFound is returned when no payment matches a lookup
var ErrPaymentNotFound = errors.New("payment not found")

// ErrConflictNotFound is returned when no reconciliation conflict matches a lookup
var ErrConflictNotFound = errors.New("reconciliation conflict not found")

// ActivityRepository reads activities and mutates their slot counts
type ActivityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Activity, error)
	// ReserveSlots decrements available slots only if enough remain.
	// Returns domain.ErrInsufficientSlots or domain.ErrActivityNotFound.
	ReserveSlots(ctx context.Context, id string, count int) error
	// ReleaseSlots increments available slots unconditionally
	ReleaseSlots(ctx context.Context, id string, count int) error
}

// BookingRepository persists bookings
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// GetForUpdate locks the booking row until the enclosing transaction ends
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)
	Update(ctx context.Context, booking *domain.Booking) error
	Delete(ctx context.Context, id string) error
	// ListStalePending returns ids of unpaid pending bookings created before cutoff
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// PaymentRepository persists payments
type PaymentRepository interface {
	// Create returns domain.ErrDuplicateTransaction when the transaction id exists
	// and domain.ErrBookingAlreadyPaid for a second paid payment of one booking
	Create(ctx context.Context, payment *domain.Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	GetPaidByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error)
	Update(ctx context.Context, payment *domain.Payment) error
}

// WebhookEventRepository deduplicates provider events
type WebhookEventRepository interface {
	// Record returns domain.ErrDuplicateEvent when the event was seen before
	Record(ctx context.Context, event *domain.WebhookEventRecord) error
	SetOutcome(ctx context.Context, provider, eventID string, outcome domain.ReconcileOutcome) error
}

// ConflictRepository persists reconciliation conflicts
type ConflictRepository interface {
	Create(ctx context.Context, conflict *domain.ReconciliationConflict) error
	GetByID(ctx context.Context, id string) (*domain.ReconciliationConflict, error)
	GetOpenByTransactionID(ctx context.Context, transactionID string) (*domain.ReconciliationConflict, error)
	Update(ctx context.Context, conflict *domain.ReconciliationConflict) error
}

// Repositories groups repositories bound to one connection or transaction
type Repositories struct {
	Activities    ActivityRepository
	Bookings      BookingRepository
	Payments      PaymentRepository
	WebhookEvents WebhookEventRepository
	Conflicts     ConflictRepository
}

// Store is the unit-of-work boundary. Everything fn does through repos
// commits together or not at all.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
	// Repositories returns non-transactional repositories for reads
	Repositories() *Repositories
}
