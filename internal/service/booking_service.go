package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/internal/dto"
	"github.com/prohmpiriya/tourismhub-booking/internal/metrics"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/prohmpiriya/tourismhub-booking/pkg/retry"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// BookingService defines the interface for booking business logic
type BookingService interface {
	// CreateBooking reserves slots and creates a pending booking atomically
	CreateBooking(ctx context.Context, actor domain.Actor, req *dto.CreateBookingRequest) (*domain.Booking, error)

	// GetBooking returns a booking visible to the actor
	GetBooking(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Booking, error)

	// CancelBooking cancels a booking and releases its slots
	CancelBooking(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Booking, error)

	// DeleteBooking removes a booking, releasing slots it still holds
	DeleteBooking(ctx context.Context, actor domain.Actor, bookingID string) error

	// ExpirePendingBookings cancels unpaid pending bookings older than olderThan
	ExpirePendingBookings(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// BookingServiceConfig contains configuration for booking service
type BookingServiceConfig struct {
	// AllowPriceOverride lets admins supply total_price instead of price * people
	AllowPriceOverride bool
	DefaultCurrency    string
	Retry              *retry.Config
	AutoRefund         bool
}

// bookingService implements BookingService
type bookingService struct {
	uow             *unitOfWork
	store           repository.Store
	ledger          *InventoryLedger
	eventPublisher  EventPublisher
	refunds         *refundCoordinator
	log             *logger.Logger
	allowOverride   bool
	defaultCurrency string
}

// NewBookingService creates a new booking service
func NewBookingService(
	store repository.Store,
	ledger *InventoryLedger,
	eventPublisher EventPublisher,
	refunds RefundInitiator,
	cfg *BookingServiceConfig,
) BookingService {
	if cfg == nil {
		cfg = &BookingServiceConfig{}
	}
	currency := cfg.DefaultCurrency
	if currency == "" {
		currency = "eur"
	}
	if ledger == nil {
		ledger = NewInventoryLedger()
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	log := logger.Get().With(zap.String("component", "booking_service"))

	return &bookingService{
		uow:            newUnitOfWork(store, cfg.Retry, log),
		store:          store,
		ledger:         ledger,
		eventPublisher: eventPublisher,
		refunds: &refundCoordinator{
			store:     store,
			initiator: refunds,
			enabled:   cfg.AutoRefund,
			log:       log,
		},
		log:             log,
		allowOverride:   cfg.AllowPriceOverride,
		defaultCurrency: currency,
	}
}

// CreateBooking reserves slots and creates a pending booking in one unit of work
func (s *bookingService) CreateBooking(ctx context.Context, actor domain.Actor, req *dto.CreateBookingRequest) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()
	start := time.Now()
	defer func() { metrics.RecordCreateBookingDuration(ctx, time.Since(start)) }()

	if req == nil {
		return nil, domain.ErrInvalidActivityID
	}
	span.SetAttributes(
		attribute.String("activity_id", req.ActivityID),
		attribute.Int("number_of_people", req.NumberOfPeople),
	)

	if actor.UserID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if _, err := uuid.Parse(req.ActivityID); err != nil {
		return nil, domain.ErrInvalidActivityID
	}
	if req.NumberOfPeople < 1 {
		return nil, domain.ErrInvalidNumberOfPeople
	}
	if req.TotalPrice != nil && *req.TotalPrice < 0 {
		return nil, domain.ErrInvalidTotalPrice
	}
	bookingDate, err := req.ParseBookingDate()
	if err != nil {
		return nil, err
	}

	var booking *domain.Booking
	err = s.uow.run(ctx, "create_booking", func(ctx context.Context, repos *repository.Repositories) error {
		booking = nil

		activity, err := repos.Activities.GetByID(ctx, req.ActivityID)
		if err != nil {
			return err
		}
		if err := s.ledger.TryReserve(ctx, repos.Activities, activity.ID, req.NumberOfPeople); err != nil {
			return err
		}

		total := activity.PriceFor(req.NumberOfPeople)
		if s.priceOverrideAllowed(actor, req) {
			total = *req.TotalPrice
		}
		currency := activity.Currency
		if currency == "" {
			currency = s.defaultCurrency
		}

		b, err := domain.NewBooking(activity.ID, actor.UserID, req.NumberOfPeople, total, currency, bookingDate)
		if err != nil {
			return err
		}
		if err := repos.Bookings.Create(ctx, b); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if domain.IsBusinessError(err) {
			metrics.RecordBookingRejected(ctx, rejectReason(err))
		} else {
			s.log.ErrorContext(ctx, "create booking failed",
				zap.String("activity_id", req.ActivityID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	metrics.RecordBookingCreated(ctx, booking.ActivityID, booking.NumberOfPeople)
	s.log.InfoContext(ctx, "booking created",
		zap.String("booking_id", booking.ID),
		zap.String("activity_id", booking.ActivityID),
		zap.Int("number_of_people", booking.NumberOfPeople),
	)
	dispatch(ctx, s.eventPublisher, s.log, []pendingEvent{{domain.BookingEventCreated, booking.Clone()}})

	return booking, nil
}

// priceOverrideAllowed reports whether the caller-supplied total replaces the
// computed one
func (s *bookingService) priceOverrideAllowed(actor domain.Actor, req *dto.CreateBookingRequest) bool {
	return s.allowOverride && actor.IsAdmin() && req.TotalPrice != nil && *req.TotalPrice > 0
}

// GetBooking returns a booking visible to the actor
func (s *bookingService) GetBooking(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, domain.ErrInvalidBookingID
	}

	b, err := s.store.Repositories().Bookings.GetByID(ctx, bookingID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !actor.IsAdmin() && !b.IsOwnedBy(actor.UserID) {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

// CancelBooking cancels a booking and releases its slots in one unit of work.
// Owners may cancel pending bookings; admins may also cancel confirmed ones.
func (s *bookingService) CancelBooking(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, domain.ErrInvalidBookingID
	}

	reason := domain.CancelReasonUser
	if actor.IsAdmin() {
		reason = domain.CancelReasonAdmin
	}

	var (
		canceled  *domain.Booking
		conflicts []*domain.ReconciliationConflict
	)
	err := s.uow.run(ctx, "cancel_booking", func(ctx context.Context, repos *repository.Repositories) error {
		canceled, conflicts = nil, nil

		b, err := repos.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !b.IsOwnedBy(actor.UserID) {
			return domain.ErrForbidden
		}

		conflict, err := s.cancelLocked(ctx, repos, b, reason, actor.IsAdmin())
		if err != nil {
			return err
		}
		if conflict != nil {
			conflicts = append(conflicts, conflict)
		}
		canceled = b
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if !domain.IsBusinessError(err) {
			s.log.ErrorContext(ctx, "cancel booking failed", zap.String("booking_id", bookingID), zap.Error(err))
		}
		return nil, err
	}

	metrics.RecordBookingCanceled(ctx, reason)
	s.log.InfoContext(ctx, "booking canceled",
		zap.String("booking_id", canceled.ID),
		zap.String("reason", reason),
		zap.Int("released", canceled.NumberOfPeople),
	)

	events := []pendingEvent{{domain.BookingEventCanceled, canceled.Clone()}}
	for _, c := range conflicts {
		metrics.RecordReconcileConflict(ctx, string(c.Reason))
		s.log.WarnContext(ctx, "paid booking canceled, refund required",
			zap.String("booking_id", canceled.ID),
			zap.String("conflict_id", c.ID),
			zap.Int64("amount", c.Amount),
		)
		events = append(events, pendingEvent{domain.BookingEventPaymentConflict, canceled.Clone()})
	}
	dispatch(ctx, s.eventPublisher, s.log, events)
	s.refunds.resolve(ctx, conflicts)

	return canceled, nil
}

// cancelLocked cancels a row-locked booking and releases its slots. A paid
// booking yields a refund-required conflict that the caller must report.
func (s *bookingService) cancelLocked(
	ctx context.Context,
	repos *repository.Repositories,
	b *domain.Booking,
	reason string,
	allowConfirmed bool,
) (*domain.ReconciliationConflict, error) {
	eligible := b.Status == domain.BookingStatusPending ||
		(allowConfirmed && b.Status == domain.BookingStatusConfirmed)
	if !eligible {
		return nil, fmt.Errorf("%w: booking is %s", domain.ErrNotCancelable, b.Status)
	}

	wasPaid := b.PaymentStatus == domain.PaymentStatusPaid
	if err := domain.Transition(b, domain.BookingStatusCanceled); err != nil {
		return nil, err
	}
	b.CancelReason = reason

	if err := s.ledger.Release(ctx, repos.Activities, b.ActivityID, b.NumberOfPeople); err != nil {
		return nil, err
	}
	if err := repos.Bookings.Update(ctx, b); err != nil {
		return nil, err
	}
	if !wasPaid {
		return nil, nil
	}

	amount, currency, transactionID := b.TotalPrice, b.Currency, ""
	payment, err := repos.Payments.GetPaidByBookingID(ctx, b.ID)
	switch {
	case err == nil:
		amount, currency, transactionID = payment.Amount, payment.Currency, payment.TransactionID
	case !errors.Is(err, repository.ErrPaymentNotFound):
		return nil, err
	}

	conflict := domain.NewReconciliationConflict(b.ID, transactionID, domain.ConflictCanceledAfterPaid, amount, currency)
	if err := repos.Conflicts.Create(ctx, conflict); err != nil {
		return nil, err
	}
	return conflict, nil
}

// DeleteBooking removes a booking. Slots still held by a pending or confirmed
// booking are released in the same unit of work.
func (s *bookingService) DeleteBooking(ctx context.Context, actor domain.Actor, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.delete")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", bookingID))

	if _, err := uuid.Parse(bookingID); err != nil {
		return domain.ErrInvalidBookingID
	}

	var deleted *domain.Booking
	err := s.uow.run(ctx, "delete_booking", func(ctx context.Context, repos *repository.Repositories) error {
		deleted = nil

		b, err := repos.Bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !b.IsOwnedBy(actor.UserID) {
			return domain.ErrForbidden
		}

		if b.HoldsInventory() {
			if err := s.ledger.Release(ctx, repos.Activities, b.ActivityID, b.NumberOfPeople); err != nil {
				return err
			}
		}
		if err := repos.Bookings.Delete(ctx, b.ID); err != nil {
			return err
		}
		deleted = b
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if !domain.IsBusinessError(err) {
			s.log.ErrorContext(ctx, "delete booking failed", zap.String("booking_id", bookingID), zap.Error(err))
		}
		return err
	}

	metrics.RecordBookingDeleted(ctx)
	s.log.InfoContext(ctx, "booking deleted",
		zap.String("booking_id", deleted.ID),
		zap.String("status", deleted.Status.String()),
		zap.Bool("released", deleted.HoldsInventory()),
	)
	dispatch(ctx, s.eventPublisher, s.log, []pendingEvent{{domain.BookingEventDeleted, deleted.Clone()}})
	return nil
}

// ExpirePendingBookings cancels unpaid pending bookings created before
// now - olderThan, at most limit per call. Each booking is canceled in its
// own unit of work; a failure on one does not stop the rest.
func (s *bookingService) ExpirePendingBookings(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.expire_pending")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}
	cutoff := time.Now().Add(-olderThan)

	ids, err := s.store.Repositories().Bookings.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, fmt.Errorf("failed to list stale bookings: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}

		var booking *domain.Booking
		err := s.uow.run(ctx, "expire_booking", func(ctx context.Context, repos *repository.Repositories) error {
			booking = nil

			b, err := repos.Bookings.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// Paid or canceled since it was listed
			if b.Status != domain.BookingStatusPending || b.PaymentStatus != domain.PaymentStatusPending {
				return nil
			}
			if _, err := s.cancelLocked(ctx, repos, b, domain.CancelReasonExpired, false); err != nil {
				return err
			}
			booking = b
			return nil
		})
		if err != nil {
			s.log.WarnContext(ctx, "failed to expire booking", zap.String("booking_id", id), zap.Error(err))
			continue
		}
		if booking == nil {
			continue
		}

		expired++
		metrics.RecordBookingCanceled(ctx, domain.CancelReasonExpired)
		dispatch(ctx, s.eventPublisher, s.log, []pendingEvent{{domain.BookingEventExpired, booking.Clone()}})
	}

	span.SetAttributes(attribute.Int("expired", expired))
	return expired, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientSlots):
		return "insufficient_slots"
	case errors.Is(err, domain.ErrActivityNotFound):
		return "activity_not_found"
	case domain.IsValidationError(err):
		return "validation"
	default:
		return "other"
	}
}
