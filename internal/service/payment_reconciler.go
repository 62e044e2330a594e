package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/internal/metrics"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/prohmpiriya/tourismhub-booking/pkg/retry"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProviderStripe identifies events verified with the Stripe signing secret
const ProviderStripe = "stripe"

// PaymentReconciler turns verified provider notifications into exactly-once
// effects on bookings and payments
type PaymentReconciler interface {
	// VerifyAndParse checks the signature and decodes the event. It has no
	// side effects.
	VerifyAndParse(payload []byte, signatureHeader string) (*domain.PaymentEvent, error)

	// Handle applies the event. Replays of the same event or transaction
	// return OutcomeIgnored.
	Handle(ctx context.Context, event *domain.PaymentEvent) (domain.ReconcileOutcome, error)
}

// PaymentReconcilerConfig contains configuration for the payment reconciler
type PaymentReconcilerConfig struct {
	WebhookSecret string
	// Tolerance is the maximum signature age
	Tolerance  time.Duration
	AutoRefund bool
	Retry      *retry.Config
}

type paymentReconciler struct {
	uow            *unitOfWork
	ledger         *InventoryLedger
	eventPublisher EventPublisher
	refunds        *refundCoordinator
	secret         string
	tolerance      time.Duration
	log            *logger.Logger
}

// NewPaymentReconciler creates a new payment reconciler
func NewPaymentReconciler(
	store repository.Store,
	ledger *InventoryLedger,
	eventPublisher EventPublisher,
	refunds RefundInitiator,
	cfg *PaymentReconcilerConfig,
) PaymentReconciler {
	if cfg == nil {
		cfg = &PaymentReconcilerConfig{}
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	if ledger == nil {
		ledger = NewInventoryLedger()
	}
	if eventPublisher == nil {
		eventPublisher = NewNoOpEventPublisher()
	}
	log := logger.Get().With(zap.String("component", "payment_reconciler"))

	return &paymentReconciler{
		uow:            newUnitOfWork(store, cfg.Retry, log),
		ledger:         ledger,
		eventPublisher: eventPublisher,
		refunds: &refundCoordinator{
			store:     store,
			initiator: refunds,
			enabled:   cfg.AutoRefund,
			log:       log,
		},
		secret:    cfg.WebhookSecret,
		tolerance: tolerance,
		log:       log,
	}
}

// VerifyAndParse verifies the Stripe-Signature header before decoding anything
func (r *paymentReconciler) VerifyAndParse(payload []byte, signatureHeader string) (*domain.PaymentEvent, error) {
	if signatureHeader == "" || r.secret == "" {
		return nil, domain.ErrSignatureInvalid
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, r.secret, webhook.ConstructEventOptions{
		Tolerance:                r.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	if evt.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", domain.ErrMalformedPayload)
	}

	event := &domain.PaymentEvent{
		Provider:     ProviderStripe,
		EventID:      evt.ID,
		ProviderType: string(evt.Type),
		Type:         domain.PaymentEventUnknown,
		OccurredAt:   time.Unix(evt.Created, 0).UTC(),
	}

	switch string(evt.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		pi, err := decodeObject[stripe.PaymentIntent](evt)
		if err != nil {
			return nil, err
		}
		if pi.ID == "" || pi.Metadata["booking_id"] == "" {
			return nil, fmt.Errorf("%w: payment intent without booking_id metadata", domain.ErrMalformedPayload)
		}
		if _, err := uuid.Parse(pi.Metadata["booking_id"]); err != nil {
			return nil, fmt.Errorf("%w: booking_id metadata is not a uuid", domain.ErrMalformedPayload)
		}
		event.Type = domain.PaymentEventChargeSucceeded
		if string(evt.Type) == "payment_intent.payment_failed" {
			event.Type = domain.PaymentEventChargeFailed
		}
		event.BookingID = pi.Metadata["booking_id"]
		event.TransactionID = pi.ID
		event.Amount = pi.Amount
		event.Currency = string(pi.Currency)
		if len(pi.PaymentMethodTypes) > 0 {
			event.PaymentMethod = pi.PaymentMethodTypes[0]
		}
		if pi.LastPaymentError != nil {
			event.FailureReason = pi.LastPaymentError.Msg
		}

	case "charge.refunded":
		ch, err := decodeObject[stripe.Charge](evt)
		if err != nil {
			return nil, err
		}
		if ch.PaymentIntent == nil || ch.PaymentIntent.ID == "" {
			return nil, fmt.Errorf("%w: charge without payment intent", domain.ErrMalformedPayload)
		}
		if id := ch.Metadata["booking_id"]; id != "" {
			if _, err := uuid.Parse(id); err != nil {
				return nil, fmt.Errorf("%w: booking_id metadata is not a uuid", domain.ErrMalformedPayload)
			}
		}
		event.Type = domain.PaymentEventChargeRefunded
		event.BookingID = ch.Metadata["booking_id"]
		event.TransactionID = ch.PaymentIntent.ID
		event.Amount = ch.AmountRefunded
		event.Currency = string(ch.Currency)
	}

	return event, nil
}

func decodeObject[T any](evt stripe.Event) (*T, error) {
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: missing event data", domain.ErrMalformedPayload)
	}
	var obj T
	if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return &obj, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// reconcileResult collects what a unit of work decided so the post-commit
// effects run only once it is durable
type reconcileResult struct {
	outcome   domain.ReconcileOutcome
	events    []pendingEvent
	conflicts []*domain.ReconciliationConflict
}

// Handle applies a verified event in one unit of work. The provider event id
// is recorded first so a redelivery degrades to OutcomeIgnored.
func (r *paymentReconciler) Handle(ctx context.Context, event *domain.PaymentEvent) (domain.ReconcileOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reconciler.handle")
	defer span.End()

	if event == nil {
		return "", domain.ErrMalformedPayload
	}
	span.SetAttributes(
		attribute.String("event_id", event.EventID),
		attribute.String("event_type", string(event.Type)),
		attribute.String("booking_id", event.BookingID),
		attribute.String("transaction_id", event.TransactionID),
	)
	log := r.log.With(
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.ProviderType),
		zap.String("booking_id", event.BookingID),
		zap.String("transaction_id", event.TransactionID),
	)

	var apply func(ctx context.Context, repos *repository.Repositories, event *domain.PaymentEvent) (*reconcileResult, error)
	switch event.Type {
	case domain.PaymentEventChargeSucceeded:
		apply = r.applySucceeded
	case domain.PaymentEventChargeFailed:
		apply = r.applyFailed
	case domain.PaymentEventChargeRefunded:
		apply = r.applyRefunded
	default:
		log.InfoContext(ctx, "ignoring unhandled payment event")
		metrics.RecordWebhookEvent(ctx, string(event.Type), string(domain.OutcomeIgnored))
		return domain.OutcomeIgnored, nil
	}

	var result *reconcileResult
	err := r.uow.run(ctx, "reconcile_payment", func(ctx context.Context, repos *repository.Repositories) error {
		result = nil

		record := &domain.WebhookEventRecord{
			Provider:    event.Provider,
			EventID:     event.EventID,
			EventType:   event.ProviderType,
			BookingID:   event.BookingID,
			Outcome:     domain.OutcomeIgnored,
			ProcessedAt: time.Now(),
		}
		if err := repos.WebhookEvents.Record(ctx, record); err != nil {
			if errors.Is(err, domain.ErrDuplicateEvent) {
				result = &reconcileResult{outcome: domain.OutcomeIgnored}
				return nil
			}
			return err
		}

		res, err := apply(ctx, repos, event)
		if err != nil {
			return err
		}
		result = res
		return repos.WebhookEvents.SetOutcome(ctx, event.Provider, event.EventID, res.outcome)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, domain.ErrBookingNotFound) {
			log.WarnContext(ctx, "payment event for unknown booking")
		} else {
			log.ErrorContext(ctx, "failed to reconcile payment event", zap.Error(err))
		}
		return "", err
	}

	span.SetAttributes(attribute.String("outcome", string(result.outcome)))
	metrics.RecordWebhookEvent(ctx, string(event.Type), string(result.outcome))
	for _, e := range result.events {
		switch {
		case e.eventType == domain.BookingEventConfirmed:
			metrics.RecordBookingConfirmed(ctx)
		case e.eventType == domain.BookingEventPaymentFailed && e.booking.CancelReason == domain.CancelReasonPaymentFailed:
			metrics.RecordBookingCanceled(ctx, domain.CancelReasonPaymentFailed)
		}
	}
	for _, c := range result.conflicts {
		metrics.RecordReconcileConflict(ctx, string(c.Reason))
		log.WarnContext(ctx, "payment conflicts with booking state, refund required",
			zap.String("conflict_id", c.ID),
			zap.String("reason", string(c.Reason)),
			zap.Int64("amount", c.Amount),
		)
	}
	if result.outcome == domain.OutcomeIgnored && len(result.conflicts) == 0 {
		log.InfoContext(ctx, "payment event ignored")
	} else {
		log.InfoContext(ctx, "payment event reconciled", zap.String("outcome", string(result.outcome)))
	}

	dispatch(ctx, r.eventPublisher, r.log, result.events)
	r.refunds.resolve(ctx, result.conflicts)

	return result.outcome, nil
}

// applySucceeded records the payment and confirms the booking
func (r *paymentReconciler) applySucceeded(ctx context.Context, repos *repository.Repositories, event *domain.PaymentEvent) (*reconcileResult, error) {
	b, err := repos.Bookings.GetForUpdate(ctx, event.BookingID)
	if err != nil {
		return nil, err
	}

	ignored := &reconcileResult{outcome: domain.OutcomeIgnored}
	if _, err := repos.Payments.GetByTransactionID(ctx, event.TransactionID); err == nil {
		return ignored, nil
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}
	if _, err := repos.Conflicts.GetOpenByTransactionID(ctx, event.TransactionID); err == nil {
		return ignored, nil
	} else if !errors.Is(err, repository.ErrConflictNotFound) {
		return nil, err
	}

	amount, currency := event.Amount, event.Currency
	if amount == 0 {
		amount = b.TotalPrice
	}
	if currency == "" {
		currency = b.Currency
	}

	switch {
	case b.PaymentStatus == domain.PaymentStatusPaid || b.PaymentStatus == domain.PaymentStatusRefunded:
		// A second charge for a settled booking changes nothing but the money
		// still has to go back.
		conflict := domain.NewReconciliationConflict(b.ID, event.TransactionID, domain.ConflictDuplicateCharge, amount, currency)
		if err := repos.Conflicts.Create(ctx, conflict); err != nil {
			return nil, err
		}
		return &reconcileResult{
			outcome:   domain.OutcomeIgnored,
			conflicts: []*domain.ReconciliationConflict{conflict},
		}, nil

	case b.Status == domain.BookingStatusCanceled:
		// Keep the first late charge on record without reviving the booking.
		// Later charges only get a conflict row.
		if _, err := repos.Payments.GetPaidByBookingID(ctx, b.ID); errors.Is(err, repository.ErrPaymentNotFound) {
			payment := domain.NewPaidPayment(b.ID, event.TransactionID, amount, currency, event.PaymentMethod)
			if err := repos.Payments.Create(ctx, payment); err != nil {
				if errors.Is(err, domain.ErrDuplicateTransaction) {
					return ignored, nil
				}
				return nil, err
			}
		} else if err != nil {
			return nil, err
		}
		conflict := domain.NewReconciliationConflict(b.ID, event.TransactionID, domain.ConflictPaidAfterCancel, amount, currency)
		if err := repos.Conflicts.Create(ctx, conflict); err != nil {
			return nil, err
		}
		return &reconcileResult{
			outcome:   domain.OutcomeConflict,
			events:    []pendingEvent{{domain.BookingEventPaymentConflict, b.Clone()}},
			conflicts: []*domain.ReconciliationConflict{conflict},
		}, nil
	}

	if b.PaymentStatus == domain.PaymentStatusFailed {
		// Retried payment on a booking that is still open
		if err := domain.TransitionPayment(b, domain.PaymentStatusPending); err != nil {
			return nil, err
		}
	}

	payment := domain.NewPaidPayment(b.ID, event.TransactionID, amount, currency, event.PaymentMethod)
	if err := repos.Payments.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			return ignored, nil
		}
		return nil, err
	}
	if err := domain.TransitionPayment(b, domain.PaymentStatusPaid); err != nil {
		return nil, err
	}

	result := &reconcileResult{outcome: domain.OutcomeApplied}
	if b.Status == domain.BookingStatusPending {
		if err := domain.Transition(b, domain.BookingStatusConfirmed); err != nil {
			return nil, err
		}
		result.events = append(result.events, pendingEvent{domain.BookingEventConfirmed, b.Clone()})
	}
	if err := repos.Bookings.Update(ctx, b); err != nil {
		return nil, err
	}
	return result, nil
}

// applyFailed marks the payment failed and frees the slots of a pending booking
func (r *paymentReconciler) applyFailed(ctx context.Context, repos *repository.Repositories, event *domain.PaymentEvent) (*reconcileResult, error) {
	b, err := repos.Bookings.GetForUpdate(ctx, event.BookingID)
	if err != nil {
		return nil, err
	}

	if b.PaymentStatus != domain.PaymentStatusPending {
		return &reconcileResult{outcome: domain.OutcomeIgnored}, nil
	}
	if err := domain.TransitionPayment(b, domain.PaymentStatusFailed); err != nil {
		return nil, err
	}

	result := &reconcileResult{outcome: domain.OutcomeApplied}
	if b.Status == domain.BookingStatusPending {
		if err := domain.Transition(b, domain.BookingStatusCanceled); err != nil {
			return nil, err
		}
		b.CancelReason = domain.CancelReasonPaymentFailed
		if err := r.ledger.Release(ctx, repos.Activities, b.ActivityID, b.NumberOfPeople); err != nil {
			return nil, err
		}
	}
	if err := repos.Bookings.Update(ctx, b); err != nil {
		return nil, err
	}

	result.events = append(result.events, pendingEvent{domain.BookingEventPaymentFailed, b.Clone()})
	return result, nil
}

// applyRefunded closes the payment, the booking's payment facet and any open
// conflict for the refunded charge
func (r *paymentReconciler) applyRefunded(ctx context.Context, repos *repository.Repositories, event *domain.PaymentEvent) (*reconcileResult, error) {
	result := &reconcileResult{outcome: domain.OutcomeIgnored}
	now := time.Now()

	conflict, err := repos.Conflicts.GetOpenByTransactionID(ctx, event.TransactionID)
	switch {
	case err == nil:
		conflict.RefundStatus = domain.RefundCompleted
		conflict.UpdatedAt = now
		if err := repos.Conflicts.Update(ctx, conflict); err != nil {
			return nil, err
		}
		result.outcome = domain.OutcomeApplied
	case !errors.Is(err, repository.ErrConflictNotFound):
		return nil, err
	}

	payment, err := repos.Payments.GetByTransactionID(ctx, event.TransactionID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusPaid {
		return result, nil
	}

	b, err := repos.Bookings.GetForUpdate(ctx, payment.BookingID)
	if err != nil && !errors.Is(err, domain.ErrBookingNotFound) {
		return nil, err
	}
	if err := payment.MarkRefunded(); err != nil {
		return nil, err
	}
	if err := repos.Payments.Update(ctx, payment); err != nil {
		return nil, err
	}
	result.outcome = domain.OutcomeApplied

	if b != nil && b.PaymentStatus == domain.PaymentStatusPaid {
		if err := domain.TransitionPayment(b, domain.PaymentStatusRefunded); err != nil {
			return nil, err
		}
		if err := repos.Bookings.Update(ctx, b); err != nil {
			return nil, err
		}
		result.events = append(result.events, pendingEvent{domain.BookingEventPaymentRefunded, b.Clone()})
	}
	return result, nil
}
