package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/prohmpiriya/tourismhub-booking/pkg/logger"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/refund"
	"go.uber.org/zap"
)

// ErrRefundUnavailable is returned when no provider refund can be issued
var ErrRefundUnavailable = errors.New("refund not available")

// RefundInitiator asks the payment provider to return captured money
type RefundInitiator interface {
	// InitiateRefund starts a refund for the conflict's charge and returns
	// the provider's refund id
	InitiateRefund(ctx context.Context, conflict *domain.ReconciliationConflict) (string, error)
}

// StripeRefundInitiator issues refunds through the Stripe API
type StripeRefundInitiator struct{}

// NewStripeRefundInitiator sets the Stripe API key and returns an initiator
func NewStripeRefundInitiator(secretKey string) (*StripeRefundInitiator, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = secretKey
	return &StripeRefundInitiator{}, nil
}

// InitiateRefund refunds the payment intent recorded on the conflict. The
// conflict id is the idempotency key, so a repeated call never refunds twice.
func (s *StripeRefundInitiator) InitiateRefund(ctx context.Context, conflict *domain.ReconciliationConflict) (string, error) {
	if conflict.TransactionID == "" {
		return "", ErrRefundUnavailable
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(conflict.TransactionID),
		Amount:        stripe.Int64(conflict.Amount),
	}
	params.SetIdempotencyKey("conflict-" + conflict.ID)

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create refund: %w", err)
	}
	return r.ID, nil
}

// NoOpRefundInitiator never refunds; conflicts stay in RefundRequired
type NoOpRefundInitiator struct{}

// InitiateRefund always reports ErrRefundUnavailable
func (NoOpRefundInitiator) InitiateRefund(ctx context.Context, conflict *domain.ReconciliationConflict) (string, error) {
	return "", ErrRefundUnavailable
}

// refundCoordinator moves freshly recorded conflicts towards a refund
type refundCoordinator struct {
	store     repository.Store
	initiator RefundInitiator
	enabled   bool
	log       *logger.Logger
}

// resolve initiates a refund for each conflict when automatic refunds are
// enabled and records the result. Failures leave the conflict for manual
// handling.
func (c *refundCoordinator) resolve(ctx context.Context, conflicts []*domain.ReconciliationConflict) {
	if !c.enabled || c.initiator == nil {
		return
	}
	for _, conflict := range conflicts {
		if conflict.RefundStatus != domain.RefundRequired {
			continue
		}

		refundID, err := c.initiator.InitiateRefund(ctx, conflict)
		status := domain.RefundInitiated
		if err != nil {
			if errors.Is(err, ErrRefundUnavailable) {
				continue
			}
			status = domain.RefundFailed
			c.log.ErrorContext(ctx, "refund initiation failed",
				zap.String("conflict_id", conflict.ID),
				zap.String("transaction_id", conflict.TransactionID),
				zap.Error(err),
			)
		}

		err = c.store.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
			current, err := repos.Conflicts.GetByID(ctx, conflict.ID)
			if err != nil {
				return err
			}
			// A charge.refunded webhook may already have closed it
			if current.RefundStatus == domain.RefundCompleted {
				return nil
			}
			current.RefundStatus = status
			current.RefundID = refundID
			current.UpdatedAt = time.Now()
			return repos.Conflicts.Update(ctx, current)
		})
		if err != nil {
			c.log.ErrorContext(ctx, "failed to record refund status",
				zap.String("conflict_id", conflict.ID),
				zap.Error(err),
			)
		}
	}
}
