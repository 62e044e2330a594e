package service

import (
	"context"

	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/internal/repository"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// InventoryLedger is the only writer of Activity.AvailableSlots. It operates
// on the repositories of the caller's unit of work, so a reservation commits
// or rolls back together with the booking that caused it.
type InventoryLedger struct{}

// NewInventoryLedger creates an inventory ledger
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{}
}

// TryReserve decrements the activity's slots by count if enough remain.
// Returns domain.ErrInsufficientSlots or domain.ErrActivityNotFound otherwise.
func (l *InventoryLedger) TryReserve(ctx context.Context, activities repository.ActivityRepository, activityID string, count int) error {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger.try_reserve")
	defer span.End()
	span.SetAttributes(attribute.String("activity_id", activityID), attribute.Int("count", count))

	if count <= 0 {
		return domain.ErrInvalidSlotCount
	}
	if err := activities.ReserveSlots(ctx, activityID, count); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// Release credits count slots back to the activity
func (l *InventoryLedger) Release(ctx context.Context, activities repository.ActivityRepository, activityID string, count int) error {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger.release")
	defer span.End()
	span.SetAttributes(attribute.String("activity_id", activityID), attribute.Int("count", count))

	if count <= 0 {
		return domain.ErrInvalidSlotCount
	}
	if err := activities.ReleaseSlots(ctx, activityID, count); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}
