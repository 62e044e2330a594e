package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/pkg/database"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// PostgresActivityRepository implements ActivityRepository
type PostgresActivityRepository struct {
	db database.DBTX
}

// NewPostgresActivityRepository creates a new PostgresActivityRepository
func NewPostgresActivityRepository(db database.DBTX) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db}
}

// GetByID retrieves an activity
func (r *PostgresActivityRepository) GetByID(ctx context.Context, id string) (*domain.Activity, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.activity.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("activity_id", id))

	query := `
		SELECT id, provider_id, title, price, currency, available_slots, created_at, updated_at
		FROM activities
		WHERE id = $1
	`

	a := &domain.Activity{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.ProviderID, &a.Title, &a.Price, &a.Currency,
		&a.AvailableSlots, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrActivityNotFound
		}
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// ReserveSlots takes count slots with a single conditional UPDATE. The row
// lock Postgres holds for the update serializes concurrent reservations.
func (r *PostgresActivityRepository) ReserveSlots(ctx context.Context, id string, count int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.activity.reserve_slots")
	defer span.End()
	span.SetAttributes(attribute.String("activity_id", id), attribute.Int("count", count))

	query := `
		UPDATE activities
		SET available_slots = available_slots - $2, updated_at = NOW()
		WHERE id = $1 AND available_slots >= $2
	`

	tag, err := r.db.Exec(ctx, query, id, count)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to reserve slots: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM activities WHERE id = $1)`, id).Scan(&exists); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to check activity: %w", err)
	}
	if !exists {
		return domain.ErrActivityNotFound
	}
	return domain.ErrInsufficientSlots
}

// ReleaseSlots returns count slots to the activity
func (r *PostgresActivityRepository) ReleaseSlots(ctx context.Context, id string, count int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.activity.release_slots")
	defer span.End()
	span.SetAttributes(attribute.String("activity_id", id), attribute.Int("count", count))

	query := `
		UPDATE activities
		SET available_slots = available_slots + $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, count)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to release slots: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrActivityNotFound
	}
	return nil
}

// Create inserts an activity. The catalog owns activities; this is used by
// seeding and integration tests.
func (r *PostgresActivityRepository) Create(ctx context.Context, a *domain.Activity) error {
	query := `
		INSERT INTO activities (id, provider_id, title, price, currency, available_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.ProviderID, a.Title, a.Price, a.Currency, a.AvailableSlots, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}
