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

const conflictColumns = `
	id, booking_id, transaction_id, reason, amount, currency,
	refund_status, refund_id, created_at, updated_at
`

// PostgresConflictRepository implements ConflictRepository
type PostgresConflictRepository struct {
	db database.DBTX
}

// NewPostgresConflictRepository creates a new PostgresConflictRepository
func NewPostgresConflictRepository(db database.DBTX) *PostgresConflictRepository {
	return &PostgresConflictRepository{db: db}
}

// Create inserts a conflict
func (r *PostgresConflictRepository) Create(ctx context.Context, c *domain.ReconciliationConflict) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.conflict.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", c.BookingID),
		attribute.String("reason", string(c.Reason)),
	)

	query := `
		INSERT INTO reconciliation_conflicts (` + conflictColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.BookingID, c.TransactionID, string(c.Reason), c.Amount, c.Currency,
		string(c.RefundStatus), nullString(c.RefundID), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to create reconciliation conflict: %w", err)
	}
	return nil
}

// GetByID retrieves a conflict
func (r *PostgresConflictRepository) GetByID(ctx context.Context, id string) (*domain.ReconciliationConflict, error) {
	return r.get(ctx, `SELECT `+conflictColumns+` FROM reconciliation_conflicts WHERE id = $1`, id)
}

// GetOpenByTransactionID retrieves the newest unresolved conflict for a charge
func (r *PostgresConflictRepository) GetOpenByTransactionID(ctx context.Context, transactionID string) (*domain.ReconciliationConflict, error) {
	query := `
		SELECT ` + conflictColumns + ` FROM reconciliation_conflicts
		WHERE transaction_id = $1 AND refund_status IN ('required', 'initiated', 'failed')
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.get(ctx, query, transactionID)
}

func (r *PostgresConflictRepository) get(ctx context.Context, query, arg string) (*domain.ReconciliationConflict, error) {
	c := &domain.ReconciliationConflict{}
	var (
		reason       string
		refundStatus string
		refundID     *string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.BookingID, &c.TransactionID, &reason, &c.Amount, &c.Currency,
		&refundStatus, &refundID, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		return nil, fmt.Errorf("failed to get reconciliation conflict: %w", err)
	}
	c.Reason = domain.ConflictReason(reason)
	c.RefundStatus = domain.RefundStatus(refundStatus)
	if refundID != nil {
		c.RefundID = *refundID
	}
	return c, nil
}

// Update writes the refund state of a conflict
func (r *PostgresConflictRepository) Update(ctx context.Context, c *domain.ReconciliationConflict) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reconciliation_conflicts SET refund_status = $2, refund_id = $3, updated_at = $4 WHERE id = $1`,
		c.ID, string(c.RefundStatus), nullString(c.RefundID), c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update reconciliation conflict: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflictNotFound
	}
	return nil
}
