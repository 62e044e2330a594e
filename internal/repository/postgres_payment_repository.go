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

const paymentColumns = `
	id, booking_id, amount, currency, payment_method, payment_status,
	transaction_id, created_at, updated_at
`

// PostgresPaymentRepository implements PaymentRepository
type PostgresPaymentRepository struct {
	db database.DBTX
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(db database.DBTX) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// Create inserts a payment. A repeated transaction id is reported as
// domain.ErrDuplicateTransaction. A second paid row for the same booking
// violates payments_one_paid_per_booking and is reported as
// domain.ErrBookingAlreadyPaid; the enclosing transaction is aborted either way.
func (r *PostgresPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", p.BookingID),
		attribute.String("transaction_id", p.TransactionID),
	)

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		p.ID, p.BookingID, p.Amount, p.Currency, p.PaymentMethod, p.Status.String(),
		p.TransactionID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "payments_one_paid_per_booking") {
			return domain.ErrBookingAlreadyPaid
		}
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to create payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateTransaction
	}
	return nil
}

// GetByTransactionID retrieves a payment by provider transaction id
func (r *PostgresPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_transaction_id")
	defer span.End()

	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID)
}

// GetPaidByBookingID retrieves the paid payment of a booking
func (r *PostgresPaymentRepository) GetPaidByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_paid_by_booking")
	defer span.End()

	return r.get(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 AND payment_status = 'paid'`, bookingID)
}

func (r *PostgresPaymentRepository) get(ctx context.Context, query string, arg string) (*domain.Payment, error) {
	p := &domain.Payment{}
	var status string
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID, &p.BookingID, &p.Amount, &p.Currency, &p.PaymentMethod, &status,
		&p.TransactionID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p.Status = domain.PaymentStatus(status)
	return p, nil
}

// Update writes the payment status
func (r *PostgresPaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.update")
	defer span.End()

	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET payment_status = $2, updated_at = $3 WHERE id = $1`,
		p.ID, p.Status.String(), p.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// PostgresWebhookEventRepository implements WebhookEventRepository
type PostgresWebhookEventRepository struct {
	db database.DBTX
}

// NewPostgresWebhookEventRepository creates a new PostgresWebhookEventRepository
func NewPostgresWebhookEventRepository(db database.DBTX) *PostgresWebhookEventRepository {
	return &PostgresWebhookEventRepository{db: db}
}

// Record claims a provider event id. A concurrent delivery of the same id
// blocks on the primary key until the first transaction finishes.
func (r *PostgresWebhookEventRepository) Record(ctx context.Context, e *domain.WebhookEventRecord) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.webhook_event.record")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", e.EventID))

	query := `
		INSERT INTO webhook_events (provider, provider_event_id, event_type, booking_id, outcome, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, e.Provider, e.EventID, e.EventType, nullString(e.BookingID), string(e.Outcome), e.ProcessedAt)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

// SetOutcome stores the final outcome of a processed event
func (r *PostgresWebhookEventRepository) SetOutcome(ctx context.Context, provider, eventID string, outcome domain.ReconcileOutcome) error {
	_, err := r.db.Exec(ctx,
		`UPDATE webhook_events SET outcome = $3 WHERE provider = $1 AND provider_event_id = $2`,
		provider, eventID, string(outcome),
	)
	if err != nil {
		return fmt.Errorf("failed to set webhook event outcome: %w", err)
	}
	return nil
}
