package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/pkg/database"
	"github.com/prohmpiriya/tourismhub-booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const bookingColumns = `
	id, activity_id, user_id, number_of_people, total_price, currency,
	booking_date, status, payment_status, cancel_reason, created_at, updated_at
`

// PostgresBookingRepository implements BookingRepository
type PostgresBookingRepository struct {
	db database.DBTX
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db database.DBTX) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

// Create inserts a booking
func (r *PostgresBookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", b.ID),
		attribute.String("activity_id", b.ActivityID),
	)

	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(ctx, query,
		b.ID, b.ActivityID, b.UserID, b.NumberOfPeople, b.TotalPrice, b.Currency,
		b.BookingDate, b.Status.String(), b.PaymentStatus.String(), nullString(b.CancelReason),
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking without locking it
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetForUpdate retrieves a booking and locks its row
func (r *PostgresBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_for_update")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresBookingRepository) get(ctx context.Context, query, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// Update writes the mutable booking fields
func (r *PostgresBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking_id", b.ID),
		attribute.String("status", b.Status.String()),
		attribute.String("payment_status", b.PaymentStatus.String()),
	)

	query := `
		UPDATE bookings
		SET status = $2, payment_status = $3, cancel_reason = $4, total_price = $5, updated_at = $6
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		b.ID, b.Status.String(), b.PaymentStatus.String(), nullString(b.CancelReason), b.TotalPrice, b.UpdatedAt,
	)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// Delete removes a booking row
func (r *PostgresBookingRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.delete")
	defer span.End()
	span.SetAttributes(attribute.String("booking_id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookingNotFound
	}
	return nil
}

// ListStalePending returns unpaid pending bookings created before cutoff
func (r *PostgresBookingRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_stale_pending")
	defer span.End()

	query := `
		SELECT id FROM bookings
		WHERE status = 'pending' AND payment_status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to list stale bookings: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan stale bookings: %w", err)
	}
	return ids, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	b := &domain.Booking{}
	var (
		status        string
		paymentStatus string
		cancelReason  *string
	)

	err := row.Scan(
		&b.ID, &b.ActivityID, &b.UserID, &b.NumberOfPeople, &b.TotalPrice, &b.Currency,
		&b.BookingDate, &status, &paymentStatus, &cancelReason, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = domain.BookingStatus(status)
	b.PaymentStatus = domain.PaymentStatus(paymentStatus)
	if cancelReason != nil {
		b.CancelReason = *cancelReason
	}
	return b, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
