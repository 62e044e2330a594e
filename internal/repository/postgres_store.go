package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/tourismhub-booking/pkg/database"
)

// PostgresStore implements Store on a pgx pool
type PostgresStore struct {
	pool  *pgxpool.Pool
	repos *Repositories
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, repos: newPostgresRepositories(pool)}
}

func newPostgresRepositories(db database.DBTX) *Repositories {
	return &Repositories{
		Activities:    NewPostgresActivityRepository(db),
		Bookings:      NewPostgresBookingRepository(db),
		Payments:      NewPostgresPaymentRepository(db),
		WebhookEvents: NewPostgresWebhookEventRepository(db),
		Conflicts:     NewPostgresConflictRepository(db),
	}
}

// WithinTx runs fn with repositories bound to one transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, newPostgresRepositories(tx))
	})
}

// Repositories returns pool-bound repositories
func (s *PostgresStore) Repositories() *Repositories {
	return s.repos
}
