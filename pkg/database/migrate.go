package database

import (
	"context"
	"fmt"
)

// Migrate applies an idempotent schema script in one transaction
func (db *PostgresDB) Migrate(ctx context.Context, schema string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return tx.Commit(ctx)
}
