package repository

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/prohmpiriya/tourismhub-booking/pkg/database"
	"github.com/stretchr/testify/require"
)

func skipIfNoPostgres(t *testing.T) {
	if os.Getenv("TEST_POSTGRES_HOST") == "" {
		t.Skip("Skipping integration test: TEST_POSTGRES_HOST not set")
	}
}

func getTestPostgresConfig() *database.PostgresConfig {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = os.Getenv("TEST_POSTGRES_HOST")
	if port, err := strconv.Atoi(os.Getenv("TEST_POSTGRES_PORT")); err == nil {
		cfg.Port = port
	}
	if user := os.Getenv("TEST_POSTGRES_USER"); user != "" {
		cfg.User = user
	}
	cfg.Password = os.Getenv("TEST_POSTGRES_PASSWORD")
	if name := os.Getenv("TEST_POSTGRES_DB"); name != "" {
		cfg.Database = name
	}
	cfg.MaxRetries = 0
	return cfg
}

func newPostgresHarness(t *testing.T) *storeHarness {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewPostgres(ctx, getTestPostgresConfig())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx, Schema))

	activities := NewPostgresActivityRepository(db.Pool())
	return &storeHarness{
		store: NewPostgresStore(db.Pool()),
		seedActivity: func(t *testing.T, slots int) string {
			now := time.Now()
			a := &domain.Activity{
				ID:             uuid.New().String(),
				ProviderID:     uuid.New().String(),
				Title:          "Integration tour",
				Price:          100,
				Currency:       "eur",
				AvailableSlots: slots,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			require.NoError(t, activities.Create(context.Background(), a))
			return a.ID
		},
	}
}

func TestPostgresStore_Contract(t *testing.T) {
	skipIfNoPostgres(t)
	runStoreContract(t, newPostgresHarness)
}
