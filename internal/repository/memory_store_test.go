package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryHarness(t *testing.T) *storeHarness {
	store := NewMemoryStore()
	return &storeHarness{
		store: store,
		seedActivity: func(t *testing.T, slots int) string {
			id := uuid.New().String()
			store.PutActivity(&domain.Activity{ID: id, ProviderID: uuid.New().String(), Title: "Cave tour", Price: 100, Currency: "eur", AvailableSlots: slots})
			return id
		},
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, newMemoryHarness)
}

func TestMemoryStore_BeforeCommitVeto(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New().String()
	store.PutActivity(&domain.Activity{ID: id, AvailableSlots: 2})

	veto := errors.New("commit failed")
	store.BeforeCommit = func() error { return veto }

	err := store.WithinTx(context.Background(), func(ctx context.Context, repos *Repositories) error {
		return repos.Activities.ReserveSlots(ctx, id, 2)
	})
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, 2, store.Activity(id).AvailableSlots)
}

func TestMemoryStore_CanceledContextDiscardsWork(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New().String()
	store.PutActivity(&domain.Activity{ID: id, AvailableSlots: 2})

	ctx, cancel := context.WithCancel(context.Background())
	err := store.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
		cancel()
		return repos.Activities.ReserveSlots(ctx, id, 1)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, store.Activity(id).AvailableSlots)
}

func TestMemoryStore_ReadsReturnCopies(t *testing.T) {
	store := NewMemoryStore()
	id := uuid.New().String()
	store.PutActivity(&domain.Activity{ID: id, AvailableSlots: 2})

	a, err := store.Repositories().Activities.GetByID(context.Background(), id)
	require.NoError(t, err)
	a.AvailableSlots = 100

	assert.Equal(t, 2, store.Activity(id).AvailableSlots)
	assert.Nil(t, store.Booking(uuid.New().String()))
}
