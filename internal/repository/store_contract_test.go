package repository

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/tourismhub-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeHarness adapts a Store implementation to the shared contract tests
type storeHarness struct {
	store        Store
	seedActivity func(t *testing.T, slots int) string
}

func runStoreContract(t *testing.T, newHarness func(t *testing.T) *storeHarness) {
	t.Run("ReserveSlotsIsConditional", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		activityID := h.seedActivity(t, 3)
		repos := h.store.Repositories()

		require.NoError(t, repos.Activities.ReserveSlots(ctx, activityID, 2))
		assert.ErrorIs(t, repos.Activities.ReserveSlots(ctx, activityID, 2), domain.ErrInsufficientSlots)
		require.NoError(t, repos.Activities.ReserveSlots(ctx, activityID, 1))

		a, err := repos.Activities.GetByID(ctx, activityID)
		require.NoError(t, err)
		assert.Equal(t, 0, a.AvailableSlots)

		require.NoError(t, repos.Activities.ReleaseSlots(ctx, activityID, 3))
		a, err = repos.Activities.GetByID(ctx, activityID)
		require.NoError(t, err)
		assert.Equal(t, 3, a.AvailableSlots)

		assert.ErrorIs(t, repos.Activities.ReserveSlots(ctx, uuid.New().String(), 1), domain.ErrActivityNotFound)
	})

	t.Run("ConcurrentReservationsNeverOversell", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		activityID := h.seedActivity(t, 5)

		var granted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := h.store.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
					return repos.Activities.ReserveSlots(ctx, activityID, 1)
				})
				if err == nil {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()

		a, err := h.store.Repositories().Activities.GetByID(ctx, activityID)
		require.NoError(t, err)
		assert.Equal(t, int32(5), granted.Load())
		assert.Equal(t, 0, a.AvailableSlots)
	})

	t.Run("FailedUnitOfWorkRollsBack", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		activityID := h.seedActivity(t, 4)
		b, err := domain.NewBooking(activityID, "user-1", 2, 5000, "eur", time.Time{})
		require.NoError(t, err)

		boom := errors.New("boom")
		err = h.store.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
			if err := repos.Activities.ReserveSlots(ctx, activityID, 2); err != nil {
				return err
			}
			if err := repos.Bookings.Create(ctx, b); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		repos := h.store.Repositories()
		a, err := repos.Activities.GetByID(ctx, activityID)
		require.NoError(t, err)
		assert.Equal(t, 4, a.AvailableSlots)
		_, err = repos.Bookings.GetByID(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	})

	t.Run("BookingLifecycle", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		repos := h.store.Repositories()
		activityID := h.seedActivity(t, 4)

		b, err := domain.NewBooking(activityID, "user-1", 2, 5000, "eur", time.Now().Add(48*time.Hour))
		require.NoError(t, err)
		require.NoError(t, repos.Bookings.Create(ctx, b))

		got, err := repos.Bookings.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPending, got.Status)
		assert.Equal(t, int64(5000), got.TotalPrice)

		require.NoError(t, domain.Transition(got, domain.BookingStatusCanceled))
		got.CancelReason = domain.CancelReasonUser
		require.NoError(t, repos.Bookings.Update(ctx, got))

		got, err = repos.Bookings.GetByID(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCanceled, got.Status)
		assert.Equal(t, domain.CancelReasonUser, got.CancelReason)

		require.NoError(t, repos.Bookings.Delete(ctx, b.ID))
		assert.ErrorIs(t, repos.Bookings.Delete(ctx, b.ID), domain.ErrBookingNotFound)
		_, err = repos.Bookings.GetByID(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	})

	t.Run("ListStalePending", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		repos := h.store.Repositories()
		activityID := h.seedActivity(t, 10)

		var ids []string
		for i := 0; i < 3; i++ {
			b, err := domain.NewBooking(activityID, "user-1", 1, 100, "eur", time.Time{})
			require.NoError(t, err)
			b.CreatedAt = time.Now().Add(-time.Duration(3-i) * time.Hour)
			require.NoError(t, repos.Bookings.Create(ctx, b))
			ids = append(ids, b.ID)
		}
		fresh, err := domain.NewBooking(activityID, "user-1", 1, 100, "eur", time.Time{})
		require.NoError(t, err)
		require.NoError(t, repos.Bookings.Create(ctx, fresh))

		cutoff := time.Now().Add(-30 * time.Minute)
		stale, err := repos.Bookings.ListStalePending(ctx, cutoff, 1000)
		require.NoError(t, err)
		assert.NotContains(t, stale, fresh.ID)

		// oldest first; a shared database may hold rows from earlier runs
		last := -1
		for _, id := range ids {
			idx := slices.Index(stale, id)
			require.GreaterOrEqual(t, idx, 0)
			assert.Greater(t, idx, last)
			last = idx
		}

		limited, err := repos.Bookings.ListStalePending(ctx, cutoff, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("PaymentTransactionIDIsUnique", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		repos := h.store.Repositories()
		bookingID := uuid.New().String()
		txID := "pi_" + uuid.New().String()

		require.NoError(t, repos.Payments.Create(ctx, domain.NewPaidPayment(bookingID, txID, 5000, "eur", "card")))
		assert.ErrorIs(t,
			repos.Payments.Create(ctx, domain.NewPaidPayment(uuid.New().String(), txID, 5000, "eur", "card")),
			domain.ErrDuplicateTransaction)

		p, err := repos.Payments.GetPaidByBookingID(ctx, bookingID)
		require.NoError(t, err)
		require.NoError(t, p.MarkRefunded())
		require.NoError(t, repos.Payments.Update(ctx, p))

		_, err = repos.Payments.GetPaidByBookingID(ctx, bookingID)
		assert.ErrorIs(t, err, ErrPaymentNotFound)
		got, err := repos.Payments.GetByTransactionID(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusRefunded, got.Status)
	})

	t.Run("OnePaidPaymentPerBooking", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		repos := h.store.Repositories()
		bookingID := uuid.New().String()
		first := "pi_" + uuid.New().String()

		require.NoError(t, repos.Payments.Create(ctx, domain.NewPaidPayment(bookingID, first, 5000, "eur", "card")))
		assert.ErrorIs(t,
			repos.Payments.Create(ctx, domain.NewPaidPayment(bookingID, "pi_"+uuid.New().String(), 5000, "eur", "card")),
			domain.ErrBookingAlreadyPaid)

		p, err := repos.Payments.GetPaidByBookingID(ctx, bookingID)
		require.NoError(t, err)
		assert.Equal(t, first, p.TransactionID)

		// A refunded row no longer counts as paid
		require.NoError(t, p.MarkRefunded())
		require.NoError(t, repos.Payments.Update(ctx, p))
		require.NoError(t, repos.Payments.Create(ctx, domain.NewPaidPayment(bookingID, "pi_"+uuid.New().String(), 5000, "eur", "card")))
	})

	t.Run("WebhookEventsDeduplicate", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		repos := h.store.Repositories()
		record := &domain.WebhookEventRecord{
			Provider:    "stripe",
			EventID:     "evt_" + uuid.New().String(),
			EventType:   "payment_intent.succeeded",
			Outcome:     domain.OutcomeIgnored,
			ProcessedAt: time.Now(),
		}

		require.NoError(t, repos.WebhookEvents.Record(ctx, record))
		assert.ErrorIs(t, repos.WebhookEvents.Record(ctx, record), domain.ErrDuplicateEvent)
		require.NoError(t, repos.WebhookEvents.SetOutcome(ctx, record.Provider, record.EventID, domain.OutcomeApplied))

		other := *record
		other.Provider = "other"
		assert.NoError(t, repos.WebhookEvents.Record(ctx, &other))
	})

	t.Run("OpenConflictLookup", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		repos := h.store.Repositories()
		txID := "pi_" + uuid.New().String()

		_, err := repos.Conflicts.GetOpenByTransactionID(ctx, txID)
		assert.ErrorIs(t, err, ErrConflictNotFound)

		c := domain.NewReconciliationConflict(uuid.New().String(), txID, domain.ConflictPaidAfterCancel, 5000, "eur")
		require.NoError(t, repos.Conflicts.Create(ctx, c))

		open, err := repos.Conflicts.GetOpenByTransactionID(ctx, txID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, open.ID)
		assert.Equal(t, domain.RefundRequired, open.RefundStatus)

		open.RefundStatus = domain.RefundCompleted
		open.RefundID = "re_1"
		require.NoError(t, repos.Conflicts.Update(ctx, open))

		_, err = repos.Conflicts.GetOpenByTransactionID(ctx, txID)
		assert.ErrorIs(t, err, ErrConflictNotFound)
		got, err := repos.Conflicts.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "re_1", got.RefundID)
	})
}
