package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	mu        sync.Mutex
	calls     int
	olderThan time.Duration
	limit     int
	result    int
	err       error
}

func (f *fakeExpirer) ExpirePendingBookings(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.olderThan = olderThan
	f.limit = limit
	return f.result, f.err
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestExpiryWorker_ScansOnStartAndInterval(t *testing.T) {
	expirer := &fakeExpirer{result: 2}
	w := NewExpiryWorker(expirer, &ExpiryWorkerConfig{
		ScanInterval: 20 * time.Millisecond,
		PendingTTL:   15 * time.Minute,
		BatchSize:    25,
	})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Eventually(t, func() bool { return expirer.callCount() >= 2 }, 2*time.Second, 10*time.Millisecond)

	expirer.mu.Lock()
	assert.Equal(t, 15*time.Minute, expirer.olderThan)
	assert.Equal(t, 25, expirer.limit)
	expirer.mu.Unlock()

	stats := w.GetStats()
	assert.True(t, stats.IsRunning)
	assert.GreaterOrEqual(t, stats.TotalExpired, int64(4))
	assert.Equal(t, 2, stats.LastExpiredCount)
}

func TestExpiryWorker_StartTwice(t *testing.T) {
	w := NewExpiryWorker(&fakeExpirer{}, &ExpiryWorkerConfig{ScanInterval: time.Hour, BatchSize: 1})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	assert.False(t, w.GetStats().IsRunning)

	// Stop is idempotent
	assert.NoError(t, w.Stop())
}

func TestExpiryWorker_ErrorsDoNotStopScanning(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("db down")}
	w := NewExpiryWorker(expirer, &ExpiryWorkerConfig{ScanInterval: 20 * time.Millisecond, BatchSize: 1})

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Eventually(t, func() bool { return expirer.callCount() >= 3 }, 2*time.Second, 10*time.Millisecond)
}

func TestExpiryWorker_CanceledContextSkipsScan(t *testing.T) {
	expirer := &fakeExpirer{}
	w := NewExpiryWorker(expirer, &ExpiryWorkerConfig{ScanInterval: 10 * time.Millisecond, BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Start(ctx))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())

	assert.Zero(t, expirer.callCount())
}
