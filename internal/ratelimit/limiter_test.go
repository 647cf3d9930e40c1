package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/Trader/models"
)

func TestNewRejectsNonPositiveMaxCalls(t *testing.T) {
	_, err := New("market-data", 0, time.Second)
	require.Error(t, err)

	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Field, "max_calls")
}

func TestNewRejectsNonPositivePeriod(t *testing.T) {
	_, err := New("market-data", 5, 0)
	require.Error(t, err)

	var cfgErr *models.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Field, "period")
}

func TestBurstPassesImmediately(t *testing.T) {
	l, err := New("test", 3, time.Second)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestSaturatedLimiterDelaysInsteadOfDropping(t *testing.T) {
	l, err := New("test", 3, 300*time.Millisecond)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background()))
	}

	// Call maxCalls+1 must wait for a token to refill (one per 100ms here)
	// but still succeed
	start := time.Now()
	require.NoError(t, l.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquireReturnsOnCancelledContext(t *testing.T) {
	l, err := New("test", 1, time.Hour)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Acquire(ctx))
}

func TestAcquireIsSafeForConcurrentUse(t *testing.T) {
	l, err := New("test", 50, time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	l, err := r.Register("market-data", 5, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "market-data", l.Name())

	got, err := r.Get("market-data")
	require.NoError(t, err)
	assert.Same(t, l, got)

	_, err = r.Get("broker")
	assert.Error(t, err)
}

func TestRegistryRejectsInvalidConfig(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("bad", -1, time.Second)
	require.Error(t, err)

	_, err = r.Get("bad")
	assert.Error(t, err, "a failed registration must not be retrievable")
}
