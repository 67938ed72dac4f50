package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	k := NewKeyed()
	key := uuid.New()
	require.NoError(t, k.Acquire(context.Background(), key))
	k.Release(key)
	require.NoError(t, k.Acquire(context.Background(), key))
	k.Release(key)
}

func TestMutualExclusion(t *testing.T) {
	k := NewKeyed()
	key := uuid.New()
	var (
		mu      sync.Mutex
		holders int
		max     int
	)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, k.Acquire(context.Background(), key))
			mu.Lock()
			holders++
			if holders > max {
				max = holders
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			holders--
			mu.Unlock()
			k.Release(key)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, max)
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	a, b := uuid.New(), uuid.New()
	require.NoError(t, k.Acquire(context.Background(), a))
	defer k.Release(a)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := k.Acquire(context.Background(), b); err != nil {
			return
		}
		k.Release(b)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second key blocked behind first")
	}
}

func TestAcquireRespectsContext(t *testing.T) {
	k := NewKeyed()
	key := uuid.New()
	require.NoError(t, k.Acquire(context.Background(), key))
	defer k.Release(key)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := k.Acquire(ctx, key)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseUnheldPanics(t *testing.T) {
	k := NewKeyed()
	require.Panics(t, func() { k.Release(uuid.New()) })
}
