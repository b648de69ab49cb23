package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVisitsEveryItem(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	var mu sync.Mutex
	seen := map[int]bool{}
	err := Run(context.Background(), 4, items, func(_ context.Context, i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, seen, len(items))
}

func TestRunRespectsLimit(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32

	items := make([]int, 20)
	err := Run(context.Background(), limit, items, func(_ context.Context, _ int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, int32(limit), peak.Load(), "pool should keep every slot busy")
}

func TestRunRefillsFreedSlots(t *testing.T) {
	// One slow item must not hold back the rest: the other slot keeps draining.
	release := make(chan struct{})
	var fast atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), 2, []int{0, 1, 2, 3, 4, 5}, func(_ context.Context, i int) error {
			if i == 0 {
				<-release
				return nil
			}
			fast.Add(1)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return fast.Load() == 5 }, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-done)
}

func TestRunStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	var started atomic.Int32

	items := make([]int, 100)
	err := Run(context.Background(), 1, items, func(_ context.Context, _ int) error {
		if started.Add(1) == 3 {
			return boom
		}
		return nil
	})

	require.ErrorIs(t, err, boom)
	assert.Less(t, started.Load(), int32(100), "queued items should be skipped after a fatal error")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := Run(ctx, 2, []int{1, 2, 3}, func(context.Context, int) error {
		calls.Add(1)
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestPoolGo(t *testing.T) {
	p, _ := New(context.Background(), 0)

	var sum atomic.Int64
	for i := 1; i <= 10; i++ {
		require.True(t, p.Go(func(context.Context) error {
			sum.Add(int64(i))
			return nil
		}))
	}

	require.NoError(t, p.Wait())
	assert.Equal(t, int64(55), sum.Load())
}
