package inflight_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/jet-lab/lookup-table-registry-go/inflight"
	"github.com/jet-lab/lookup-table-registry-go/utils/unittest"
)

func TestGroupDeduplicatesConcurrentCalls(t *testing.T) {
	group := inflight.NewGroup[string, *int]()
	gate := make(chan struct{})
	fnCalls := atomic.NewInt64(0)
	starts := atomic.NewInt64(0)

	value := 42
	fn := func(context.Context) (*int, error) {
		fnCalls.Inc()
		<-gate
		return &value, nil
	}

	const callers = 10
	results := make([]*int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, started, err := group.Do(context.Background(), "key", fn)
			assert.NoError(t, err)
			if started {
				starts.Inc()
			}
			results[i] = v
		}()
	}

	// wait until every caller is attached before letting the fetch finish
	require.Eventually(t, func() bool {
		return group.Waiters("key") == callers
	}, time.Second, time.Millisecond)
	close(gate)

	unittest.RequireReturnsBefore(t, wg.Wait, time.Second)

	assert.Equal(t, int64(1), fnCalls.Load(), "only one fetch may run")
	assert.Equal(t, int64(1), starts.Load(), "exactly one caller starts the fetch")
	for i, result := range results {
		assert.Same(t, &value, result, "caller %d must receive the shared result", i)
	}
	assert.Zero(t, group.Len(), "no call may stay registered after completion")
}

func TestGroupFansOutErrors(t *testing.T) {
	group := inflight.NewGroup[string, int]()
	gate := make(chan struct{})
	errBoom := errors.New("boom")

	fn := func(context.Context) (int, error) {
		<-gate
		return 0, errBoom
	}

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = group.Do(context.Background(), "key", fn)
		}()
	}

	require.Eventually(t, func() bool {
		return group.Waiters("key") == callers
	}, time.Second, time.Millisecond)
	close(gate)

	unittest.RequireReturnsBefore(t, wg.Wait, time.Second)
	for i := 0; i < callers; i++ {
		assert.ErrorIs(t, errs[i], errBoom, "caller %d", i)
	}
}

func TestGroupSequentialCallsStartFresh(t *testing.T) {
	group := inflight.NewGroup[string, int]()
	fnCalls := atomic.NewInt64(0)

	fn := func(context.Context) (int, error) {
		return int(fnCalls.Inc()), nil
	}

	v, started, err := group.Do(context.Background(), "key", fn)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, 1, v)

	v, started, err = group.Do(context.Background(), "key", fn)
	require.NoError(t, err)
	assert.True(t, started, "a completed run must not absorb later calls")
	assert.Equal(t, 2, v)
}

func TestGroupDistinctKeysRunConcurrently(t *testing.T) {
	group := inflight.NewGroup[string, int]()
	gate := make(chan struct{})
	fnCalls := atomic.NewInt64(0)

	fn := func(context.Context) (int, error) {
		fnCalls.Inc()
		<-gate
		return 0, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b"} {
		key := key
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := group.Do(context.Background(), key, fn)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool {
		return fnCalls.Load() == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, group.Len())

	close(gate)
	unittest.RequireReturnsBefore(t, wg.Wait, time.Second)
	assert.Zero(t, group.Len())
}

func TestGroupWaiterDepartureLeavesRunAlive(t *testing.T) {
	group := inflight.NewGroup[string, int]()
	gate := make(chan struct{})
	runCanceled := atomic.NewBool(false)

	fn := func(ctx context.Context) (int, error) {
		select {
		case <-gate:
			return 7, nil
		case <-ctx.Done():
			runCanceled.Store(true)
			return 0, ctx.Err()
		}
	}

	// leader with an independent lifetime
	var leaderV int
	var leaderErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		leaderV, _, leaderErr = group.Do(context.Background(), "key", fn)
	}()

	require.Eventually(t, func() bool {
		return group.Waiters("key") == 1
	}, time.Second, time.Millisecond)

	// waiter that gives up early
	waiterCtx, cancelWaiter := context.WithCancel(context.Background())
	var waiterErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, waiterErr = group.Do(waiterCtx, "key", fn)
	}()

	require.Eventually(t, func() bool {
		return group.Waiters("key") == 2
	}, time.Second, time.Millisecond)

	cancelWaiter()
	require.Eventually(t, func() bool {
		return group.Waiters("key") == 1
	}, time.Second, time.Millisecond)
	assert.False(t, runCanceled.Load(), "the run must keep going while the leader waits")

	close(gate)
	unittest.RequireReturnsBefore(t, wg.Wait, time.Second)

	require.NoError(t, leaderErr)
	assert.Equal(t, 7, leaderV)
	assert.ErrorIs(t, waiterErr, context.Canceled)
	assert.False(t, runCanceled.Load())
}

func TestGroupLastWaiterCancelsRun(t *testing.T) {
	group := inflight.NewGroup[string, int]()
	runCanceled := atomic.NewBool(false)

	fn := func(ctx context.Context) (int, error) {
		<-ctx.Done()
		runCanceled.Store(true)
		return 0, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	var doErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, doErr = group.Do(ctx, "key", fn)
	}()

	require.Eventually(t, func() bool {
		return group.Waiters("key") == 1
	}, time.Second, time.Millisecond)

	cancel()
	unittest.RequireReturnsBefore(t, wg.Wait, time.Second)
	assert.ErrorIs(t, doErr, context.Canceled)

	// the abandoned run gets canceled and unregisters itself
	require.Eventually(t, func() bool {
		return runCanceled.Load() && group.Len() == 0
	}, time.Second, time.Millisecond)
}

func TestGroupRunOutlivesStarterDeadline(t *testing.T) {
	group := inflight.NewGroup[string, int]()
	gate := make(chan struct{})

	fn := func(ctx context.Context) (int, error) {
		select {
		case <-gate:
			return 9, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	// the starter carries a deadline that lapses while the run is going
	starterCtx, cancelStarter := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelStarter()

	var starterErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, starterErr = group.Do(starterCtx, "key", fn)
	}()

	require.Eventually(t, func() bool {
		return group.Waiters("key") == 1
	}, time.Second, time.Millisecond)

	// a second caller attaches before the starter's deadline fires
	var waiterV int
	var waiterErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		waiterV, _, waiterErr = group.Do(context.Background(), "key", fn)
	}()

	require.Eventually(t, func() bool {
		return group.Waiters("key") == 2
	}, time.Second, time.Millisecond)

	// let the starter's deadline lapse, then finish the run
	require.Eventually(t, func() bool {
		return group.Waiters("key") == 1
	}, time.Second, time.Millisecond)
	close(gate)

	unittest.RequireReturnsBefore(t, wg.Wait, time.Second)
	assert.ErrorIs(t, starterErr, context.DeadlineExceeded)
	require.NoError(t, waiterErr, "the run must not inherit the starter's deadline")
	assert.Equal(t, 9, waiterV)
}
