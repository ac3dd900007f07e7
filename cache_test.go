package flightcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingProducer(calls *int32, value string) Producer[string] {
	return func(ctx context.Context, args ...any) (string, error) {
		atomic.AddInt32(calls, 1)
		return value, nil
	}
}

func TestCache_ColdCallProducesAndCaches(t *testing.T) {
	var calls int32
	c := Wrap[string](countingProducer(&calls, "v1"))

	v, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	v, err = c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "second call should hit the fresh cached entry")
}

func TestCache_NotConfiguredFailsFast(t *testing.T) {
	var calls int32
	c := Wrap[string](countingProducer(&calls, "v"), WithConfigured[string](false))

	_, err := c.Call(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestCache_ExpiredEntryTriggersBlockingRefresh(t *testing.T) {
	var calls int32
	clock := &manualClock{t: time.Now()}
	c := Wrap[string](countingProducer(&calls, "fresh"),
		WithClock[string](clock.now),
		WithEntryBuilder[string](&ConstantLifespanBuilder[string]{UpdateAfter: time.Minute, ExpiresAfter: 2 * time.Minute}),
	)

	_, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	clock.advance(3 * time.Minute) // past ExpiresAfter
	v, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "expired entry must trigger a new producer invocation")
}

func TestCache_ExpiredEntryWithInflightRefresh_AllCallersAwaitFreshValue(t *testing.T) {
	var calls int32
	clock := &manualClock{t: time.Now()}
	release := make(chan struct{})
	producer := func(ctx context.Context, args ...any) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "v1", nil
		}
		<-release
		return "v2", nil
	}
	c := Wrap[string](producer,
		WithClock[string](clock.now),
		WithEntryBuilder[string](&ConstantLifespanBuilder[string]{UpdateAfter: time.Minute, ExpiresAfter: 2 * time.Minute}),
	)

	v, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock.advance(3 * time.Minute) // past ExpiresAfter: next calls see an expired entry

	const n = 3
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Call(context.Background(), "k")
		}(i)
	}

	time.Sleep(20 * time.Millisecond) // let every goroutine reach the single-flight wait
	close(release)
	wg.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "single-flight must invoke the producer exactly once for the refresh")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "v2", results[i], "a concurrent caller racing an in-flight refresh of an expired entry must await the fresh value, not the stale expired one")
	}
}

func TestCache_UpdateDueReturnsStaleAndRefreshesInBackground(t *testing.T) {
	var calls int32
	clock := &manualClock{t: time.Now()}
	refreshed := make(chan struct{})
	producer := func(ctx context.Context, args ...any) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 2 {
			defer close(refreshed)
		}
		return fmt.Sprintf("v%d", n), nil
	}

	c := Wrap[string](producer,
		WithClock[string](clock.now),
		WithEntryBuilder[string](&ConstantLifespanBuilder[string]{UpdateAfter: time.Minute, ExpiresAfter: time.Hour}),
	)

	v, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock.advance(2 * time.Minute) // past UpdateAfter, still before ExpiresAfter
	v, err = c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v, "update-due call must still return the stale value immediately")

	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("background refresh did not complete")
	}
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCache_SingleFlight_ConcurrentColdCallsInvokeProducerOnce(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	producer := func(ctx context.Context, args ...any) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil
	}
	c := Wrap[string](producer)

	const n = 20
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Call(context.Background(), "k")
		}(i)
	}

	time.Sleep(20 * time.Millisecond) // let every goroutine reach the single-flight wait
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "single-flight must invoke the producer exactly once")
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "v", results[i])
	}
}

func TestCache_SingleFlight_SameOutcomeFanOutOnError(t *testing.T) {
	boom := errors.New("boom")
	var calls int32
	release := make(chan struct{})
	producer := func(ctx context.Context, args ...any) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "", boom
	}
	c := Wrap[string](producer)

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Call(context.Background(), "k")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for i := 0; i < n; i++ {
		assert.ErrorIs(t, errs[i], ErrRefreshFailed)
		assert.ErrorIs(t, errs[i], boom)
	}
}

func TestCache_ProducerTimeoutSurfacesAsCallError(t *testing.T) {
	block := make(chan struct{}) // never closed: producer never returns on its own
	producer := func(ctx context.Context, args ...any) (string, error) {
		<-block
		return "", nil
	}
	c := Wrap[string](producer, WithProducerTimeout[string](10*time.Millisecond))

	_, err := c.Call(context.Background(), "k")
	assert.ErrorIs(t, err, ErrProducerTimeout)
}

func TestCache_CallerCancellationDoesNotAbortProducer(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	producer := func(ctx context.Context, args ...any) (string, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
		return "populated", nil
	}
	c := Wrap[string](producer)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Call(ctx, "k")
		errCh <- err
	}()

	<-started
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("producer should keep running after caller cancellation")
	}

	// A later caller observes the value the detached producer populated.
	v, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "populated", v)
}

func TestCache_ForceRefreshBypassesFreshEntry(t *testing.T) {
	var calls int32
	c := Wrap[string](countingProducer(&calls, "v"))

	_, err := c.Call(context.Background(), "k")
	require.NoError(t, err)

	_, err = c.ForceRefresh(context.Background(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCache_InvalidationRemovesEntryForNextCall(t *testing.T) {
	var calls int32
	storage := NewMemoryStorage[string]()
	keyExtractor := NewNameKeyExtractor("p")
	c := Wrap[string](countingProducer(&calls, "v"),
		WithStorage[string](storage),
		WithKeyExtractor[string](keyExtractor),
	)
	inval := NewInvalidationSupport[string](storage, keyExtractor)

	_, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, 1, storage.Len())

	require.NoError(t, inval.InvalidateForArguments(context.Background(), "k"))
	assert.Equal(t, 0, storage.Len())

	_, err = c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestInvalidationSupport_UnboundFails(t *testing.T) {
	inval := UnboundInvalidationSupport[string]()
	err := inval.InvalidateForArguments(context.Background(), "k")
	assert.ErrorIs(t, err, ErrInvalidationUnbound)
}

func TestCache_PostprocessorAppliedToReturnedValue(t *testing.T) {
	var calls int32
	c := Wrap[string](countingProducer(&calls, "raw"),
		WithPostprocessor[string](PostprocessorFunc[string](func(v string) (string, error) {
			return v + "-post", nil
		})),
	)

	v, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "raw-post", v)
}

func TestCache_PostprocessorErrorDoesNotEvictCachedEntry(t *testing.T) {
	var calls int32
	storage := NewMemoryStorage[string]()
	boom := errors.New("postprocess boom")
	c := Wrap[string](countingProducer(&calls, "raw"),
		WithStorage[string](storage),
		WithPostprocessor[string](PostprocessorFunc[string](func(v string) (string, error) {
			return "", boom
		})),
	)

	_, err := c.Call(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, 1, storage.Len(), "the cached Entry must survive a Postprocessor failure")
}

func TestCache_EvictionReleasesOldestKeyPastCapacity(t *testing.T) {
	storage := NewMemoryStorage[string]()
	c := Wrap[string](func(ctx context.Context, args ...any) (string, error) {
		return fmt.Sprintf("%v", args[0]), nil
	},
		WithStorage[string](storage),
		WithKeyExtractor[string](NewNameKeyExtractor("k")),
		WithEvictionPolicy[string](NewLRUEvictionPolicy[string](2)),
	)

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Call(context.Background(), k)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		return storage.Len() == 2
	}, time.Second, 5*time.Millisecond, "eviction must bound storage at capacity")
}

func TestCache_StaleWhileRevalidate_BackgroundFailureLeavesStaleEntryIntact(t *testing.T) {
	var calls int32
	clock := &manualClock{t: time.Now()}
	done := make(chan struct{})
	boom := errors.New("upstream down")
	producer := func(ctx context.Context, args ...any) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "v1", nil
		}
		if n == 2 {
			defer close(done)
		}
		return "", boom
	}

	storage := NewMemoryStorage[string]()
	c := Wrap[string](producer,
		WithClock[string](clock.now),
		WithStorage[string](storage),
		WithEntryBuilder[string](&ConstantLifespanBuilder[string]{UpdateAfter: time.Minute, ExpiresAfter: time.Hour}),
	)

	v, err := c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	clock.advance(2 * time.Minute)
	v, err = c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background refresh never ran")
	}

	entry, ok, err := storage.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", entry.Value, "a failed background refresh must not overwrite or remove the stale Entry")

	v, err = c.Call(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", v, "the stale value remains servable after a failed background refresh")
}

// manualClock is a controllable time source for deterministic freshness
// tests, grounded on the teacher's lru.Cache.now injection point.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
