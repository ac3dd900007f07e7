package flightcache

import (
	"errors"
	"fmt"
)

// Sentinel errors for the cache's failure modes. Callers should match
// against these with errors.Is, not against CallError's formatted text.
var (
	// ErrNotConfigured is returned when the cache is invoked while its
	// configured option is false.
	ErrNotConfigured = errors.New("flightcache: not configured")

	// ErrInvalidationUnbound is returned by InvalidationSupport when used
	// without having been bound to a Storage and a KeyExtractor.
	ErrInvalidationUnbound = errors.New("flightcache: invalidation support not bound")

	// ErrProducerTimeout indicates a producer invocation did not complete
	// within the configured producer timeout.
	ErrProducerTimeout = errors.New("flightcache: producer timed out")

	// ErrConcurrentRefreshFailed indicates the awaited refresh slot was
	// resolved by the stuck-slot timeout (or was already gone). An awaited
	// refresh that failed surfaces that refresh's own error instead, the
	// same error value every other awaiter of the slot observes.
	ErrConcurrentRefreshFailed = errors.New("flightcache: concurrent refresh failed")

	// ErrRefreshFailed wraps any other producer failure, including
	// cooperative cancellation.
	ErrRefreshFailed = errors.New("flightcache: refresh failed to complete")
)

// CallError is the single user-visible failure kind surfaced from a cached
// call (spec §7: "all user-visible failures present as a single error
// kind... plus a distinct kind for misconfiguration"). It carries the
// cache key for diagnostics and unwraps to one of the sentinels above or,
// for producer failures, to the producer's own error.
type CallError struct {
	Key string
	Err error
}

func (e *CallError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("flightcache: call failed: %v", e.Err)
	}
	return fmt.Sprintf("flightcache: call failed for key %q: %v", e.Key, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

func newCallError(key string, err error) *CallError {
	return &CallError{Key: key, Err: err}
}

// programmerError panics; it marks an invariant violation in the
// orchestrator or UpdateRegistry itself, never a condition a caller can
// trigger through normal use (spec §7, kind 6).
func programmerError(format string, args ...any) {
	panic(fmt.Sprintf("flightcache: programmer error: "+format, args...))
}
