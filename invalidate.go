package flightcache

import "context"

// InvalidationSupport is the auxiliary façade of spec §4.7: bound at
// construction to a Storage and a KeyExtractor (the producer's identity,
// where keys carry one, lives in the KeyExtractor). It does not cancel an
// in-flight producer; a
// refresh already running still completes and offers its result, which a
// subsequent call may observe (spec §4.7).
type InvalidationSupport[V any] struct {
	storage      Storage[V]
	keyExtractor KeyExtractor
	bound        bool
}

// NewInvalidationSupport returns an InvalidationSupport bound to storage
// and keyExtractor. Both must be the same instances passed to Wrap via
// WithStorage/WithKeyExtractor, or invalidation keys will not match the
// cache's own keys.
func NewInvalidationSupport[V any](storage Storage[V], keyExtractor KeyExtractor) *InvalidationSupport[V] {
	return &InvalidationSupport[V]{storage: storage, keyExtractor: keyExtractor, bound: true}
}

// UnboundInvalidationSupport returns an InvalidationSupport that fails
// every call with ErrInvalidationUnbound, matching spec §4.7's "if
// unbound at call time, fails with an explicit misuse error".
func UnboundInvalidationSupport[V any]() *InvalidationSupport[V] {
	return &InvalidationSupport[V]{}
}

// InvalidateForArguments formats args through the bound KeyExtractor and
// releases the corresponding Storage entry. Callers needing strict
// invalidation (no window where a concurrent refresh can repopulate the
// key after release) must serialize their own invalidate-then-call
// sequence; this method makes no such guarantee on its own.
func (s *InvalidationSupport[V]) InvalidateForArguments(ctx context.Context, args ...any) error {
	if !s.bound {
		return ErrInvalidationUnbound
	}
	key := s.keyExtractor.FormatKey(args...)
	return s.storage.Release(ctx, key)
}
