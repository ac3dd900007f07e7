package flightcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Producer is the user-supplied operation being memoized. It must be
// idempotent for a given set of args: the cache may invoke it any number
// of times, but at most once concurrently per key (spec §1, §4.5).
type Producer[V any] func(ctx context.Context, args ...any) (V, error)

// DefaultProducerTimeout bounds a single producer invocation when the
// caller does not configure one explicitly.
const DefaultProducerTimeout = 30 * time.Second

// config is the immutable snapshot captured at the start of each call
// (spec §3 "Configuration snapshot"): mid-call reconfiguration never
// affects a call already in flight, because every call reads cfg once,
// atomically, via Cache.snapshot.
type config[V any] struct {
	configured        bool
	producerTimeout   time.Duration
	entryBuilder      EntryBuilder[V]
	keyExtractor      KeyExtractor
	storage           Storage[V]
	eviction          EvictionPolicy[V]
	postprocessor     Postprocessor[V]
	updateLockTimeout time.Duration
	metrics           MetricsHook
	logger            zerolog.Logger
	now               func() time.Time
}

// Option configures a Cache at Wrap time.
type Option[V any] func(*config[V])

// WithConfigured sets whether the cache is enabled at all. If false, every
// call fails fast with ErrNotConfigured (spec §6).
func WithConfigured[V any](configured bool) Option[V] {
	return func(c *config[V]) { c.configured = configured }
}

// WithProducerTimeout bounds a single producer invocation.
func WithProducerTimeout[V any](d time.Duration) Option[V] {
	return func(c *config[V]) { c.producerTimeout = d }
}

// WithEntryBuilder supplies the EntryBuilder used to stamp freshly
// produced values.
func WithEntryBuilder[V any](b EntryBuilder[V]) Option[V] {
	return func(c *config[V]) { c.entryBuilder = b }
}

// WithKeyExtractor supplies the KeyExtractor used to derive cache keys.
func WithKeyExtractor[V any](k KeyExtractor) Option[V] {
	return func(c *config[V]) { c.keyExtractor = k }
}

// WithStorage supplies the Storage backend.
func WithStorage[V any](s Storage[V]) Option[V] {
	return func(c *config[V]) { c.storage = s }
}

// WithEvictionPolicy supplies the EvictionPolicy.
func WithEvictionPolicy[V any](p EvictionPolicy[V]) Option[V] {
	return func(c *config[V]) { c.eviction = p }
}

// WithPostprocessor supplies a Postprocessor applied to every returned
// value.
func WithPostprocessor[V any](p Postprocessor[V]) Option[V] {
	return func(c *config[V]) { c.postprocessor = p }
}

// WithUpdateLockTimeout sets the UpdateRegistry's stuck-slot timeout.
func WithUpdateLockTimeout[V any](d time.Duration) Option[V] {
	return func(c *config[V]) { c.updateLockTimeout = d }
}

// WithMetricsHook supplies a hookable metrics sink (spec §1 Non-goals:
// "metrics emission — hookable but not specified").
func WithMetricsHook[V any](m MetricsHook) Option[V] {
	return func(c *config[V]) { c.metrics = m }
}

// WithLogger supplies the zerolog.Logger used for internal diagnostics.
func WithLogger[V any](l zerolog.Logger) Option[V] {
	return func(c *config[V]) { c.logger = l }
}

// WithClock overrides the time source used for freshness classification
// and Entry stamping. Grounded on the teacher's lru.Cache.now field;
// intended for tests that need deterministic freshness transitions
// without real sleeps (spec §13).
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *config[V]) { c.now = now }
}

// Cache is the refresh orchestrator: the central state machine described
// in spec §4.6. It is safe for concurrent use.
type Cache[V any] struct {
	producer Producer[V]
	cfg      config[V]
	registry *UpdateRegistry[V]
}

// Wrap returns a Cache wrapping producer, configured by opts. The
// returned Cache has the same calling contract as producer plus caching,
// single-flight, and stale-while-revalidate behavior.
func Wrap[V any](producer Producer[V], opts ...Option[V]) *Cache[V] {
	cfg := config[V]{
		configured:        true,
		producerTimeout:   DefaultProducerTimeout,
		entryBuilder:      NewConstantLifespanBuilder[V](),
		keyExtractor:      NewIdentityKeyExtractor(),
		storage:           NewMemoryStorage[V](),
		eviction:          NewLRUEvictionPolicy[V](DefaultEvictionCapacity),
		postprocessor:     identityPostprocessor[V]{},
		updateLockTimeout: DefaultUpdateLockTimeout,
		metrics:           NoOpMetricsHook{},
		logger:            zerolog.Nop(),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Cache[V]{
		producer: producer,
		cfg:      cfg,
		registry: NewUpdateRegistry[V](cfg.updateLockTimeout, cfg.logger),
	}
}

// snapshot returns the immutable configuration view for one call (spec
// §3). Options are only ever applied at Wrap time in this implementation,
// so the snapshot is simply cfg's current value; it is still taken once
// per call (copied by value) so a caller cannot observe a torn read if a
// future version grows mutable reconfiguration.
func (c *Cache[V]) snapshot() config[V] {
	return c.cfg
}

// Call returns the cached value for args, producing it if necessary
// (spec §4.6, cases A/C/D).
func (c *Cache[V]) Call(ctx context.Context, args ...any) (V, error) {
	return c.call(ctx, args, false)
}

// ForceRefresh requests a blocking refresh even if the current Entry is
// fresh (spec §4.6 case B, §6 "force_refresh"). The pre-refresh Entry, if
// any, is still passed into the single-flight path: when a refresh for the
// key is already in flight, its value is returned without waiting for that
// refresh.
func (c *Cache[V]) ForceRefresh(ctx context.Context, args ...any) (V, error) {
	return c.call(ctx, args, true)
}

func (c *Cache[V]) call(ctx context.Context, args []any, forceRefresh bool) (V, error) {
	var zero V
	cfg := c.snapshot()

	if !cfg.configured {
		return zero, ErrNotConfigured
	}

	key := cfg.keyExtractor.FormatKey(args...)
	now := cfg.now()

	current, ok, err := cfg.storage.Get(ctx, key)
	if err != nil {
		return zero, newCallError(key, err)
	}
	if ok {
		cfg.eviction.MarkRead(key)
	}

	var value V
	switch {
	case !ok:
		value, err = c.blockingRefresh(ctx, cfg, Entry[V]{}, key, args, false)
	case forceRefresh:
		value, err = c.blockingRefresh(ctx, cfg, current, key, args, true)
	default:
		switch current.classify(now) {
		case expired:
			// Treated as absent, not as a "blocking refresh over an
			// existing entry" (that's force_refresh's case B): a second
			// caller racing an in-flight refresh here must await the
			// real outcome rather than being handed the stale, already
			// expired entry (spec §8 "Expiry blocking";
			// _examples/original_source/memoize/wrapper.py passes None,
			// not current_entry, into refresh() for this branch).
			value, err = c.blockingRefresh(ctx, cfg, Entry[V]{}, key, args, false)
		case updateDue:
			cfg.metrics.OnStale(key)
			go c.backgroundRefresh(cfg, current, key, args)
			value, err = current.Value, nil
		default: // fresh
			cfg.metrics.OnHit(key)
			value, err = current.Value, nil
		}
	}
	if err != nil {
		return zero, err
	}

	out, err := cfg.postprocessor.Postprocess(value)
	if err != nil {
		return zero, newCallError(key, err)
	}
	return out, nil
}

func (c *Cache[V]) blockingRefresh(ctx context.Context, cfg config[V], current Entry[V], key string, args []any, hasCurrent bool) (V, error) {
	var zero V
	entry, err := c.refresh(ctx, cfg, current, key, args, hasCurrent)
	if err != nil {
		return zero, err
	}
	return entry.Value, nil
}

// backgroundRefresh runs refresh fire-and-forget for the
// stale-while-revalidate path (spec §4.6 case C). Failures are logged,
// not propagated: the caller that triggered it already returned the
// stale value.
func (c *Cache[V]) backgroundRefresh(cfg config[V], current Entry[V], key string, args []any) {
	ctx := context.Background()
	if _, err := c.refresh(ctx, cfg, current, key, args, true); err != nil {
		cfg.logger.Warn().Err(err).Str("key", key).Msg("background refresh failed")
	}
}

// refresh implements the single-flight body of spec §4.6. The is-being-
// updated check and slot creation happen as one atomic registry.acquire
// call so that two callers racing on the same key can never both become
// the driver (spec §8 "single-flight": at most one in-flight producer per
// key at any time).
func (c *Cache[V]) refresh(ctx context.Context, cfg config[V], current Entry[V], key string, args []any, hasCurrent bool) (Entry[V], error) {
	s, inflight := c.registry.acquire(key)

	switch {
	case !hasCurrent && inflight:
		return c.awaitWithContext(ctx, key, s)

	case hasCurrent && inflight:
		// The background refresher already running will populate
		// storage; do not await it (spec §4.6).
		return current, nil

	default: // ¬inflight: this call just became the sole driver.
		// The producer runs detached from ctx, on its own timeout, so
		// that cancelling the caller's wait never stops (or fails) an
		// in-flight producer invocation (spec §5 "Cancellation": "the
		// producer task may still run to completion... desirable:
		// cached for the next caller"; Open Question iii resolved in
		// favor of this, see DESIGN.md). The driving call still honors
		// its own ctx while waiting for that producer to finish.
		go c.runProducer(cfg, key, args, s)
		return c.awaitWithContext(ctx, key, s)
	}
}

// awaitWithContext waits for slot s to resolve, but returns early with
// ctx's error if ctx is cancelled first. The producer keeps running
// either way; a later caller (or this one, if it retries) will observe
// its outcome once s resolves.
func (c *Cache[V]) awaitWithContext(ctx context.Context, key string, s *slot[V]) (Entry[V], error) {
	var zero Entry[V]
	select {
	case <-s.done:
		entry, err := s.result()
		if err != nil {
			return zero, newCallError(key, err)
		}
		return entry, nil
	case <-ctx.Done():
		return zero, newCallError(key, ctx.Err())
	}
}

// runProducer is the detached body that actually invokes the producer and
// resolves slot s (spec §4.6 "refresh" steps 1–5). It never observes the
// caller's context: only the configured producer timeout bounds it.
func (c *Cache[V]) runProducer(cfg config[V], key string, args []any, s *slot[V]) {
	producerCtx, cancel := context.WithTimeout(context.Background(), cfg.producerTimeout)
	defer cancel()

	type result struct {
		value V
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		v, err := c.producer(producerCtx, args...)
		resCh <- result{value: v, err: err}
	}()

	select {
	case <-producerCtx.Done():
		c.registry.MarkUpdateAborted(key, ErrProducerTimeout)
		cfg.metrics.OnTimeout(key)

	case res := <-resCh:
		if res.err != nil {
			c.registry.MarkUpdateAborted(key, joinRefreshFailed(res.err))
			cfg.metrics.OnRefreshError(key, res.err)
			return
		}

		now := cfg.now()
		entry := cfg.entryBuilder.Build(key, res.value, now)
		storeCtx, storeCancel := context.WithTimeout(context.Background(), cfg.producerTimeout)
		defer storeCancel()
		if err := cfg.storage.Offer(storeCtx, key, entry); err != nil {
			c.registry.MarkUpdateAborted(key, joinRefreshFailed(err))
			return
		}
		c.registry.MarkUpdated(key, entry)
		cfg.eviction.MarkWritten(key, entry)
		cfg.metrics.OnRefresh(key)

		if victim, ok := cfg.eviction.NextToRelease(); ok {
			go c.tryRelease(cfg, victim)
		}
	}
}

// tryRelease is the background release task of spec §4.6. It never
// propagates failure to the orchestrator; Storage errors are logged and
// swallowed (spec §7 kind 5).
func (c *Cache[V]) tryRelease(cfg config[V], key string) {
	if c.registry.IsBeingUpdated(key) {
		return
	}
	ctx := context.Background()
	if err := cfg.storage.Release(ctx, key); err != nil {
		cfg.logger.Warn().Err(err).Str("key", key).Msg("eviction release failed")
		return
	}
	cfg.eviction.MarkReleased(key)
	cfg.metrics.OnEviction(key)
}

func joinRefreshFailed(cause error) error {
	return &wrappedRefreshFailure{cause: cause}
}

// wrappedRefreshFailure unwraps to ErrRefreshFailed for errors.Is checks
// while retaining the original producer error via a second Unwrap target.
type wrappedRefreshFailure struct{ cause error }

func (w *wrappedRefreshFailure) Error() string {
	return ErrRefreshFailed.Error() + ": " + w.cause.Error()
}

func (w *wrappedRefreshFailure) Unwrap() []error {
	return []error{ErrRefreshFailed, w.cause}
}
