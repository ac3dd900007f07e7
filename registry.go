package flightcache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultUpdateLockTimeout is the spec's default stuck-slot timeout
// (spec §4.5, §6): 5 minutes.
const DefaultUpdateLockTimeout = 5 * time.Minute

// updateOutcome is what a slot resolves with: an Entry on success, an
// error on abort, or neither (the null sentinel) on stuck-slot timeout.
type updateOutcome[V any] struct {
	entry Entry[V]
	err   error
	// null is the stuck-update timeout sentinel (spec §3: UpdateSlot
	// "resolved... by the stuck-update timeout (with a sentinel null
	// outcome)").
	null bool
}

// slot is the per-key in-flight record (spec §3's UpdateSlot).
type slot[V any] struct {
	done    chan struct{}
	outcome updateOutcome[V]
	timer   *time.Timer
}

// UpdateRegistry is the per-key single-flight coordinator: it tracks at
// most one in-flight producer invocation per key and fans its outcome out
// to every awaiter (spec §4.5). Grounded on the teacher's
// internal/mgmt/task_engine.go TaskEngine, which holds one mutex-guarded
// record per in-flight unit of work and resolves it exactly once; here
// the record is a channel-based promise instead of a task struct so
// multiple goroutines can block on the same resolution.
type UpdateRegistry[V any] struct {
	mu          sync.Mutex
	slots       map[string]*slot[V]
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// NewUpdateRegistry returns a registry with the given stuck-slot timeout.
// A zero timeout uses DefaultUpdateLockTimeout.
func NewUpdateRegistry[V any](lockTimeout time.Duration, logger zerolog.Logger) *UpdateRegistry[V] {
	if lockTimeout <= 0 {
		lockTimeout = DefaultUpdateLockTimeout
	}
	return &UpdateRegistry[V]{
		slots:       make(map[string]*slot[V]),
		lockTimeout: lockTimeout,
		logger:      logger.With().Str("component", "update_registry").Logger(),
	}
}

// IsBeingUpdated reports whether key currently has an in-flight producer.
// Valid only until the next suspension point (spec §4.5).
func (r *UpdateRegistry[V]) IsBeingUpdated(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[key]
	return ok
}

// MarkBeingUpdated installs a fresh slot for key. Panics if one already
// exists — the Orchestrator must never call this without having first
// observed ¬IsBeingUpdated (spec §4.5, §7 kind 6). Exposed for direct
// testing of the registry's documented contract; the Orchestrator itself
// uses the race-free acquire, which folds the is-being-updated check and
// the slot creation into one critical section.
func (r *UpdateRegistry[V]) MarkBeingUpdated(key string) {
	if _, alreadyInFlight := r.acquire(key); alreadyInFlight {
		programmerError("MarkBeingUpdated: key %q is already being updated", key)
	}
}

// MarkUpdated resolves key's slot with a successful Entry. Panics if no
// slot exists for key.
func (r *UpdateRegistry[V]) MarkUpdated(key string, entry Entry[V]) {
	r.resolveCurrent(key, updateOutcome[V]{entry: entry})
}

// MarkUpdateAborted resolves key's slot with an error. Cancellation is a
// valid error here. Panics if no slot exists for key.
func (r *UpdateRegistry[V]) MarkUpdateAborted(key string, err error) {
	r.resolveCurrent(key, updateOutcome[V]{err: err})
}

// AwaitUpdated blocks until key's current slot resolves. Multiple
// awaiters of the same slot all observe the same outcome (spec §4.5, §8
// "same-outcome fan-out"). Returns (entry, nil) on success, or a non-nil
// error; the stuck-slot sentinel and a missing slot both surface as
// ErrConcurrentRefreshFailed.
func (r *UpdateRegistry[V]) AwaitUpdated(key string) (Entry[V], error) {
	r.mu.Lock()
	s, ok := r.slots[key]
	r.mu.Unlock()
	if !ok {
		var zero Entry[V]
		return zero, ErrConcurrentRefreshFailed
	}
	return r.await(s)
}

// acquire atomically checks is-being-updated and, if not, installs and
// arms a fresh slot — closing the TOCTOU window that a separate
// IsBeingUpdated-then-MarkBeingUpdated pair would leave open between two
// concurrent callers of the same key. Returns the slot (existing or new)
// and whether it was already in flight.
func (r *UpdateRegistry[V]) acquire(key string) (*slot[V], bool) {
	r.mu.Lock()
	if s, ok := r.slots[key]; ok {
		r.mu.Unlock()
		return s, true
	}
	s := &slot[V]{done: make(chan struct{})}
	r.slots[key] = s
	r.mu.Unlock()

	s.timer = time.AfterFunc(r.lockTimeout, func() {
		r.resolve(key, s, updateOutcome[V]{null: true})
		r.logger.Warn().Str("key", key).Dur("timeout", r.lockTimeout).
			Msg("update slot timed out without resolution")
	})
	return s, false
}

// await blocks on a slot captured by acquire/AwaitUpdated. Capturing the
// pointer before releasing the registry mutex means a concurrent resolve
// racing the lookup can never be missed: resolve only ever deletes the
// map entry and closes done on the same slot value, so the channel close
// is the single source of truth regardless of map state.
func (r *UpdateRegistry[V]) await(s *slot[V]) (Entry[V], error) {
	<-s.done
	return s.result()
}

// result reads the outcome of a slot whose done channel is already closed.
// Safe to call any number of times from any number of goroutines: once
// resolve has closed done, outcome is never written again.
func (s *slot[V]) result() (Entry[V], error) {
	var zero Entry[V]
	if s.outcome.null {
		return zero, ErrConcurrentRefreshFailed
	}
	if s.outcome.err != nil {
		return zero, s.outcome.err
	}
	return s.outcome.entry, nil
}

func (r *UpdateRegistry[V]) resolveCurrent(key string, outcome updateOutcome[V]) {
	r.mu.Lock()
	s, ok := r.slots[key]
	r.mu.Unlock()

	if !ok {
		programmerError("resolve: no update slot for key %q", key)
	}
	r.resolve(key, s, outcome)
}

// resolve is idempotent with respect to double-firing of the timer vs. an
// explicit Mark* call: whichever happens first wins, because the slot is
// removed from the map under the registry mutex before either path
// touches the timer or the done channel, so only one of them observes
// itself as still owning the slot.
func (r *UpdateRegistry[V]) resolve(key string, s *slot[V], outcome updateOutcome[V]) {
	r.mu.Lock()
	cur, ok := r.slots[key]
	if !ok || cur != s {
		r.mu.Unlock()
		return
	}
	delete(r.slots, key)
	r.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.outcome = outcome
	close(s.done)
}
