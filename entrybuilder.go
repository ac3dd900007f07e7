package flightcache

import "time"

// EntryBuilder constructs an Entry from a freshly produced value, stamping
// its deadlines (spec §4.1). Implementations must be pure with respect to
// the cache: Build must not read or write Storage.
type EntryBuilder[V any] interface {
	Build(key string, value V, now time.Time) Entry[V]
}

// ConstantLifespanBuilder is the default EntryBuilder: every Entry gets the
// same update/expiry offsets from its creation time, regardless of value.
type ConstantLifespanBuilder[V any] struct {
	// UpdateAfter is how long after creation the entry becomes update-due.
	UpdateAfter time.Duration
	// ExpiresAfter is how long after creation the entry expires.
	ExpiresAfter time.Duration
}

// NewConstantLifespanBuilder returns a ConstantLifespanBuilder with the
// spec's defaults: update after 10 minutes, expire after 30 minutes.
func NewConstantLifespanBuilder[V any]() *ConstantLifespanBuilder[V] {
	return &ConstantLifespanBuilder[V]{
		UpdateAfter:  10 * time.Minute,
		ExpiresAfter: 30 * time.Minute,
	}
}

func (b *ConstantLifespanBuilder[V]) Build(_ string, value V, now time.Time) Entry[V] {
	updateAfter := b.UpdateAfter
	expiresAfter := b.ExpiresAfter
	if expiresAfter < updateAfter {
		expiresAfter = updateAfter
	}
	return Entry[V]{
		Value:        value,
		Created:      now,
		UpdateAfter:  now.Add(updateAfter),
		ExpiresAfter: now.Add(expiresAfter),
	}
}

// ValueDeadlines is implemented by a value type that carries its own
// lifespan, for use with ValueDrivenBuilder.
type ValueDeadlines interface {
	// CacheLifespan returns (update-after, expires-after) durations
	// relative to the moment the value was produced.
	CacheLifespan() (updateAfter, expiresAfter time.Duration)
}

// ValueDrivenBuilder inspects the produced value for its own TTL instead
// of using fixed offsets (spec §4.1: "a value-driven variant may inspect
// the value"). A value whose CacheLifespan reports no positive duration
// (both <= 0) is built with Fallback.
type ValueDrivenBuilder[V ValueDeadlines] struct {
	Fallback *ConstantLifespanBuilder[V]
}

// NewValueDrivenBuilder returns a ValueDrivenBuilder with spec-default
// fallback offsets.
func NewValueDrivenBuilder[V ValueDeadlines]() *ValueDrivenBuilder[V] {
	return &ValueDrivenBuilder[V]{Fallback: NewConstantLifespanBuilder[V]()}
}

func (b *ValueDrivenBuilder[V]) Build(key string, value V, now time.Time) Entry[V] {
	updateAfter, expiresAfter := value.CacheLifespan()
	if updateAfter <= 0 && expiresAfter <= 0 {
		return b.Fallback.Build(key, value, now)
	}
	if expiresAfter < updateAfter {
		expiresAfter = updateAfter
	}
	return Entry[V]{
		Value:        value,
		Created:      now,
		UpdateAfter:  now.Add(updateAfter),
		ExpiresAfter: now.Add(expiresAfter),
	}
}
