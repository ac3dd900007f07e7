package flightcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUEvictionPolicy_NoVictimUnderCapacity(t *testing.T) {
	p := NewLRUEvictionPolicy[string](3)
	p.MarkWritten("a", Entry[string]{})
	p.MarkWritten("b", Entry[string]{})

	_, ok := p.NextToRelease()
	assert.False(t, ok)
}

func TestLRUEvictionPolicy_NominatesOldestWrite(t *testing.T) {
	p := NewLRUEvictionPolicy[string](2)
	p.MarkWritten("a", Entry[string]{})
	p.MarkWritten("b", Entry[string]{})
	p.MarkWritten("c", Entry[string]{})

	victim, ok := p.NextToRelease()
	assert.True(t, ok)
	assert.Equal(t, "a", victim)
}

func TestLRUEvictionPolicy_MarkReadDoesNotAffectWriteOrder(t *testing.T) {
	p := NewLRUEvictionPolicy[string](2)
	p.MarkWritten("a", Entry[string]{})
	p.MarkWritten("b", Entry[string]{})
	p.MarkRead("a") // reads do not refresh write-order recency
	p.MarkWritten("c", Entry[string]{})

	victim, ok := p.NextToRelease()
	assert.True(t, ok)
	assert.Equal(t, "a", victim)
}

func TestLRUEvictionPolicy_MarkReleasedRemovesFromOrder(t *testing.T) {
	p := NewLRUEvictionPolicy[string](2)
	p.MarkWritten("a", Entry[string]{})
	p.MarkReleased("a")
	p.MarkWritten("b", Entry[string]{})
	p.MarkWritten("c", Entry[string]{})

	_, ok := p.NextToRelease()
	assert.False(t, ok)
}

func TestLRUEvictionPolicy_RewritingKeyMovesItToBack(t *testing.T) {
	p := NewLRUEvictionPolicy[string](2)
	p.MarkWritten("a", Entry[string]{})
	p.MarkWritten("b", Entry[string]{})
	p.MarkWritten("a", Entry[string]{}) // a is now most-recently-written
	p.MarkWritten("c", Entry[string]{})

	victim, ok := p.NextToRelease()
	assert.True(t, ok)
	assert.Equal(t, "b", victim)
}

func TestNewLRUEvictionPolicy_PanicsOnBadCapacity(t *testing.T) {
	assert.Panics(t, func() { NewLRUEvictionPolicy[string](0) })
}

func TestNoOpEvictionPolicy_NeverNominates(t *testing.T) {
	p := NoOpEvictionPolicy[string]{}
	p.MarkWritten("a", Entry[string]{})
	_, ok := p.NextToRelease()
	assert.False(t, ok)
}
