package flightcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstantLifespanBuilder_Defaults(t *testing.T) {
	b := NewConstantLifespanBuilder[string]()
	assert.Equal(t, 10*time.Minute, b.UpdateAfter)
	assert.Equal(t, 30*time.Minute, b.ExpiresAfter)
}

func TestConstantLifespanBuilder_Build(t *testing.T) {
	b := &ConstantLifespanBuilder[string]{UpdateAfter: time.Minute, ExpiresAfter: 2 * time.Minute}
	now := time.Now()
	e := b.Build("k", "v", now)
	assert.Equal(t, "v", e.Value)
	assert.Equal(t, now, e.Created)
	assert.Equal(t, now.Add(time.Minute), e.UpdateAfter)
	assert.Equal(t, now.Add(2*time.Minute), e.ExpiresAfter)
}

func TestConstantLifespanBuilder_ExpiresBeforeUpdateIsClamped(t *testing.T) {
	b := &ConstantLifespanBuilder[string]{UpdateAfter: 2 * time.Minute, ExpiresAfter: time.Minute}
	now := time.Now()
	e := b.Build("k", "v", now)
	assert.True(t, !e.ExpiresAfter.Before(e.UpdateAfter))
}

type boundedValue struct {
	updateAfter, expiresAfter time.Duration
}

func (v boundedValue) CacheLifespan() (time.Duration, time.Duration) {
	return v.updateAfter, v.expiresAfter
}

func TestValueDrivenBuilder_UsesValueDeadlines(t *testing.T) {
	b := NewValueDrivenBuilder[boundedValue]()
	now := time.Now()
	v := boundedValue{updateAfter: 5 * time.Minute, expiresAfter: 15 * time.Minute}
	e := b.Build("k", v, now)
	assert.Equal(t, now.Add(5*time.Minute), e.UpdateAfter)
	assert.Equal(t, now.Add(15*time.Minute), e.ExpiresAfter)
}

func TestValueDrivenBuilder_FallsBackWhenZero(t *testing.T) {
	b := NewValueDrivenBuilder[boundedValue]()
	now := time.Now()
	v := boundedValue{}
	e := b.Build("k", v, now)
	assert.Equal(t, now.Add(b.Fallback.UpdateAfter), e.UpdateAfter)
	assert.Equal(t, now.Add(b.Fallback.ExpiresAfter), e.ExpiresAfter)
}
