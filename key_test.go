package flightcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityKeyExtractor_StableAcrossCalls(t *testing.T) {
	ke := NewIdentityKeyExtractor()
	k1 := ke.FormatKey("a", 1)
	k2 := ke.FormatKey("a", 1)
	assert.Equal(t, k1, k2)
}

func TestIdentityKeyExtractor_DistinctPerWrap(t *testing.T) {
	a := NewIdentityKeyExtractor()
	b := NewIdentityKeyExtractor()
	assert.NotEqual(t, a.FormatKey("x"), b.FormatKey("x"))
}

func TestIdentityKeyExtractor_DifferentArgsDifferentKeys(t *testing.T) {
	ke := NewIdentityKeyExtractor()
	assert.NotEqual(t, ke.FormatKey("a"), ke.FormatKey("b"))
}

func TestNameKeyExtractor_SameNameSameArgsCollide(t *testing.T) {
	a := NewNameKeyExtractor("shared")
	b := NewNameKeyExtractor("shared")
	assert.Equal(t, a.FormatKey("x"), b.FormatKey("x"))
}

func TestNameKeyExtractor_SkipFirstArg(t *testing.T) {
	ke := &NameKeyExtractor{Name: "m", SkipFirstArg: true}
	assert.Equal(t, ke.FormatKey("receiver", "x"), ke.FormatKey("other-receiver", "x"))
}

func TestKeyExtractorFunc_AdaptsFunction(t *testing.T) {
	var ke KeyExtractor = KeyExtractorFunc(func(args ...any) string { return "fixed" })
	assert.Equal(t, "fixed", ke.FormatKey(1, 2, 3))
}
