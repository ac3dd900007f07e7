package flightcache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// KeyExtractor is a pure function from a producer identity and its call
// arguments to a string cache key (spec §4.2). Two calls whose extractors
// return equal keys are treated as equivalent by every other component.
type KeyExtractor interface {
	FormatKey(args ...any) string
}

// KeyExtractorFunc adapts a function to a KeyExtractor.
type KeyExtractorFunc func(args ...any) string

func (f KeyExtractorFunc) FormatKey(args ...any) string { return f(args...) }

// IdentityKeyExtractor makes keys unique per wrap call by including a
// registration token assigned once, at Wrap time. Per spec §9, this
// replaces object-identity semantics with a stable token so that cache
// behavior is deterministic given a fixed wrap call graph, rather than
// depending on a runtime's object-address reuse; keys still do not
// survive a process restart, since the token is regenerated on every
// call to Wrap.
type IdentityKeyExtractor struct {
	token string
}

// NewIdentityKeyExtractor assigns a fresh registration token, grounded on
// the teacher's request-id allocation pattern
// (platform-agent/internal/requestid): a uuid minted once at construction
// and reused for every key this extractor formats.
func NewIdentityKeyExtractor() *IdentityKeyExtractor {
	return &IdentityKeyExtractor{token: uuid.NewString()}
}

func (e *IdentityKeyExtractor) FormatKey(args ...any) string {
	var b strings.Builder
	b.WriteString(e.token)
	for _, a := range args {
		b.WriteByte(':')
		fmt.Fprintf(&b, "%v", a)
	}
	return b.String()
}

// NameKeyExtractor derives a key from the producer's symbolic name plus
// its arguments, stable across process restarts. Distinct producers that
// share a Name will collide, by design (spec §4.2).
type NameKeyExtractor struct {
	Name string
	// SkipFirstArg strips the first positional argument before formatting,
	// for bound-method-style receivers passed as the first argument.
	SkipFirstArg bool
}

// NewNameKeyExtractor returns a NameKeyExtractor for the given producer
// name.
func NewNameKeyExtractor(name string) *NameKeyExtractor {
	return &NameKeyExtractor{Name: name}
}

func (e *NameKeyExtractor) FormatKey(args ...any) string {
	if e.SkipFirstArg && len(args) > 0 {
		args = args[1:]
	}
	var b strings.Builder
	b.WriteString(e.Name)
	for _, a := range args {
		b.WriteByte(':')
		fmt.Fprintf(&b, "%v", a)
	}
	return b.String()
}
