package serialize

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/p-blackswan/flightcache"
)

// Gzip composes a base Adapter with gzip compression applied to its output
// (spec §6: "an encoding wrapper composes a base adapter with a codec...
// applied to its output").
type Gzip[V any] struct {
	Base  Adapter[V]
	Level int
}

// NewGzip wraps base with gzip compression at the given level (use
// gzip.DefaultCompression for the library default).
func NewGzip[V any](base Adapter[V], level int) Gzip[V] {
	return Gzip[V]{Base: base, Level: level}
}

func (g Gzip[V]) Marshal(entry flightcache.Entry[V]) ([]byte, error) {
	raw, err := g.Base.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return nil, fmt.Errorf("serialize: gzip writer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, fmt.Errorf("serialize: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("serialize: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (g Gzip[V]) Unmarshal(data []byte) (flightcache.Entry[V], error) {
	var zero flightcache.Entry[V]
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return zero, fmt.Errorf("serialize: gzip reader: %w", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return zero, fmt.Errorf("serialize: gzip read: %w", err)
	}
	return g.Base.Unmarshal(raw)
}
