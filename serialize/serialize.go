// Package serialize provides Entry<->bytes adapters for non-local Storage
// back-ends (spec §6 "Serialization").
package serialize

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"time"

	"github.com/p-blackswan/flightcache"
)

// Adapter converts an Entry to and from bytes for an external Storage
// back-end.
type Adapter[V any] interface {
	Marshal(entry flightcache.Entry[V]) ([]byte, error)
	Unmarshal(data []byte) (flightcache.Entry[V], error)
}

// Binary is a gob-based Adapter. V must be gob-encodable (exported fields,
// no channels/funcs).
type Binary[V any] struct{}

// NewBinary returns a gob-based Adapter.
func NewBinary[V any]() Binary[V] { return Binary[V]{} }

func (Binary[V]) Marshal(entry flightcache.Entry[V]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return nil, fmt.Errorf("serialize: binary marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (Binary[V]) Unmarshal(data []byte) (flightcache.Entry[V], error) {
	var entry flightcache.Entry[V]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return entry, fmt.Errorf("serialize: binary unmarshal: %w", err)
	}
	return entry, nil
}

// ValueCodec converts a value to and from its JSON-reversible
// representation, for types that do not marshal cleanly through
// encoding/json on their own (spec §6: "caller-supplied reversible-
// representation hooks for the value").
type ValueCodec[V any] interface {
	ToJSON(value V) (any, error)
	FromJSON(repr any) (V, error)
}

// IdentityValueCodec passes the value straight through to encoding/json,
// for value types that already marshal correctly on their own.
type IdentityValueCodec[V any] struct{}

func (IdentityValueCodec[V]) ToJSON(value V) (any, error) { return value, nil }

func (IdentityValueCodec[V]) FromJSON(repr any) (V, error) {
	var value V
	b, err := json.Marshal(repr)
	if err != nil {
		return value, err
	}
	err = json.Unmarshal(b, &value)
	return value, err
}

type jsonEntry struct {
	Value        json.RawMessage `json:"value"`
	Created      int64           `json:"created"`
	UpdateAfter  int64           `json:"update_after"`
	ExpiresAfter int64           `json:"expires_after"`
}

// JSON is a JSON-based Adapter. It encodes the three Entry timestamps as
// Unix seconds and delegates the value itself to a ValueCodec (spec §6).
type JSON[V any] struct {
	Codec ValueCodec[V]
}

// NewJSON returns a JSON Adapter using codec for the value representation.
func NewJSON[V any](codec ValueCodec[V]) JSON[V] {
	return JSON[V]{Codec: codec}
}

func (a JSON[V]) Marshal(entry flightcache.Entry[V]) ([]byte, error) {
	repr, err := a.Codec.ToJSON(entry.Value)
	if err != nil {
		return nil, fmt.Errorf("serialize: json value encode: %w", err)
	}
	raw, err := json.Marshal(repr)
	if err != nil {
		return nil, fmt.Errorf("serialize: json value encode: %w", err)
	}
	je := jsonEntry{
		Value:        raw,
		Created:      entry.Created.Unix(),
		UpdateAfter:  entry.UpdateAfter.Unix(),
		ExpiresAfter: entry.ExpiresAfter.Unix(),
	}
	data, err := json.Marshal(je)
	if err != nil {
		return nil, fmt.Errorf("serialize: json marshal: %w", err)
	}
	return data, nil
}

func (a JSON[V]) Unmarshal(data []byte) (flightcache.Entry[V], error) {
	var zero flightcache.Entry[V]
	var je jsonEntry
	if err := json.Unmarshal(data, &je); err != nil {
		return zero, fmt.Errorf("serialize: json unmarshal: %w", err)
	}
	var repr any
	if err := json.Unmarshal(je.Value, &repr); err != nil {
		return zero, fmt.Errorf("serialize: json value decode: %w", err)
	}
	value, err := a.Codec.FromJSON(repr)
	if err != nil {
		return zero, fmt.Errorf("serialize: json value decode: %w", err)
	}
	return flightcache.Entry[V]{
		Value:        value,
		Created:      time.Unix(je.Created, 0).UTC(),
		UpdateAfter:  time.Unix(je.UpdateAfter, 0).UTC(),
		ExpiresAfter: time.Unix(je.ExpiresAfter, 0).UTC(),
	}, nil
}
