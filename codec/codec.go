// Package codec provides reversible value encodings for the cache.
//
// A Codec turns a value into bytes before it is stored and back on read.
// The cache treats a failed Decode as a miss, so codecs should return
// errors rather than panic on malformed input.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Codec encodes and decodes values of type V.
// Implementations must be safe for concurrent use.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSON encodes values with encoding/json.
type JSON[V any] struct{}

// Encode implements Codec.
func (JSON[V]) Encode(v V) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: json encode: %w", err)
	}
	return b, nil
}

// Decode implements Codec.
func (JSON[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("codec: json decode: %w", err)
	}
	return v, nil
}

// Gob encodes values with encoding/gob. Interface-typed fields must be
// registered with gob.Register by the caller.
type Gob[V any] struct{}

// Encode implements Codec.
func (Gob[V]) Encode(v V) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("codec: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (Gob[V]) Decode(data []byte) (V, error) {
	var v V
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return v, fmt.Errorf("codec: gob decode: %w", err)
	}
	return v, nil
}

var (
	_ Codec[string] = JSON[string]{}
	_ Codec[string] = Gob[string]{}
)
