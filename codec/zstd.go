package codec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd compresses the output of an inner codec.
// EncodeAll/DecodeAll are safe for concurrent use, so one Zstd may be shared.
type Zstd[V any] struct {
	inner Codec[V]
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewZstd wraps inner with zstd compression at the given level.
// Call Close when the codec is no longer used.
func NewZstd[V any](inner Codec[V], level zstd.EncoderLevel) (*Zstd[V], error) {
	if inner == nil {
		return nil, errors.New("codec: zstd needs an inner codec")
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(level),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("codec: zstd decoder: %w", err)
	}
	return &Zstd[V]{inner: inner, enc: enc, dec: dec}, nil
}

// Encode implements Codec.
func (z *Zstd[V]) Encode(v V) ([]byte, error) {
	b, err := z.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(b, nil), nil
}

// Decode implements Codec.
func (z *Zstd[V]) Decode(data []byte) (V, error) {
	b, err := z.dec.DecodeAll(data, nil)
	if err != nil {
		var zero V
		return zero, fmt.Errorf("codec: zstd decode: %w", err)
	}
	return z.inner.Decode(b)
}

// Close releases the encoder and decoder.
func (z *Zstd[V]) Close() error {
	z.dec.Close()
	return z.enc.Close()
}

var _ Codec[string] = (*Zstd[string])(nil)
