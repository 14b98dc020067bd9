// Package zstdpool provides shared, pooled zstd encoders and decoders for
// container payload compression and dependency-cache blobs.
package zstdpool

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxDecodedSize caps a single decompressed payload (256MB).
const DefaultMaxDecodedSize = 256 << 20

var (
	encoderPool = sync.Pool{
		New: func() any {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
			if err != nil {
				return nil
			}
			return enc
		},
	}
	decoderPool = sync.Pool{
		New: func() any {
			dec, err := zstd.NewReader(nil,
				zstd.WithDecoderConcurrency(1),
				zstd.WithDecoderMaxMemory(DefaultMaxDecodedSize))
			if err != nil {
				return nil
			}
			return dec
		},
	}
)

// Compress returns data as a single zstd frame.
func Compress(data []byte) ([]byte, error) {
	enc, _ := encoderPool.Get().(*zstd.Encoder)
	if enc == nil {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstdpool: new encoder: %w", err)
		}
	}
	defer encoderPool.Put(enc)
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress decodes a zstd frame produced by Compress. The hint, when
// non-zero, pre-sizes the output buffer.
func Decompress(data []byte, hint int) ([]byte, error) {
	dec, _ := decoderPool.Get().(*zstd.Decoder)
	if dec == nil {
		var err error
		dec, err = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(DefaultMaxDecodedSize))
		if err != nil {
			return nil, fmt.Errorf("zstdpool: new decoder: %w", err)
		}
	}
	defer decoderPool.Put(dec)

	if hint < 0 {
		hint = 0
	}
	out, err := dec.DecodeAll(data, make([]byte, 0, hint))
	if err != nil {
		return nil, fmt.Errorf("zstdpool: decompress: %w", err)
	}
	return out, nil
}
