package syncqueue

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Queue payloads are compressed at rest. Small payloads are stored as-is;
// the zstd magic number distinguishes the two forms on the way out.

const compressMinSize = 256

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) compress(data []byte) []byte {
	if len(data) < compressMinSize {
		return data
	}
	return c.enc.EncodeAll(data, nil)
}

func (c *codec) decompress(data []byte) ([]byte, error) {
	if len(data) > 4 && bytes.Equal(data[:4], zstdMagic) {
		return c.dec.DecodeAll(data, nil)
	}
	// Stored uncompressed
	return data, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
