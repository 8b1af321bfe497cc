package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec implements Codec for format.CompressionCodecZstd.
//
// zstd.Encoder/Decoder are documented as safe for concurrent EncodeAll/
// DecodeAll use, so a single package-level pair is shared rather than pooled
// per call like the LZ4 compressor above.
type zstdCodec struct{}

var (
	zstdEncoder  *zstd.Encoder
	zstdDecoder  *zstd.Decoder
	zstdInitOnce sync.Once
	zstdInitErr  error
)

func zstdInit() {
	zstdInitOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			zstdInitErr = err
			return
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			zstdInitErr = err
			return
		}
		zstdEncoder = enc
		zstdDecoder = dec
	})
}

func (zstdCodec) Compress(data []byte) ([]byte, error) {
	zstdInit()
	if zstdInitErr != nil {
		return nil, fmt.Errorf("zstd init: %w", zstdInitErr)
	}

	out := make([]byte, sizePrefixLen, sizePrefixLen+len(data)/2+64)
	putSizePrefix(out, len(data))
	out = zstdEncoder.EncodeAll(data, out)

	return out, nil
}

func (zstdCodec) Decompress(framed []byte) ([]byte, error) {
	zstdInit()
	if zstdInitErr != nil {
		return nil, fmt.Errorf("zstd init: %w", zstdInitErr)
	}

	size, rest, err := readSizePrefix(framed)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, size)
	out, err = zstdDecoder.DecodeAll(rest, out)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}

	return out, nil
}
