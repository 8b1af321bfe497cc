package codec

import (
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// lz4CompressorPool pools lz4.Compressor instances: the compressor maintains
// internal state (a hash table over the source window) that is wasteful to
// reallocate on every call.
var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

// lz4Codec implements Codec for format.CompressionCodecLZ4 using raw LZ4
// block compression, framed with our own uncompressed-size prefix (LZ4 block
// mode, unlike the frame format, does not self-describe its output size).
type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	out := make([]byte, sizePrefixLen+bound)
	putSizePrefix(out, len(data))

	c, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(c)

	n, err := c.CompressBlock(data, out[sizePrefixLen:])
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 && len(data) > 0 {
		// CompressBlock returns n == 0 when the input is incompressible; fall
		// back to storing the bytes verbatim behind the same framing.
		copy(out[sizePrefixLen:sizePrefixLen+len(data)], data)
		return out[:sizePrefixLen+len(data)], nil
	}

	return out[:sizePrefixLen+n], nil
}

func (lz4Codec) Decompress(framed []byte) ([]byte, error) {
	size, rest, err := readSizePrefix(framed)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}

	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(rest, dst)
	if err != nil {
		// The incompressible-input fallback in Compress stores data verbatim
		// when CompressBlock reports n == 0; recognize that shape here too.
		if len(rest) == size {
			copy(dst, rest)
			return dst, nil
		}
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}

	return dst[:n], nil
}
