package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arloliu/jrnl/internal/pool"
	"github.com/ulikunitz/xz"
)

// xzCodec implements Codec for format.CompressionCodecXZ. xz trades
// compression speed for ratio relative to lz4/zstd, which is why the format
// lets a file pick only one codec at a time rather than paying xz's CPU cost
// unconditionally.
//
// Unlike lz4 (block mode, bounded output size known up front) and zstd
// (shared long-lived encoder/decoder), xz only exposes a streaming
// io.Writer/io.Reader, so both directions grow a scratch buffer as they go.
// That buffer is pulled from the pool package rather than a fresh
// bytes.Buffer per call.
type xzCodec struct{}

func (xzCodec) Compress(data []byte) ([]byte, error) {
	bb := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(bb)
	bb.MustWrite(make([]byte, sizePrefixLen))

	w, err := xz.NewWriter(bb)
	if err != nil {
		return nil, fmt.Errorf("xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("xz compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("xz compress: %w", err)
	}

	out := make([]byte, bb.Len())
	copy(out, bb.Bytes())
	putSizePrefix(out, len(data))

	return out, nil
}

func (xzCodec) Decompress(framed []byte) ([]byte, error) {
	size, rest, err := readSizePrefix(framed)
	if err != nil {
		return nil, err
	}

	r, err := xz.NewReader(bytes.NewReader(rest))
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}

	bb := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(bb)
	if bb.Cap() < size {
		bb.Grow(size - bb.Cap())
	}
	if _, err := io.Copy(bb, r); err != nil {
		return nil, fmt.Errorf("xz decompress: %w", err)
	}

	out := make([]byte, bb.Len())
	copy(out, bb.Bytes())

	return out, nil
}
