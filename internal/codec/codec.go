// Package codec provides the compression codec abstraction Data objects use
// for their payload (§6.4).
//
// Exactly one of {xz, lz4, zstd} may be active per file, recorded in the
// file's incompatible flags and encoded in the low 3 bits of a Data object's
// flag byte (format.CompressionCodec). Codec id 0 means the payload is
// stored uncompressed.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
)

// Codec compresses and decompresses Data object payloads.
//
// Compress's output is self-describing: it is prefixed with the 8-byte
// little-endian length of the original (uncompressed) payload, so Decompress
// never needs an external size hint even though the abstract interface in
// §6.4 allows the caller to pass one — this module folds that hint into the
// compressed bytes themselves, the way the reference format prefixes its LZ4
// frames with the decompressed size.
type Codec interface {
	// Compress returns codec-framed bytes for data.
	Compress(data []byte) ([]byte, error)
	// Decompress reverses Compress, returning the original payload.
	Decompress(framed []byte) ([]byte, error)
}

// sizePrefixLen is the width of the uncompressed-length prefix every
// compressed payload carries.
const sizePrefixLen = 8

func putSizePrefix(dst []byte, n int) {
	binary.LittleEndian.PutUint64(dst, uint64(n)) //nolint:gosec
}

func readSizePrefix(framed []byte) (int, []byte, error) {
	if len(framed) < sizePrefixLen {
		return 0, nil, fmt.Errorf("%w: compressed payload shorter than size prefix", errs.ErrBadMessage)
	}
	n := binary.LittleEndian.Uint64(framed[:sizePrefixLen])
	return int(n), framed[sizePrefixLen:], nil
}

// Get returns the Codec implementation for id, or ErrProtocolNotSupported if
// id is not one of the codecs this build knows how to decode.
func Get(id format.CompressionCodec) (Codec, error) {
	switch id {
	case format.CompressionCodecNone:
		return noopCodec{}, nil
	case format.CompressionCodecXZ:
		return xzCodec{}, nil
	case format.CompressionCodecLZ4:
		return lz4Codec{}, nil
	case format.CompressionCodecZstd:
		return zstdCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression codec id %d", errs.ErrProtocolNotSupported, id)
	}
}
