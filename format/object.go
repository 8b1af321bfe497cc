// Package format defines the on-disk layout constants shared by every object
// in the journal arena: the 16-byte object header, the object type and
// compression-codec enums, the Header's flag words, and the fixed Header
// struct itself (§3 of the design).
//
// Every multibyte integer here is little-endian; every offset is validated
// against binutil.ValidOffset before use.
package format

import (
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/internal/binutil"
)

// ObjectType identifies the kind of object a 16-byte object header prefixes.
type ObjectType uint8

const (
	ObjectUnused ObjectType = iota
	ObjectData
	ObjectField
	ObjectEntry
	ObjectDataHashTable
	ObjectFieldHashTable
	ObjectEntryArray
	ObjectTag
)

func (t ObjectType) String() string {
	switch t {
	case ObjectUnused:
		return "unused"
	case ObjectData:
		return "data"
	case ObjectField:
		return "field"
	case ObjectEntry:
		return "entry"
	case ObjectDataHashTable:
		return "data-hash-table"
	case ObjectFieldHashTable:
		return "field-hash-table"
	case ObjectEntryArray:
		return "entry-array"
	case ObjectTag:
		return "tag"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the known object types.
func (t ObjectType) Valid() bool {
	return t <= ObjectTag
}

// CompressionCodec identifies the compression algorithm applied to a Data
// object's payload. It occupies the low 3 bits of the object's flags byte.
type CompressionCodec uint8

const (
	CompressionCodecNone CompressionCodec = iota
	CompressionCodecXZ
	CompressionCodecLZ4
	CompressionCodecZstd
)

// compressionCodecMask isolates the 3 bits of a Data object's flags byte
// that carry the compression codec id.
const compressionCodecMask = 0x07

// ObjectHeaderSize is the size in bytes of the header prefixing every object.
const ObjectHeaderSize = 16

// ObjectHeader is the 16-byte header shared by every object in the arena:
// an 8-bit type, an 8-bit flags byte (whose low 3 bits carry the compression
// codec for Data objects), 6 reserved bytes, and a 64-bit total size
// (including this header).
type ObjectHeader struct {
	Type  ObjectType
	Flags uint8
	Size  uint64
}

// Codec extracts the compression codec id from a Data object's flags byte.
// Calling this on a non-Data object is meaningless; callers are expected to
// check Type first.
func (h ObjectHeader) Codec() CompressionCodec {
	return CompressionCodec(h.Flags & compressionCodecMask)
}

// WithCodec returns a copy of h with its flags byte's codec bits set to c.
func (h ObjectHeader) WithCodec(c CompressionCodec) ObjectHeader {
	h.Flags = (h.Flags &^ compressionCodecMask) | uint8(c)
	return h
}

// ParseObjectHeader parses the 16-byte object header at the start of buf.
func ParseObjectHeader(buf []byte) (ObjectHeader, error) {
	if len(buf) < ObjectHeaderSize {
		return ObjectHeader{}, fmt.Errorf("%w: object header needs %d bytes, have %d", errs.ErrBadMessage, ObjectHeaderSize, len(buf))
	}

	h := ObjectHeader{
		Type:  ObjectType(buf[0]),
		Flags: buf[1],
		Size:  binutil.LE.Uint64(buf[8:16]),
	}

	if !h.Type.Valid() {
		return ObjectHeader{}, fmt.Errorf("%w: unknown object type %d", errs.ErrBadMessage, buf[0])
	}
	if h.Size < ObjectHeaderSize {
		return ObjectHeader{}, fmt.Errorf("%w: object size %d smaller than header", errs.ErrBadMessage, h.Size)
	}

	return h, nil
}

// PutObjectHeader serializes h into the first ObjectHeaderSize bytes of buf.
func PutObjectHeader(buf []byte, h ObjectHeader) {
	buf[0] = uint8(h.Type)
	buf[1] = h.Flags
	for i := 2; i < 8; i++ {
		buf[i] = 0
	}
	binutil.LE.PutUint64(buf[8:16], h.Size)
}
