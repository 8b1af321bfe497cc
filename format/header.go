package format

import (
	"bytes"
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/internal/binutil"
)

// Magic is the 8-byte signature every journal file starts with.
var Magic = [8]byte{'L', 'P', 'K', 'S', 'H', 'H', 'R', 'H'}

// HeaderSize is the fixed size in bytes of the Header section (§3). Future
// versions may grow it; readers must gate access to fields beyond this
// minimum on a header_size check rather than assuming HeaderSize is fixed
// forever (§6.1).
const HeaderSize = 256

// Header is the fixed structure at file offset 0 (§3). All fields are
// little-endian on disk.
type Header struct {
	Magic             [8]byte
	CompatibleFlags   CompatibleFlags
	IncompatibleFlags IncompatibleFlags
	State             State

	FileID    [16]byte
	MachineID [16]byte
	BootID    [16]byte
	SeqnumID  [16]byte

	DataHashTableOffset  uint64
	FieldHashTableOffset uint64
	TailObjectOffset     uint64
	EntryArrayOffset     uint64

	HeaderSize         uint64
	ArenaSize          uint64
	DataHashTableSize  uint64
	FieldHashTableSize uint64

	NObjects     uint64
	NEntries     uint64
	NData        uint64
	NFields      uint64
	NTags        uint64
	NEntryArrays uint64

	HeadEntrySeqnum uint64
	TailEntrySeqnum uint64

	HeadEntryRealtime   uint64
	TailEntryRealtime   uint64
	TailEntryMonotonic  uint64

	DataHashChainDepth  uint64
	FieldHashChainDepth uint64
}

// byte offsets of each field within the fixed 256-byte header.
const (
	offMagic             = 0
	offCompatibleFlags   = 8
	offIncompatibleFlags = 12
	offState             = 16
	// 7 bytes reserved, offset 17..23, to align the ID block to 8 bytes.
	offFileID    = 24
	offMachineID = 40
	offBootID    = 56
	offSeqnumID  = 72

	offDataHashTableOffset  = 88
	offFieldHashTableOffset = 96
	offTailObjectOffset     = 104
	offEntryArrayOffset     = 112

	offHeaderSize         = 120
	offArenaSize          = 128
	offDataHashTableSize  = 136
	offFieldHashTableSize = 144

	offNObjects     = 152
	offNEntries     = 160
	offNData        = 168
	offNFields      = 176
	offNTags        = 184
	offNEntryArrays = 192

	offHeadEntrySeqnum = 200
	offTailEntrySeqnum = 208

	offHeadEntryRealtime  = 216
	offTailEntryRealtime  = 224
	offTailEntryMonotonic = 232

	offDataHashChainDepth  = 240
	offFieldHashChainDepth = 248
)

// ParseHeader parses a Header from buf, which must be at least HeaderSize
// bytes. It does not validate semantic invariants (use Validate for that) —
// only that the magic signature is present and flags are representable.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", errs.ErrNoData, HeaderSize, len(buf))
	}

	h := &Header{}
	copy(h.Magic[:], buf[offMagic:offMagic+8])
	if !bytes.Equal(h.Magic[:], Magic[:]) {
		return nil, fmt.Errorf("%w: bad magic signature", errs.ErrBadMessage)
	}

	h.CompatibleFlags = CompatibleFlags(binutil.LE.Uint32(buf[offCompatibleFlags:]))
	h.IncompatibleFlags = IncompatibleFlags(binutil.LE.Uint32(buf[offIncompatibleFlags:]))
	h.State = State(buf[offState])

	copy(h.FileID[:], buf[offFileID:offFileID+16])
	copy(h.MachineID[:], buf[offMachineID:offMachineID+16])
	copy(h.BootID[:], buf[offBootID:offBootID+16])
	copy(h.SeqnumID[:], buf[offSeqnumID:offSeqnumID+16])

	h.DataHashTableOffset = binutil.LE.Uint64(buf[offDataHashTableOffset:])
	h.FieldHashTableOffset = binutil.LE.Uint64(buf[offFieldHashTableOffset:])
	h.TailObjectOffset = binutil.LE.Uint64(buf[offTailObjectOffset:])
	h.EntryArrayOffset = binutil.LE.Uint64(buf[offEntryArrayOffset:])

	h.HeaderSize = binutil.LE.Uint64(buf[offHeaderSize:])
	h.ArenaSize = binutil.LE.Uint64(buf[offArenaSize:])
	h.DataHashTableSize = binutil.LE.Uint64(buf[offDataHashTableSize:])
	h.FieldHashTableSize = binutil.LE.Uint64(buf[offFieldHashTableSize:])

	h.NObjects = binutil.LE.Uint64(buf[offNObjects:])
	h.NEntries = binutil.LE.Uint64(buf[offNEntries:])
	h.NData = binutil.LE.Uint64(buf[offNData:])
	h.NFields = binutil.LE.Uint64(buf[offNFields:])
	h.NTags = binutil.LE.Uint64(buf[offNTags:])
	h.NEntryArrays = binutil.LE.Uint64(buf[offNEntryArrays:])

	h.HeadEntrySeqnum = binutil.LE.Uint64(buf[offHeadEntrySeqnum:])
	h.TailEntrySeqnum = binutil.LE.Uint64(buf[offTailEntrySeqnum:])

	h.HeadEntryRealtime = binutil.LE.Uint64(buf[offHeadEntryRealtime:])
	h.TailEntryRealtime = binutil.LE.Uint64(buf[offTailEntryRealtime:])
	h.TailEntryMonotonic = binutil.LE.Uint64(buf[offTailEntryMonotonic:])

	h.DataHashChainDepth = binutil.LE.Uint64(buf[offDataHashChainDepth:])
	h.FieldHashChainDepth = binutil.LE.Uint64(buf[offFieldHashChainDepth:])

	return h, nil
}

// Bytes serializes h into a freshly allocated HeaderSize-byte slice.
func (h *Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)

	copy(buf[offMagic:], h.Magic[:])
	binutil.LE.PutUint32(buf[offCompatibleFlags:], uint32(h.CompatibleFlags))
	binutil.LE.PutUint32(buf[offIncompatibleFlags:], uint32(h.IncompatibleFlags))
	buf[offState] = uint8(h.State)

	copy(buf[offFileID:], h.FileID[:])
	copy(buf[offMachineID:], h.MachineID[:])
	copy(buf[offBootID:], h.BootID[:])
	copy(buf[offSeqnumID:], h.SeqnumID[:])

	binutil.LE.PutUint64(buf[offDataHashTableOffset:], h.DataHashTableOffset)
	binutil.LE.PutUint64(buf[offFieldHashTableOffset:], h.FieldHashTableOffset)
	binutil.LE.PutUint64(buf[offTailObjectOffset:], h.TailObjectOffset)
	binutil.LE.PutUint64(buf[offEntryArrayOffset:], h.EntryArrayOffset)

	binutil.LE.PutUint64(buf[offHeaderSize:], h.HeaderSize)
	binutil.LE.PutUint64(buf[offArenaSize:], h.ArenaSize)
	binutil.LE.PutUint64(buf[offDataHashTableSize:], h.DataHashTableSize)
	binutil.LE.PutUint64(buf[offFieldHashTableSize:], h.FieldHashTableSize)

	binutil.LE.PutUint64(buf[offNObjects:], h.NObjects)
	binutil.LE.PutUint64(buf[offNEntries:], h.NEntries)
	binutil.LE.PutUint64(buf[offNData:], h.NData)
	binutil.LE.PutUint64(buf[offNFields:], h.NFields)
	binutil.LE.PutUint64(buf[offNTags:], h.NTags)
	binutil.LE.PutUint64(buf[offNEntryArrays:], h.NEntryArrays)

	binutil.LE.PutUint64(buf[offHeadEntrySeqnum:], h.HeadEntrySeqnum)
	binutil.LE.PutUint64(buf[offTailEntrySeqnum:], h.TailEntrySeqnum)

	binutil.LE.PutUint64(buf[offHeadEntryRealtime:], h.HeadEntryRealtime)
	binutil.LE.PutUint64(buf[offTailEntryRealtime:], h.TailEntryRealtime)
	binutil.LE.PutUint64(buf[offTailEntryMonotonic:], h.TailEntryMonotonic)

	binutil.LE.PutUint64(buf[offDataHashChainDepth:], h.DataHashChainDepth)
	binutil.LE.PutUint64(buf[offFieldHashChainDepth:], h.FieldHashChainDepth)

	return buf
}

// Validate checks the structural invariants from §3 that do not require
// knowing "now" or the host's machine id (those are checked by the caller,
// which has that context). It does not check section offsets against an
// actual file size — the caller passes fileSize for that.
func (h *Header) Validate(fileSize uint64) error {
	if h.HeaderSize+h.ArenaSize > fileSize {
		return fmt.Errorf("%w: header_size+arena_size %d exceeds file size %d", errs.ErrBadMessage, h.HeaderSize+h.ArenaSize, fileSize)
	}
	if !h.State.Valid() {
		return fmt.Errorf("%w: invalid state %d", errs.ErrBadMessage, h.State)
	}
	for _, off := range []uint64{h.DataHashTableOffset, h.FieldHashTableOffset, h.TailObjectOffset, h.EntryArrayOffset} {
		if !binutil.ValidOffset(off) {
			return fmt.Errorf("%w: misaligned section offset %d", errs.ErrBadMessage, off)
		}
		if off != 0 && off >= h.HeaderSize+h.ArenaSize {
			return fmt.Errorf("%w: section offset %d outside arena", errs.ErrBadMessage, off)
		}
	}
	if h.IncompatibleFlags.UnknownBits() != 0 {
		return fmt.Errorf("%w: unknown incompatible flags 0x%x", errs.ErrProtocolNotSupported, h.IncompatibleFlags.UnknownBits())
	}
	if h.IncompatibleFlags.HasMultipleCompressionFlags() {
		return fmt.Errorf("%w: more than one compression flag set", errs.ErrBadMessage)
	}

	return nil
}
