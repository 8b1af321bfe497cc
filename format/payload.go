package format

import (
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/internal/binutil"
)

// Per-type payload layouts (§3). Every Parse* function takes the object's
// payload slice — the bytes following its 16-byte ObjectHeader, sized to
// ObjectHeader.Size-ObjectHeaderSize — not the whole object. Every *Size
// helper returns the full aligned object size including the header, for
// callers sizing a heap allocation before it exists.

const dataFixedSize = 56

// Data is the payload of an Object of ObjectData (§3): a unique name=value
// byte sequence plus the pointers that thread it into the data hash bucket,
// its field's value chain, and its own per-data entry-array chain.
type Data struct {
	Hash             uint64
	NextHashOffset   uint64
	NextFieldOffset  uint64
	FieldOffset      uint64 // owning Field object
	EntryOffset      uint64 // first entry referencing this value (plus-one inline slot)
	EntryArrayOffset uint64 // head of the remaining per-data entry-array chain
	NEntries         uint64
	Payload          []byte // optionally compressed name=value bytes
}

// DataSize returns the full object size (including the 16-byte object
// header), 8-byte aligned, for a Data object whose stored payload is
// payloadLen bytes.
func DataSize(payloadLen int) uint64 {
	return binutil.Align8(uint64(ObjectHeaderSize + dataFixedSize + payloadLen)) //nolint:gosec
}

func ParseData(payload []byte) (Data, error) {
	if len(payload) < dataFixedSize {
		return Data{}, fmt.Errorf("%w: data object needs %d bytes, have %d", errs.ErrBadMessage, dataFixedSize, len(payload))
	}

	d := Data{
		Hash:             binutil.LE.Uint64(payload[0:]),
		NextHashOffset:   binutil.LE.Uint64(payload[8:]),
		NextFieldOffset:  binutil.LE.Uint64(payload[16:]),
		FieldOffset:      binutil.LE.Uint64(payload[24:]),
		EntryOffset:      binutil.LE.Uint64(payload[32:]),
		EntryArrayOffset: binutil.LE.Uint64(payload[40:]),
		NEntries:         binutil.LE.Uint64(payload[48:]),
		Payload:          payload[dataFixedSize:],
	}

	for _, off := range []uint64{d.NextHashOffset, d.NextFieldOffset, d.FieldOffset, d.EntryOffset, d.EntryArrayOffset} {
		if !binutil.ValidOffset(off) {
			return Data{}, fmt.Errorf("%w: misaligned data object pointer %d", errs.ErrBadMessage, off)
		}
	}

	return d, nil
}

// Bytes serializes d into a freshly allocated slice sized to DataSize(len(d.Payload))
// minus any header padding (the caller writes the ObjectHeader separately and
// zero-fills up to the aligned size).
func (d Data) Bytes() []byte {
	buf := make([]byte, dataFixedSize+len(d.Payload))
	binutil.LE.PutUint64(buf[0:], d.Hash)
	binutil.LE.PutUint64(buf[8:], d.NextHashOffset)
	binutil.LE.PutUint64(buf[16:], d.NextFieldOffset)
	binutil.LE.PutUint64(buf[24:], d.FieldOffset)
	binutil.LE.PutUint64(buf[32:], d.EntryOffset)
	binutil.LE.PutUint64(buf[40:], d.EntryArrayOffset)
	binutil.LE.PutUint64(buf[48:], d.NEntries)
	copy(buf[dataFixedSize:], d.Payload)

	return buf
}

const fieldFixedSize = 24

// Field is the payload of an Object of ObjectField (§3): a unique field
// name, heading the chain of every Data object sharing it.
type Field struct {
	Hash           uint64
	NextHashOffset uint64
	HeadDataOffset uint64
	Name           []byte
}

func FieldSize(nameLen int) uint64 {
	return binutil.Align8(uint64(ObjectHeaderSize + fieldFixedSize + nameLen)) //nolint:gosec
}

func ParseField(payload []byte) (Field, error) {
	if len(payload) < fieldFixedSize {
		return Field{}, fmt.Errorf("%w: field object needs %d bytes, have %d", errs.ErrBadMessage, fieldFixedSize, len(payload))
	}

	f := Field{
		Hash:           binutil.LE.Uint64(payload[0:]),
		NextHashOffset: binutil.LE.Uint64(payload[8:]),
		HeadDataOffset: binutil.LE.Uint64(payload[16:]),
		Name:           payload[fieldFixedSize:],
	}

	if !binutil.ValidOffset(f.NextHashOffset) || !binutil.ValidOffset(f.HeadDataOffset) {
		return Field{}, fmt.Errorf("%w: misaligned field object pointer", errs.ErrBadMessage)
	}

	return f, nil
}

func (f Field) Bytes() []byte {
	buf := make([]byte, fieldFixedSize+len(f.Name))
	binutil.LE.PutUint64(buf[0:], f.Hash)
	binutil.LE.PutUint64(buf[8:], f.NextHashOffset)
	binutil.LE.PutUint64(buf[16:], f.HeadDataOffset)
	copy(buf[fieldFixedSize:], f.Name)

	return buf
}

const entryFixedSize = 48 // seqnum(8) + realtime(8) + monotonic(8) + boot_id(16) + xor_hash(8)
const entryItemSize = 16  // data_offset(8) + hash(8)

// EntryItem references one Data object from within an Entry, duplicating its
// stored hash so readers can validate without a second dereference.
type EntryItem struct {
	DataOffset uint64
	Hash       uint64
}

// Entry is the payload of an Object of ObjectEntry (§3): a single logged
// record, an ordered, duplicate-free set of item references plus timestamps
// and identifiers.
type Entry struct {
	Seqnum    uint64
	Realtime  uint64
	Monotonic uint64
	BootID    [16]byte
	XorHash   uint64
	Items     []EntryItem
}

func EntrySize(nItems int) uint64 {
	return binutil.Align8(uint64(ObjectHeaderSize + entryFixedSize + nItems*entryItemSize)) //nolint:gosec
}

func ParseEntry(payload []byte) (Entry, error) {
	if len(payload) < entryFixedSize {
		return Entry{}, fmt.Errorf("%w: entry object needs %d bytes, have %d", errs.ErrBadMessage, entryFixedSize, len(payload))
	}

	rest := payload[entryFixedSize:]
	if len(rest)%entryItemSize != 0 {
		return Entry{}, fmt.Errorf("%w: entry item array not a multiple of %d bytes", errs.ErrBadMessage, entryItemSize)
	}

	e := Entry{
		Seqnum:    binutil.LE.Uint64(payload[0:]),
		Realtime:  binutil.LE.Uint64(payload[8:]),
		Monotonic: binutil.LE.Uint64(payload[16:]),
		XorHash:   binutil.LE.Uint64(payload[40:]),
	}
	copy(e.BootID[:], payload[24:40])

	n := len(rest) / entryItemSize
	e.Items = make([]EntryItem, n)
	for i := 0; i < n; i++ {
		b := rest[i*entryItemSize:]
		e.Items[i] = EntryItem{
			DataOffset: binutil.LE.Uint64(b[0:]),
			Hash:       binutil.LE.Uint64(b[8:]),
		}
		if !binutil.ValidOffset(e.Items[i].DataOffset) {
			return Entry{}, fmt.Errorf("%w: misaligned entry item offset %d", errs.ErrBadMessage, e.Items[i].DataOffset)
		}
	}

	return e, nil
}

func (e Entry) Bytes() []byte {
	buf := make([]byte, entryFixedSize+len(e.Items)*entryItemSize)
	binutil.LE.PutUint64(buf[0:], e.Seqnum)
	binutil.LE.PutUint64(buf[8:], e.Realtime)
	binutil.LE.PutUint64(buf[16:], e.Monotonic)
	copy(buf[24:40], e.BootID[:])
	binutil.LE.PutUint64(buf[40:], e.XorHash)

	for i, item := range e.Items {
		b := buf[entryFixedSize+i*entryItemSize:]
		binutil.LE.PutUint64(b[0:], item.DataOffset)
		binutil.LE.PutUint64(b[8:], item.Hash)
	}

	return buf
}

// BucketSize is the byte size of one Bucket slot, exported so callers that
// index into a mapped HashTable window directly (instead of round-tripping
// through ParseHashTable/Bytes) can compute offsets themselves.
const BucketSize = 16 // head_offset(8) + tail_offset(8)
const bucketSize = BucketSize

// Bucket is one slot of a HashTable object's flat bucket array.
type Bucket struct {
	Head uint64
	Tail uint64
}

// HashTable is the payload of an Object of ObjectDataHashTable or
// ObjectFieldHashTable (§3): a flat array of buckets, each heading a
// singly linked chain of objects sharing a bucket index.
type HashTable struct {
	Buckets []Bucket
}

func HashTableSize(nBuckets int) uint64 {
	return binutil.Align8(uint64(ObjectHeaderSize + nBuckets*bucketSize)) //nolint:gosec
}

func ParseHashTable(payload []byte) (HashTable, error) {
	if len(payload)%bucketSize != 0 {
		return HashTable{}, fmt.Errorf("%w: hash table payload not a multiple of %d bytes", errs.ErrBadMessage, bucketSize)
	}

	n := len(payload) / bucketSize
	ht := HashTable{Buckets: make([]Bucket, n)}
	for i := 0; i < n; i++ {
		b := payload[i*bucketSize:]
		ht.Buckets[i] = Bucket{
			Head: binutil.LE.Uint64(b[0:]),
			Tail: binutil.LE.Uint64(b[8:]),
		}
	}

	return ht, nil
}

func (ht HashTable) Bytes() []byte {
	buf := make([]byte, len(ht.Buckets)*bucketSize)
	for i, b := range ht.Buckets {
		o := buf[i*bucketSize:]
		binutil.LE.PutUint64(o[0:], b.Head)
		binutil.LE.PutUint64(o[8:], b.Tail)
	}

	return buf
}

const entryArrayFixedSize = 8 // next_entry_array_offset(8)

// EntryArray is the payload of an Object of ObjectEntryArray (§3): one
// segment of a singly linked list of entry offsets. Used both for the
// file-wide global chain and for each Data object's per-value chain.
type EntryArray struct {
	NextEntryArrayOffset uint64
	Items                []uint64
}

func EntryArraySize(nSlots int) uint64 {
	return binutil.Align8(uint64(ObjectHeaderSize + entryArrayFixedSize + nSlots*8)) //nolint:gosec
}

func ParseEntryArray(payload []byte) (EntryArray, error) {
	if len(payload) < entryArrayFixedSize {
		return EntryArray{}, fmt.Errorf("%w: entry array object needs %d bytes, have %d", errs.ErrBadMessage, entryArrayFixedSize, len(payload))
	}

	rest := payload[entryArrayFixedSize:]
	if len(rest)%8 != 0 {
		return EntryArray{}, fmt.Errorf("%w: entry array item list not a multiple of 8 bytes", errs.ErrBadMessage)
	}

	ea := EntryArray{NextEntryArrayOffset: binutil.LE.Uint64(payload[0:])}
	if !binutil.ValidOffset(ea.NextEntryArrayOffset) {
		return EntryArray{}, fmt.Errorf("%w: misaligned next_entry_array_offset %d", errs.ErrBadMessage, ea.NextEntryArrayOffset)
	}

	n := len(rest) / 8
	ea.Items = make([]uint64, n)
	for i := 0; i < n; i++ {
		ea.Items[i] = binutil.LE.Uint64(rest[i*8:])
	}

	return ea, nil
}

func (ea EntryArray) Bytes() []byte {
	buf := make([]byte, entryArrayFixedSize+len(ea.Items)*8)
	binutil.LE.PutUint64(buf[0:], ea.NextEntryArrayOffset)
	for i, off := range ea.Items {
		binutil.LE.PutUint64(buf[entryArrayFixedSize+i*8:], off)
	}

	return buf
}

// Tag is the payload of an Object of ObjectTag (§3): an opaque integrity tag
// the core stores and relocates but never interprets (forward-secure sealing
// is out of scope; see SPEC_FULL.md's sealing hook notes).
type Tag struct {
	Payload []byte
}

func TagSize(payloadLen int) uint64 {
	return binutil.Align8(uint64(ObjectHeaderSize + payloadLen)) //nolint:gosec
}

func ParseTag(payload []byte) Tag {
	return Tag{Payload: payload}
}

func (t Tag) Bytes() []byte {
	return t.Payload
}
