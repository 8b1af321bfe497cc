// Package hashtable implements the data and field-name hash tables (§4.3):
// flat bucket arrays with chained collision lists living in the arena,
// sharing one on-disk layout (format.HashTable) but keyed differently.
package hashtable

import (
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/binutil"
	"github.com/arloliu/jrnl/internal/mmapcache"
)

// Kind distinguishes the data table (keyed by content hash) from the
// field-name table (keyed by field name hash); both share the same walk and
// link code but update different header counters.
type Kind uint8

const (
	KindData Kind = iota
	KindField
)

// DataTableBuckets returns the bucket count for a data table sized from
// maxSize: one bucket per 576 bytes of maximum file size, so that one Data
// object per 768 bytes fills the table to 75% load at the file's largest
// possible size, floored at 2047 (§4.3).
func DataTableBuckets(maxSize uint64) int {
	b := maxSize * 4 / 768 / 3
	if b < 2047 {
		b = 2047
	}
	return int(b) //nolint:gosec
}

// FieldTableBuckets is the fixed bucket count for the field-name table.
const FieldTableBuckets = 333

// Table is an open handle onto a mapped hash table object. The window
// covering it is mapped with keepAlways in a context of its own, which
// nothing else maps, so it stays mapped for the lifetime of the owning file.
type Table struct {
	cache    *mmapcache.Cache
	kind     Kind
	buf      []byte
	nBuckets int
}

func tableGeometry(kind Kind, hdr *format.Header) (offset uint64, objType format.ObjectType, ctx mmapcache.Context) {
	switch kind {
	case KindField:
		return hdr.FieldHashTableOffset, format.ObjectFieldHashTable, mmapcache.CtxFieldHashTable
	default:
		return hdr.DataHashTableOffset, format.ObjectDataHashTable, mmapcache.CtxDataHashTable
	}
}

// Open maps and validates the hash table of the given kind, using the
// offset already recorded in hdr.
func Open(cache *mmapcache.Cache, hdr *format.Header, kind Kind) (*Table, error) {
	offset, wantType, ctx := tableGeometry(kind, hdr)

	headerBuf, err := cache.Map(mmapcache.CtxScratch, offset, format.ObjectHeaderSize, false)
	if err != nil {
		return nil, fmt.Errorf("reading hash table object header: %w", err)
	}
	oh, err := format.ParseObjectHeader(headerBuf)
	if err != nil {
		return nil, err
	}
	if oh.Type != wantType {
		return nil, fmt.Errorf("%w: expected %s object at offset %d, found %s", errs.ErrBadMessage, wantType, offset, oh.Type)
	}

	buf, err := cache.Map(ctx, offset, oh.Size, true)
	if err != nil {
		return nil, fmt.Errorf("mapping hash table: %w", err)
	}

	return &Table{
		cache:    cache,
		kind:     kind,
		buf:      buf,
		nBuckets: (len(buf) - format.ObjectHeaderSize) / format.BucketSize,
	}, nil
}

// NumBuckets returns the table's bucket count, for load-factor checks
// outside this package (e.g. rotation heuristics, §4.7 rotate_suggested).
func (t *Table) NumBuckets() int { return t.nBuckets }

func (t *Table) bucketOff(idx int) int { return format.ObjectHeaderSize + idx*format.BucketSize }

func (t *Table) head(idx int) uint64 {
	return binutil.LE.Uint64(t.buf[t.bucketOff(idx):])
}

func (t *Table) setHead(idx int, v uint64) {
	binutil.LE.PutUint64(t.buf[t.bucketOff(idx):], v)
}

func (t *Table) tail(idx int) uint64 {
	return binutil.LE.Uint64(t.buf[t.bucketOff(idx)+8:])
}

func (t *Table) setTail(idx int, v uint64) {
	binutil.LE.PutUint64(t.buf[t.bucketOff(idx)+8:], v)
}

func (t *Table) bucketIndex(hash uint64) int {
	return int(hash % uint64(t.nBuckets)) //nolint:gosec
}

// readHashLink reads a chained object's stored hash and next_*_offset
// pointer. Both Data and Field objects store their hash as the first 8
// payload bytes and their next-in-bucket offset as the next 8 (§3), so this
// walk never needs to know which of the two it is chaining over.
func (t *Table) readHashLink(offset uint64) (hash uint64, next uint64, err error) {
	buf, err := t.cache.Map(mmapcache.CtxScratch, offset+format.ObjectHeaderSize, 16, false)
	if err != nil {
		return 0, 0, err
	}
	hash = binutil.LE.Uint64(buf[0:])
	next = binutil.LE.Uint64(buf[8:])
	if !binutil.ValidOffset(next) {
		return 0, 0, fmt.Errorf("%w: misaligned next-hash offset %d at object %d", errs.ErrBadMessage, next, offset)
	}

	return hash, next, nil
}

func (t *Table) setNextHash(offset, next uint64) error {
	buf, err := t.cache.Map(mmapcache.CtxScratch, offset+format.ObjectHeaderSize+8, 8, false)
	if err != nil {
		return err
	}
	binutil.LE.PutUint64(buf, next)

	return nil
}

// Find walks the bucket for hash, calling match for every candidate whose
// stored hash matches, until match reports true or the chain ends. It
// refuses a chain whose next pointer does not strictly increase the offset
// (§4.3, §9 "cyclic structures"), and records the longest chain depth ever
// observed for this table's kind back into hdr.
func (t *Table) Find(hdr *format.Header, hash uint64, match func(candidateOffset uint64) (bool, error)) (uint64, error) {
	idx := t.bucketIndex(hash)
	cur := t.head(idx)

	var last uint64
	depth := 0

	for cur != 0 {
		depth++
		if last != 0 && cur <= last {
			return 0, fmt.Errorf("%w: hash chain cycle detected in bucket %d", errs.ErrBadMessage, idx)
		}
		last = cur

		candHash, next, err := t.readHashLink(cur)
		if err != nil {
			return 0, err
		}

		if candHash == hash {
			ok, err := match(cur)
			if err != nil {
				return 0, err
			}
			if ok {
				t.recordDepth(hdr, depth)
				return cur, nil
			}
		}

		cur = next
	}

	t.recordDepth(hdr, depth)

	return 0, nil
}

func (t *Table) recordDepth(hdr *format.Header, depth int) {
	d := uint64(depth) //nolint:gosec
	switch t.kind {
	case KindData:
		if d > hdr.DataHashChainDepth {
			hdr.DataHashChainDepth = d
		}
	case KindField:
		if d > hdr.FieldHashChainDepth {
			hdr.FieldHashChainDepth = d
		}
	}
}

// Link appends a newly allocated object at offset, whose stored hash is
// hash, to the tail of its bucket's chain, and bumps the table's n_data or
// n_fields counter. Tie-break on an existing collision is positional: the
// caller is expected to have already called Find and found nothing before
// calling Link, so no existing object is ever displaced.
func (t *Table) Link(hdr *format.Header, hash, offset uint64) error {
	idx := t.bucketIndex(hash)
	head := t.head(idx)

	if head == 0 {
		t.setHead(idx, offset)
		t.setTail(idx, offset)
	} else {
		tail := t.tail(idx)
		if err := t.setNextHash(tail, offset); err != nil {
			return err
		}
		t.setTail(idx, offset)
	}

	switch t.kind {
	case KindData:
		hdr.NData++
	case KindField:
		hdr.NFields++
	}

	return nil
}
