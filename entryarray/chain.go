// Package entryarray implements entry-array chains (§4.4): singly linked
// segmented arrays of offsets, used both globally (every entry, in append
// order) and per-data ("plus-one" variant, with the first logical slot
// inlined into the owning Data object).
package entryarray

import (
	"fmt"

	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/heap"
	"github.com/arloliu/jrnl/internal/binutil"
	"github.com/arloliu/jrnl/internal/mmapcache"
	"github.com/arloliu/jrnl/metrics"
)

// segNextOff/segItemsOff are offsets within an entry-array object's payload
// (i.e. relative to offset+format.ObjectHeaderSize).
const segNextOff = 0
const segItemsOff = 8

func segmentCapacity(objSize uint64) int {
	return int((objSize - format.ObjectHeaderSize - segItemsOff) / 8) //nolint:gosec
}

// readSegmentHeader maps and validates the object header at offset,
// returning its total object size.
func readSegmentHeader(cache *mmapcache.Cache, offset uint64) (uint64, error) {
	hb, err := cache.Map(mmapcache.CtxScratch, offset, format.ObjectHeaderSize, false)
	if err != nil {
		return 0, err
	}
	oh, err := format.ParseObjectHeader(hb)
	if err != nil {
		return 0, err
	}
	if oh.Type != format.ObjectEntryArray {
		return 0, fmt.Errorf("expected entry-array object at offset %d, found %s", offset, oh.Type)
	}

	return oh.Size, nil
}

func readNext(cache *mmapcache.Cache, offset uint64) (uint64, error) {
	buf, err := cache.Map(mmapcache.CtxScratch, offset+format.ObjectHeaderSize+segNextOff, 8, false)
	if err != nil {
		return 0, err
	}
	return binutil.LE.Uint64(buf), nil
}

func writeNext(cache *mmapcache.Cache, offset, next uint64) error {
	buf, err := cache.Map(mmapcache.CtxEntryArray, offset+format.ObjectHeaderSize+segNextOff, 8, false)
	if err != nil {
		return err
	}
	binutil.LE.PutUint64(buf, next)
	return nil
}

func readItem(cache *mmapcache.Cache, segOffset uint64, within int) (uint64, error) {
	buf, err := cache.Map(mmapcache.CtxScratch, segOffset+format.ObjectHeaderSize+segItemsOff+uint64(within*8), 8, false) //nolint:gosec
	if err != nil {
		return 0, err
	}
	return binutil.LE.Uint64(buf), nil
}

func writeItem(cache *mmapcache.Cache, segOffset uint64, within int, value uint64) error {
	buf, err := cache.Map(mmapcache.CtxEntryArray, segOffset+format.ObjectHeaderSize+segItemsOff+uint64(within*8), 8, false) //nolint:gosec
	if err != nil {
		return err
	}
	binutil.LE.PutUint64(buf, value)
	return nil
}

// nextCapacity implements the segment growth rule from §4.4: new segments
// are sized to at least 4, at least double the previous segment's capacity,
// and at least double the logical slot index being inserted.
func nextCapacity(prevCap, insertIdx int) int {
	c := 4
	if prevCap*2 > c {
		c = prevCap * 2
	}
	if (insertIdx+1)*2 > c {
		c = (insertIdx + 1) * 2
	}
	return c
}

// Append stores value at logical index n (the chain's current item count)
// in the chain rooted at *first, growing it with a new segment if every
// existing segment is full. *first is set if the chain didn't exist yet.
func Append(hdr *format.Header, cache *mmapcache.Cache, m metrics.Metrics, statvfsFreeBytes uint64, first *uint64, n int, value uint64) error {
	remaining := n
	cur := *first
	var prevTail uint64
	prevCap := 0

	for cur != 0 {
		objSize, err := readSegmentHeader(cache, cur)
		if err != nil {
			return err
		}
		segCap := segmentCapacity(objSize)
		if remaining < segCap {
			if err := writeItem(cache, cur, remaining, value); err != nil {
				return err
			}
			return nil
		}
		remaining -= segCap
		prevCap = segCap
		prevTail = cur
		next, err := readNext(cache, cur)
		if err != nil {
			return err
		}
		cur = next
	}

	newCap := nextCapacity(prevCap, remaining)
	newSize := format.EntryArraySize(newCap)
	newOffset, err := heap.Allocate(hdr, cache, m, statvfsFreeBytes, format.ObjectEntryArray, newSize)
	if err != nil {
		return err
	}
	hdr.NEntryArrays++

	if prevTail != 0 {
		if err := writeNext(cache, prevTail, newOffset); err != nil {
			return err
		}
	} else {
		*first = newOffset
	}

	return writeItem(cache, newOffset, remaining, value)
}

// AppendPlusOne appends value to a per-data chain where the first logical
// slot is stored inline in the owning Data object (*inlineFirst) and the
// rest live in the segmented chain rooted at *chainFirst (§4.4).
func AppendPlusOne(hdr *format.Header, cache *mmapcache.Cache, m metrics.Metrics, statvfsFreeBytes uint64, inlineFirst, chainFirst *uint64, n int, value uint64) error {
	if n == 0 {
		*inlineFirst = value
		return nil
	}
	return Append(hdr, cache, m, statvfsFreeBytes, chainFirst, n-1, value)
}
