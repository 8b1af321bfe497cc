// Package heap implements the append-only object allocator (§4.2): it picks
// the next offset after the current tail object, grows the backing file in
// coarse increments subject to the size/free-space policy, and writes a
// zero-filled object header at the new offset.
package heap

import (
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/binutil"
	"github.com/arloliu/jrnl/internal/mmapcache"
	"github.com/arloliu/jrnl/metrics"
	"golang.org/x/sys/unix"
)

// growthIncrement is the coarse unit the file grows by (§4.2 step 4).
const growthIncrement = 8 << 20

// contextFor maps an object type to its mmap window context and whether
// that window should stay pinned across calls. Hash tables are pinned: the
// find/link walk on every append touches them.
func contextFor(t format.ObjectType) (mmapcache.Context, bool) {
	switch t {
	case format.ObjectData:
		return mmapcache.CtxData, false
	case format.ObjectField:
		return mmapcache.CtxField, false
	case format.ObjectEntry:
		return mmapcache.CtxEntry, false
	case format.ObjectDataHashTable:
		return mmapcache.CtxDataHashTable, true
	case format.ObjectFieldHashTable:
		return mmapcache.CtxFieldHashTable, true
	case format.ObjectEntryArray:
		return mmapcache.CtxEntryArray, false
	case format.ObjectTag:
		return mmapcache.CtxTag, false
	default:
		return mmapcache.CtxScratch, false
	}
}

// Allocate appends a new object of type objType and total size objSize
// (including its 16-byte object header, already 8-byte aligned — see the
// format.*Size helpers) and returns its file offset.
//
// The caller must have already transitioned the file to online (§4.6)
// before calling Allocate; a failure partway through never leaves
// hdr.TailObjectOffset or hdr.NObjects updated (§4.2).
func Allocate(hdr *format.Header, cache *mmapcache.Cache, m metrics.Metrics, statvfsFreeBytes uint64, objType format.ObjectType, objSize uint64) (uint64, error) {
	if !binutil.IsAligned8(objSize) {
		return 0, fmt.Errorf("%w: object size %d not 8-byte aligned", errs.ErrBadMessage, objSize)
	}

	p := hdr.HeaderSize
	if hdr.NObjects > 0 {
		tailBuf, err := cache.Map(mmapcache.CtxScratch, hdr.TailObjectOffset, format.ObjectHeaderSize, false)
		if err != nil {
			return 0, fmt.Errorf("reading tail object header: %w", err)
		}
		tailHeader, err := format.ParseObjectHeader(tailBuf)
		if err != nil {
			return 0, fmt.Errorf("parsing tail object header: %w", err)
		}
		p = hdr.TailObjectOffset + binutil.Align8(tailHeader.Size)
	}

	fileSize := cache.Size()
	newSize := max64(mmapcache.PageCeil(p+objSize), fileSize)
	if newSize > m.MaxSize {
		return 0, fmt.Errorf("%w: file would grow to %d, exceeding max_size %d", errs.ErrTooBig, newSize, m.MaxSize)
	}

	if growth := newSize - fileSize; growth > 0 {
		if statvfsFreeBytes < m.KeepFree || growth > statvfsFreeBytes-m.KeepFree {
			return 0, fmt.Errorf("%w: growth of %d bytes would swallow keep_free reserve", errs.ErrTooBig, growth)
		}
	}

	roundedSize := roundUp(newSize, growthIncrement)
	if roundedSize > m.MaxSize {
		roundedSize = m.MaxSize
	}
	if roundedSize < p+objSize {
		return 0, fmt.Errorf("%w: max_size %d too small for object at offset %d size %d", errs.ErrTooBig, m.MaxSize, p, objSize)
	}

	if roundedSize > fileSize {
		if err := unix.Fallocate(int(cache.Fd()), 0, int64(fileSize), int64(roundedSize-fileSize)); err != nil { //nolint:gosec
			return 0, fmt.Errorf("%w: posix_fallocate: %v", errs.ErrIO, err)
		}
		if err := cache.RefreshFstat(true); err != nil {
			return 0, err
		}
		hdr.ArenaSize = roundedSize - hdr.HeaderSize
	}

	ctx, keepAlways := contextFor(objType)
	objBuf, err := cache.Map(ctx, p, objSize, keepAlways)
	if err != nil {
		return 0, fmt.Errorf("mapping new object: %w", err)
	}

	clear(objBuf)
	format.PutObjectHeader(objBuf, format.ObjectHeader{Type: objType, Size: objSize})

	hdr.TailObjectOffset = p
	hdr.NObjects++

	return p, nil
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func roundUp(n, multiple uint64) uint64 {
	if n%multiple == 0 {
		return n
	}
	return n + (multiple - n%multiple)
}
