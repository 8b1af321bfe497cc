// Package mmapcache implements the sliding mmap window cache described in
// §4.1: one independent window per object type (plus one for the Header),
// SIGBUS tracking, and rate-limited fstat refresh.
//
// A Cache owns exactly one open file descriptor. Multiple Cache instances
// may exist for the same descriptor (the cache itself is refcounted at the
// process level only through the shared sigbus registry; each journal File
// keeps its own Cache since window contents differ per file).
package mmapcache

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/arloliu/jrnl/errs"
	"golang.org/x/sys/unix"
)

// Context selects one of the independent sliding windows a Cache maintains.
// Keeping per-type windows means resolving a Data object doesn't evict the
// window backing the hash tables, which callers pin with keepAlways.
type Context int

const (
	CtxHeader Context = iota
	CtxData
	CtxField
	CtxEntry
	CtxDataHashTable
	CtxFieldHashTable
	CtxEntryArray
	CtxTag
	// CtxScratch is used for short-lived reads of an object header at an
	// offset whose type isn't known yet, e.g. the allocator reading the
	// current tail object's size before it can pick a typed context.
	CtxScratch

	numContexts
)

// fstatRefreshInterval rate-limits fstat calls on the success path (§4.1).
const fstatRefreshInterval = 5 * time.Second

type window struct {
	data []byte
	base uint64 // file offset of data[0], page-aligned
	keep bool
}

// Cache is a per-file mmap window cache.
type Cache struct {
	fd       uintptr
	writable bool

	mu      sync.Mutex
	windows [numContexts]*window

	size       uint64
	nlink      uint64
	lastStat   time.Time
	lastStatOK bool
}

// New creates a Cache over an already-open file descriptor. writable selects
// PROT_READ|PROT_WRITE mappings versus PROT_READ-only ones.
func New(fd uintptr, writable bool) *Cache {
	installSigbusHandler()
	c := &Cache{fd: fd, writable: writable}
	return c
}

// GotSigbus reports whether this file's descriptor has ever been observed to
// fault. Once true, it never goes back to false: SIGBUS is sticky for the
// lifetime of the open file object (§7).
func (c *Cache) GotSigbus() bool {
	return hasFaulted(c.fd)
}

// MarkFaulted records that this file's descriptor faulted. Callers that
// catch a recovered page-fault panic (see Map's doc) call this before
// translating the failure into errs.ErrIO.
func (c *Cache) MarkFaulted() {
	markFaulted(c.fd)
}

// RefreshFstat stats the backing descriptor and caches size/nlink. On the
// success path it is rate-limited to once per fstatRefreshInterval unless
// force is true; callers that need up-to-date size information right now
// (e.g. before deciding a Map call is out of range) pass force.
func (c *Cache) RefreshFstat(force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshFstatLocked(force)
}

func (c *Cache) refreshFstatLocked(force bool) error {
	if !force && c.lastStatOK && time.Since(c.lastStat) < fstatRefreshInterval {
		return nil
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(c.fd), &st); err != nil {
		c.lastStatOK = false
		return fmt.Errorf("%w: fstat: %v", errs.ErrIO, err)
	}

	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		return fmt.Errorf("%w: not a regular file", errs.ErrBadMessage)
	}

	c.size = uint64(st.Size) //nolint:gosec
	c.nlink = uint64(st.Nlink)
	c.lastStat = time.Now()
	c.lastStatOK = true

	if c.nlink == 0 {
		return fmt.Errorf("%w: file removed", errs.ErrIDRM)
	}

	return nil
}

// Size returns the last-refreshed file size.
func (c *Cache) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Fd returns the underlying file descriptor, for callers (the allocator)
// that need to issue syscalls the cache itself doesn't wrap.
func (c *Cache) Fd() uintptr { return c.fd }

var pageSize = uint64(syscall.Getpagesize()) //nolint:gosec

func pageFloor(off uint64) uint64 { return off &^ (pageSize - 1) }
func pageCeil(off uint64) uint64  { return (off + pageSize - 1) &^ (pageSize - 1) }

// PageCeil rounds n up to the next multiple of the host page size.
func PageCeil(n uint64) uint64 { return pageCeil(n) }

// Map returns a slice over [offset, offset+size) of the backing file,
// growing or sliding the window for ctx as needed. keepAlways is recorded on
// the window but does not pin it: a request for a range outside the current
// window of ctx unmaps that window, whatever its flag. A window stays mapped
// only as long as its context is not asked for another range, which is how
// the hash-table windows, each in a context of its own, stay mapped.
//
// Map fails with errs.ErrIO if this file has ever raised SIGBUS, with
// errs.ErrNoData if offset+size exceeds the file size even after a forced
// fstat refresh, and with errs.ErrIDRM if the file was removed (nlink==0).
func (c *Cache) Map(ctx Context, offset, size uint64, keepAlways bool) ([]byte, error) {
	if c.GotSigbus() {
		return nil, fmt.Errorf("%w: descriptor previously faulted", errs.ErrIO)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refreshFstatLocked(false); err != nil {
		return nil, err
	}
	if offset+size > c.size {
		if err := c.refreshFstatLocked(true); err != nil {
			return nil, err
		}
	}
	if offset+size > c.size {
		return nil, fmt.Errorf("%w: range [%d,%d) exceeds file size %d", errs.ErrNoData, offset, offset+size, c.size)
	}

	if w := c.windows[ctx]; w != nil && offset >= w.base && offset+size <= w.base+uint64(len(w.data)) {
		return w.data[offset-w.base : offset+size-w.base], nil
	}

	return c.remapLocked(ctx, offset, size, keepAlways)
}

func (c *Cache) remapLocked(ctx Context, offset, size uint64, keepAlways bool) ([]byte, error) {
	if old := c.windows[ctx]; old != nil {
		_ = unix.Munmap(old.data)
		c.windows[ctx] = nil
	}

	mapBase := pageFloor(offset)
	mapEnd := pageCeil(offset + size)
	if mapEnd > c.size {
		mapEnd = pageCeil(c.size)
	}

	prot := unix.PROT_READ
	if c.writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(c.fd), int64(mapBase), int(mapEnd-mapBase), prot, unix.MAP_SHARED) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %v", errs.ErrIO, err)
	}

	c.windows[ctx] = &window{data: data, base: mapBase, keep: keepAlways}

	return data[offset-mapBase : offset+size-mapBase], nil
}

// Close unmaps every window this cache holds. It does not close the
// underlying file descriptor, which the caller owns.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for i, w := range c.windows {
		if w == nil {
			continue
		}
		if err := unix.Munmap(w.data); err != nil && firstErr == nil {
			firstErr = err
		}
		c.windows[i] = nil
	}

	return firstErr
}
