package journal

import (
	"github.com/arloliu/jrnl/entryarray"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/heap"
	"golang.org/x/sys/unix"
)

// allocateObject is heap.Allocate bound to f's header, cache, and metrics
// policy, looking up free space fresh on every call (§4.2).
func allocateObject(f *File, objType format.ObjectType, size uint64) (uint64, error) {
	free, err := f.freeBytes()
	if err != nil {
		return 0, err
	}
	return heap.Allocate(f.hdr, f.cache, f.metrics, free, objType, size)
}

// appendToGlobalChain is entryarray.Append bound to f, for the file-wide
// chain of every entry in append order (§4.4, §4.5 step 6).
func appendToGlobalChain(f *File, first *uint64, n int, value uint64) error {
	free, err := f.freeBytes()
	if err != nil {
		return err
	}
	return entryarray.Append(f.hdr, f.cache, f.metrics, free, first, n, value)
}

// appendEntryArrayPlusOne is entryarray.AppendPlusOne bound to f, for a
// single Data object's per-value chain (§4.4 "plus-one" variant).
func appendEntryArrayPlusOne(f *File, inlineFirst, chainFirst *uint64, n int, value uint64, free uint64) error {
	return entryarray.AppendPlusOne(f.hdr, f.cache, f.metrics, free, inlineFirst, chainFirst, n, value)
}

// ftruncateNoop truncates fd to its own current size: a no-op on disk
// layout that still updates the file's mtime/ctime and wakes any reader
// blocked in select/poll/inotify on this descriptor (§4.5 step 9).
func ftruncateNoop(fd int, size int64) error {
	return unix.Ftruncate(fd, size)
}
