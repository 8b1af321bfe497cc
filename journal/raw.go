package journal

import (
	"github.com/arloliu/jrnl/internal/binutil"
	"github.com/arloliu/jrnl/internal/mmapcache"
)

// readU64/writeU64 read and write a single little-endian uint64 directly in
// the mapped arena at offset. They're used for the handful of mutable Data/
// Field fields (next_hash_offset aside, which hashtable.Table already owns)
// that this package threads through entryarray's pointer-style API without
// being able to take a real Go pointer into mmap'd memory: the chain-head
// fields live inside the object's payload bytes, so they're read, passed to
// entryarray by value, and written back.
func readU64(cache *mmapcache.Cache, offset uint64) (uint64, error) {
	buf, err := cache.Map(mmapcache.CtxScratch, offset, 8, false)
	if err != nil {
		return 0, err
	}
	return binutil.LE.Uint64(buf), nil
}

func writeU64(cache *mmapcache.Cache, offset, value uint64) error {
	buf, err := cache.Map(mmapcache.CtxScratch, offset, 8, false)
	if err != nil {
		return err
	}
	binutil.LE.PutUint64(buf, value)
	return nil
}
