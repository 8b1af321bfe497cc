package hashtable

import (
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/heap"
	"github.com/arloliu/jrnl/internal/mmapcache"
	"github.com/arloliu/jrnl/metrics"
)

// CreateDataTable allocates a fresh, empty data hash table object sized from
// m.MaxSize and records its offset and size in hdr. Called once, during file
// initialization (§4.7 "open" when no objects exist yet).
func CreateDataTable(hdr *format.Header, cache *mmapcache.Cache, m metrics.Metrics, statvfsFreeBytes uint64) (*Table, error) {
	n := DataTableBuckets(m.MaxSize)
	size := format.HashTableSize(n)

	off, err := heap.Allocate(hdr, cache, m, statvfsFreeBytes, format.ObjectDataHashTable, size)
	if err != nil {
		return nil, err
	}

	hdr.DataHashTableOffset = off
	hdr.DataHashTableSize = size

	return Open(cache, hdr, KindData)
}

// CreateFieldTable allocates a fresh, empty field-name hash table object
// with the fixed FieldTableBuckets bucket count.
func CreateFieldTable(hdr *format.Header, cache *mmapcache.Cache, m metrics.Metrics, statvfsFreeBytes uint64) (*Table, error) {
	size := format.HashTableSize(FieldTableBuckets)

	off, err := heap.Allocate(hdr, cache, m, statvfsFreeBytes, format.ObjectFieldHashTable, size)
	if err != nil {
		return nil, err
	}

	hdr.FieldHashTableOffset = off
	hdr.FieldHashTableSize = size

	return Open(cache, hdr, KindField)
}
