package journal

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/binutil"
	"github.com/arloliu/jrnl/internal/hashing"
	"github.com/arloliu/jrnl/internal/mmapcache"
)

// bootIDFieldName is the conventional field name by_monotonic and
// cutoff_monotonic look for when locating entries from a given boot
// (§4.5 "by_monotonic"), mirroring journald's own _BOOT_ID convention: the
// caller supplies it like any other field, and it rides the same per-data
// entry-array chain every other value does, naturally in append order
// within a boot. The engine never adds it on its own.
var bootIDFieldName = []byte("_BOOT_ID")

func bootIDHex(bootID []byte) []byte {
	return []byte(hex.EncodeToString(bootID))
}

// EntryInput is one field=value pair a caller wants written as part of a
// single log entry.
type EntryInput struct {
	Name  []byte
	Value []byte
}

// fieldNameValid checks the field-name syntax rule (§4.5 step 2): 1-64
// bytes, characters [A-Z0-9_], first character not a digit. A leading
// underscore is otherwise reserved, with one exception: _BOOT_ID, which a
// caller may supply like any other field so by_monotonic has something to
// index (journald's own clients do the same).
func fieldNameValid(name []byte) bool {
	if len(name) == 0 || len(name) > 64 {
		return false
	}
	if bytes.Equal(name, bootIDFieldName) {
		return true
	}
	if name[0] == '_' || (name[0] >= '0' && name[0] <= '9') {
		return false
	}
	for _, b := range name {
		switch {
		case b >= 'A' && b <= 'Z':
		case b >= '0' && b <= '9':
		case b == '_':
		default:
			return false
		}
	}
	return true
}

// AppendEntry writes one new log entry containing every field in fields,
// assigning it the next sequence number and linking it into the global
// entry-array chain and into each referenced Data object's per-value chain
// (§4.5).
//
// Field-name validation runs over every input before any allocation or
// mutation happens: an invalid name fails the whole append with
// bad-message and leaves the file exactly as it was (§4.5 step 2).
func (f *File) AppendEntry(realtime, monotonic uint64, fields []EntryInput) (uint64, error) {
	if !f.writable {
		return 0, errs.NewLifecycleError("append", errs.ErrPerm).WithPath(f.path)
	}
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: entry must have at least one field", errs.ErrBadMessage)
	}
	if !binutil.ValidRealtime(realtime) {
		return 0, fmt.Errorf("%w: invalid realtime timestamp %d", errs.ErrBadMessage, realtime)
	}
	if !binutil.ValidMonotonic(monotonic) {
		return 0, fmt.Errorf("%w: invalid monotonic timestamp %d", errs.ErrBadMessage, monotonic)
	}

	for _, in := range fields {
		if !fieldNameValid(in.Name) {
			return 0, fmt.Errorf("%w: invalid field name %q", errs.ErrBadMessage, in.Name)
		}
	}

	return f.appendEntryRaw(realtime, monotonic, [16]byte(hostBootID()), fields)
}

// appendEntryRaw is AppendEntry's core (§4.5 steps 2-9), parameterized on
// boot_id so CopyEntryFrom can preserve a source entry's original boot_id
// instead of stamping the destination host's. It links exactly the fields
// the caller passed in, nothing more: by_monotonic only finds entries for a
// boot whose _BOOT_ID the caller chose to include as a field.
func (f *File) appendEntryRaw(realtime, monotonic uint64, bootID [16]byte, fields []EntryInput) (uint64, error) {
	type linked struct {
		offset uint64
		hash   uint64
	}
	items := make([]linked, 0, len(fields))
	seen := make(map[uint64]bool, len(fields))
	xorHash := uint64(0)

	for _, in := range fields {
		dataOff, err := f.findOrCreateData(in.Name, in.Value)
		if err != nil {
			return 0, err
		}
		if seen[dataOff] {
			continue
		}
		seen[dataOff] = true

		dataHashBuf, err := f.cache.Map(mmapcache.CtxScratch, dataOff+format.ObjectHeaderSize, 8, false)
		if err != nil {
			return 0, err
		}
		items = append(items, linked{offset: dataOff, hash: binutil.LE.Uint64(dataHashBuf)})

		// xor_hash is always the stable non-keyed hash of the plaintext
		// name=value, even on files using keyed hashing for the data table
		// (§4.5 step 4): cursors embed it and must stay comparable across a
		// rotation lineage whose files use different keyed-hash keys.
		xorHash ^= hashing.StableNonKeyed(composeNameValue(in.Name, in.Value))
	}

	sort.Slice(items, func(i, j int) bool { return items[i].offset < items[j].offset })

	seqnum := f.hdr.TailEntrySeqnum + 1

	entry := format.Entry{
		Seqnum:    seqnum,
		Realtime:  realtime,
		Monotonic: monotonic,
		BootID:    bootID,
		XorHash:   xorHash,
	}
	for _, it := range items {
		entry.Items = append(entry.Items, format.EntryItem{DataOffset: it.offset, Hash: it.hash})
	}

	entryBytes := entry.Bytes()
	size := format.EntrySize(len(entry.Items))

	entryOff, err := allocateObject(f, format.ObjectEntry, size)
	if err != nil {
		return 0, err
	}

	buf, err := f.cache.Map(mmapcache.CtxEntry, entryOff, size, false)
	if err != nil {
		return 0, err
	}
	format.PutObjectHeader(buf, format.ObjectHeader{Type: format.ObjectEntry, Size: size})
	copy(buf[format.ObjectHeaderSize:], entryBytes)

	if f.cfg.Sealing {
		if err := f.seal.hmacPutObject(f, entryOff); err != nil {
			return 0, err
		}
		if f.hdr.NEntries == 0 {
			if err := f.seal.appendFirstTag(f); err != nil {
				return 0, err
			}
		} else if err := f.seal.maybeAppendTag(f); err != nil {
			return 0, err
		}
	}

	if err := appendToGlobalChain(f, &f.hdr.EntryArrayOffset, int(f.hdr.NEntries), entryOff); err != nil {
		return 0, err
	}

	for _, it := range items {
		if err := f.linkEntryIntoDataChain(it.offset, entryOff); err != nil {
			return 0, err
		}
	}

	f.hdr.NEntries++
	f.hdr.TailEntrySeqnum = seqnum
	if f.hdr.HeadEntrySeqnum == 0 {
		f.hdr.HeadEntrySeqnum = seqnum
	}
	if f.hdr.HeadEntryRealtime == 0 {
		f.hdr.HeadEntryRealtime = realtime
	}
	f.hdr.TailEntryRealtime = realtime
	f.hdr.TailEntryMonotonic = monotonic

	if err := f.flushHeader(); err != nil {
		return 0, err
	}

	f.notifyAppend()

	return entryOff, nil
}

// linkEntryIntoDataChain appends entryOff to the per-data chain owned by the
// Data object at dataOff, threading entryarray's pointer-style plus-one
// append through the object's mapped payload fields via raw offset reads
// and writes (§4.4, §4.5 step 5).
func (f *File) linkEntryIntoDataChain(dataOff, entryOff uint64) error {
	const entryOffsetOff = 32
	const entryArrayOffsetOff = 40
	const nEntriesOff = 48

	inline, err := readU64(f.cache, dataOff+format.ObjectHeaderSize+entryOffsetOff)
	if err != nil {
		return err
	}
	chainFirst, err := readU64(f.cache, dataOff+format.ObjectHeaderSize+entryArrayOffsetOff)
	if err != nil {
		return err
	}
	nEntries, err := readU64(f.cache, dataOff+format.ObjectHeaderSize+nEntriesOff)
	if err != nil {
		return err
	}

	free, err := f.freeBytes()
	if err != nil {
		return err
	}

	if err := appendEntryArrayPlusOne(f, &inline, &chainFirst, int(nEntries), entryOff, free); err != nil {
		return err
	}

	if err := writeU64(f.cache, dataOff+format.ObjectHeaderSize+entryOffsetOff, inline); err != nil {
		return err
	}
	if err := writeU64(f.cache, dataOff+format.ObjectHeaderSize+entryArrayOffsetOff, chainFirst); err != nil {
		return err
	}

	return writeU64(f.cache, dataOff+format.ObjectHeaderSize+nEntriesOff, nEntries+1)
}

// notifyAppend best-effort nudges blocked readers (§4.5 step 9): a 0-length
// ftruncate to the file's current size is a POSIX-portable way to wake up a
// process blocked in select/poll on this descriptor without needing a
// separate notification channel.
func (f *File) notifyAppend() {
	size := f.cache.Size()
	_ = ftruncateNoop(int(f.f.Fd()), int64(size)) //nolint:gosec
}

// nowRealtime returns the current wall-clock time in the journal's realtime
// unit (microseconds since the Unix epoch), for callers that don't supply
// their own timestamp.
func nowRealtime() uint64 {
	return uint64(time.Now().UnixMicro()) //nolint:gosec
}
