package journal

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/arloliu/jrnl/entryarray"
	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/mmapcache"
	"go.uber.org/zap"
)

// Direction selects which edge a seek or next_entry resolves ties or
// out-of-range steps toward.
type Direction = entryarray.Direction

const (
	Down = entryarray.Down
	Up   = entryarray.Up
)

// SeekBySeqnum is by_seqnum(s, direction) (§4.5): finds the entry whose
// seqnum matches seqnum, or the nearest one in dir if no exact match exists.
func (f *File) SeekBySeqnum(seqnum uint64, dir Direction) (uint64, error) {
	return f.seekBySeqnum(seqnum, dir)
}

// SeekByRealtime is by_realtime(t, direction) (§4.5).
func (f *File) SeekByRealtime(realtime uint64, dir Direction) (uint64, error) {
	return f.seekByRealtime(realtime, dir)
}

// SeekByOffset is by_offset(p, direction) (§4.5).
func (f *File) SeekByOffset(offset uint64, dir Direction) (uint64, error) {
	return f.seekByOffset(offset, dir)
}

// SeekByMonotonic is by_monotonic(boot_id, t, direction) (§4.5).
func (f *File) SeekByMonotonic(bootID [16]byte, monotonic uint64, dir Direction) (uint64, error) {
	return f.seekByMonotonic(bootID, monotonic, dir)
}

// NextEntry is next_entry(p, direction) (§4.5): steps one slot from the
// entry at offset p in the global chain.
func (f *File) NextEntry(p uint64, dir Direction) (uint64, error) {
	return f.nextEntry(p, dir)
}

// NextEntryForData is next_entry_for_data(entry, p, data, direction)
// (§4.5): steps one slot from offset p within the per-data chain owned by
// the Data object at dataOff.
func (f *File) NextEntryForData(dataOff, p uint64, dir Direction) (uint64, error) {
	return f.nextEntryForData(dataOff, p, dir)
}

// readEntry maps and parses the Entry object at offset, returning a
// bad-message-wrapped error for anything that doesn't look like a valid
// entry so bisection and next_entry can treat it as a corrupt slot rather
// than aborting the whole search (§4.4, §4.5).
func (f *File) readEntry(offset uint64) (format.Entry, error) {
	ohBuf, err := f.cache.Map(mmapcache.CtxScratch, offset, format.ObjectHeaderSize, false)
	if err != nil {
		return format.Entry{}, err
	}
	oh, err := format.ParseObjectHeader(ohBuf)
	if err != nil {
		return format.Entry{}, err
	}
	if oh.Type != format.ObjectEntry {
		return format.Entry{}, fmt.Errorf("%w: expected entry object at offset %d, found %s", errs.ErrBadMessage, offset, oh.Type)
	}

	payloadBuf, err := f.cache.Map(mmapcache.CtxEntry, offset+format.ObjectHeaderSize, oh.Size-format.ObjectHeaderSize, false)
	if err != nil {
		return format.Entry{}, err
	}
	return format.ParseEntry(payloadBuf)
}

func (f *File) logBadSlot(where string, offset uint64, err error) {
	f.log.Debug("skipping corrupt slot", zap.String("where", where), zap.Uint64("offset", offset), zap.Error(err))
}

// seekBySeqnum is by_seqnum(s, direction) (§4.5): bisects the global chain
// for the entry whose seqnum matches s.
func (f *File) seekBySeqnum(seqnum uint64, dir entryarray.Direction) (uint64, error) {
	offset, _, err := entryarray.Bisect(f.cache, f.chains, f.hdr.EntryArrayOffset, int(f.hdr.NEntries),
		func(offset uint64) (entryarray.Comparison, error) {
			e, err := f.readEntry(offset)
			if err != nil {
				return 0, err
			}
			return compareUint64(e.Seqnum, seqnum), nil
		}, dir)
	if err != nil {
		return 0, err
	}
	if offset == 0 {
		return 0, errs.ErrNotFound
	}
	return offset, nil
}

// seekByRealtime is by_realtime(t, direction) (§4.5).
func (f *File) seekByRealtime(realtime uint64, dir entryarray.Direction) (uint64, error) {
	offset, _, err := entryarray.Bisect(f.cache, f.chains, f.hdr.EntryArrayOffset, int(f.hdr.NEntries),
		func(offset uint64) (entryarray.Comparison, error) {
			e, err := f.readEntry(offset)
			if err != nil {
				return 0, err
			}
			return compareUint64(e.Realtime, realtime), nil
		}, dir)
	if err != nil {
		return 0, err
	}
	if offset == 0 {
		return 0, errs.ErrNotFound
	}
	return offset, nil
}

// seekByOffset is by_offset(p, direction) (§4.5): bisects the global chain
// by the entry object's own file offset.
func (f *File) seekByOffset(target uint64, dir entryarray.Direction) (uint64, error) {
	offset, _, err := entryarray.Bisect(f.cache, f.chains, f.hdr.EntryArrayOffset, int(f.hdr.NEntries),
		func(offset uint64) (entryarray.Comparison, error) {
			return compareUint64(offset, target), nil
		}, dir)
	if err != nil {
		return 0, err
	}
	if offset == 0 {
		return 0, errs.ErrNotFound
	}
	return offset, nil
}

// seekByMonotonic is by_monotonic(boot_id, t, direction) (§4.5): locates the
// "_BOOT_ID=<hex>" Data object for boot_id, then bisects its per-data entry
// chain by monotonic time. This only finds anything for boots whose entries
// were appended with a caller-supplied _BOOT_ID field; the engine does not
// add one on its own.
func (f *File) seekByMonotonic(bootID [16]byte, monotonic uint64, dir entryarray.Direction) (uint64, error) {
	dataOff, err := f.findData(bootIDFieldName, bootIDHex(bootID[:]))
	if err != nil {
		return 0, err
	}
	if dataOff == 0 {
		return 0, errs.ErrNotFound
	}

	d, err := f.readDataChainFields(dataOff)
	if err != nil {
		return 0, err
	}

	offset, _, err := entryarray.BisectPlusOne(f.cache, f.chains, d.entryOffset, d.entryArrayOffset, int(d.nEntries),
		func(candidate uint64) (entryarray.Comparison, error) {
			e, err := f.readEntry(candidate)
			if err != nil {
				return 0, err
			}
			return compareUint64(e.Monotonic, monotonic), nil
		}, dir)
	if err != nil {
		return 0, err
	}
	if offset == 0 {
		return 0, errs.ErrNotFound
	}

	return offset, nil
}

type dataChainFields struct {
	entryOffset      uint64
	entryArrayOffset uint64
	nEntries         uint64
}

func (f *File) readDataChainFields(dataOff uint64) (dataChainFields, error) {
	const entryOffsetOff = 32
	const entryArrayOffsetOff = 40
	const nEntriesOff = 48

	eo, err := readU64(f.cache, dataOff+format.ObjectHeaderSize+entryOffsetOff)
	if err != nil {
		return dataChainFields{}, err
	}
	ea, err := readU64(f.cache, dataOff+format.ObjectHeaderSize+entryArrayOffsetOff)
	if err != nil {
		return dataChainFields{}, err
	}
	n, err := readU64(f.cache, dataOff+format.ObjectHeaderSize+nEntriesOff)
	if err != nil {
		return dataChainFields{}, err
	}

	return dataChainFields{entryOffset: eo, entryArrayOffset: ea, nEntries: n}, nil
}

func compareUint64(candidate, target uint64) entryarray.Comparison {
	switch {
	case candidate == target:
		return entryarray.Equal
	case candidate < target:
		return entryarray.Less
	default:
		return entryarray.Greater
	}
}

// nextEntry is next_entry(p, direction) (§4.5): locates the entry at p in
// the global chain, then steps one slot in direction, skipping past
// corrupt slots with a debug log and enforcing that the step strictly moves
// the offset in the requested direction (§4.5 "ordering guarantee").
func (f *File) nextEntry(p uint64, dir entryarray.Direction) (uint64, error) {
	first := f.hdr.EntryArrayOffset
	n := int(f.hdr.NEntries)

	found, idx, err := entryarray.Bisect(f.cache, f.chains, first, n, func(off uint64) (entryarray.Comparison, error) {
		return compareUint64(off, p), nil
	}, dir)
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, errs.ErrNotFound
	}

	return f.stepIndex(func(i int) (uint64, error) {
		return entryarray.ItemAt(f.cache, f.chains, first, n, i)
	}, n, idx, p, dir)
}

// nextEntryForData is next_entry_for_data(entry, p, data, direction) (§4.5):
// the same step, but within a single Data object's per-data chain.
func (f *File) nextEntryForData(dataOff, p uint64, dir entryarray.Direction) (uint64, error) {
	d, err := f.readDataChainFields(dataOff)
	if err != nil {
		return 0, err
	}
	n := int(d.nEntries)

	found, idx, err := entryarray.BisectPlusOne(f.cache, f.chains, d.entryOffset, d.entryArrayOffset, n,
		func(off uint64) (entryarray.Comparison, error) {
			return compareUint64(off, p), nil
		}, dir)
	if err != nil {
		return 0, err
	}
	if found == 0 {
		return 0, errs.ErrNotFound
	}

	return f.stepIndex(func(i int) (uint64, error) {
		return entryarray.ItemAtPlusOne(f.cache, f.chains, d.entryOffset, d.entryArrayOffset, n, i)
	}, n, idx, p, dir)
}

// stepIndex walks from idx one slot at a time in dir, using itemAt to
// resolve each candidate index to an offset, skipping bad-message slots
// with a debug log and enforcing the requested direction strictly moves the
// offset (§4.5 "ordering guarantee", §9's strict-both-directions resolution
// of the per-data vs. global path discrepancy).
func (f *File) stepIndex(itemAt func(int) (uint64, error), n, idx int, prevOffset uint64, dir entryarray.Direction) (uint64, error) {
	step := 1
	if dir == entryarray.Up {
		step = -1
	}

	for {
		idx += step
		if idx < 0 || idx >= n {
			return 0, errs.ErrNotFound
		}

		candidate, err := itemAt(idx)
		if err != nil {
			if errors.Is(err, errs.ErrBadMessage) {
				f.logBadSlot("next_entry", prevOffset, err)
				continue
			}
			return 0, err
		}

		if dir == entryarray.Down && candidate <= prevOffset {
			return 0, fmt.Errorf("%w: next_entry step did not strictly increase offset", errs.ErrBadMessage)
		}
		if dir == entryarray.Up && candidate >= prevOffset {
			return 0, fmt.Errorf("%w: next_entry step did not strictly decrease offset", errs.ErrBadMessage)
		}

		return candidate, nil
	}
}

// Location is the cursor value a reader can save and later resume from
// (§6.3 save_location/reset_location): boot_id, monotonic, realtime,
// xor_hash, the file's seqnum_id lineage, and seqnum.
type Location struct {
	SeqnumID  [16]byte
	Seqnum    uint64
	Realtime  uint64
	Monotonic uint64
	BootID    [16]byte
	XorHash   uint64
}

// LocationOf builds a Location from the entry at offset, for save_location.
func (f *File) LocationOf(offset uint64) (Location, error) {
	e, err := f.readEntry(offset)
	if err != nil {
		return Location{}, err
	}
	return Location{
		SeqnumID:  f.hdr.SeqnumID,
		Seqnum:    e.Seqnum,
		Realtime:  e.Realtime,
		Monotonic: e.Monotonic,
		BootID:    e.BootID,
		XorHash:   e.XorHash,
	}, nil
}

// Compare orders two Locations per §4.5's cursor-compare rule: full
// boot_id+monotonic+realtime+xor_hash+seqnum_id+seqnum identity first; else
// same seqnum_id compares by seqnum; else same boot_id compares by
// monotonic; else realtime; else xor_hash.
func (a Location) Compare(b Location) int {
	identical := a.BootID == b.BootID && a.Monotonic == b.Monotonic && a.Realtime == b.Realtime &&
		a.XorHash == b.XorHash && a.SeqnumID == b.SeqnumID && a.Seqnum == b.Seqnum
	if identical {
		return 0
	}

	if a.SeqnumID == b.SeqnumID {
		return cmpUint64(a.Seqnum, b.Seqnum)
	}
	if a.BootID == b.BootID {
		return cmpUint64(a.Monotonic, b.Monotonic)
	}
	if a.Realtime != b.Realtime {
		return cmpUint64(a.Realtime, b.Realtime)
	}

	return cmpUint64(a.XorHash, b.XorHash)
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// CutoffRealtime reports the realtime timestamps of the file's oldest and
// newest entry (§6.3 cutoff_realtime).
func (f *File) CutoffRealtime() (from, to uint64) {
	return f.hdr.HeadEntryRealtime, f.hdr.TailEntryRealtime
}

// CutoffMonotonic reports the monotonic range of entries belonging to
// bootID (§6.3 cutoff_monotonic): the first and last entry in that boot's
// per-data chain on the _BOOT_ID marker. Returns ErrNotFound if no entry in
// this file was appended with a _BOOT_ID field matching bootID.
func (f *File) CutoffMonotonic(bootID [16]byte) (from, to uint64, err error) {
	dataOff, err := f.findData(bootIDFieldName, bootIDHex(bootID[:]))
	if err != nil {
		return 0, 0, err
	}
	if dataOff == 0 {
		return 0, 0, errs.ErrNotFound
	}

	d, err := f.readDataChainFields(dataOff)
	if err != nil {
		return 0, 0, err
	}
	if d.nEntries == 0 {
		return 0, 0, errs.ErrNotFound
	}

	n := int(d.nEntries)
	firstOff, err := entryarray.ItemAtPlusOne(f.cache, f.chains, d.entryOffset, d.entryArrayOffset, n, 0)
	if err != nil {
		return 0, 0, err
	}
	lastOff, err := entryarray.ItemAtPlusOne(f.cache, f.chains, d.entryOffset, d.entryArrayOffset, n, n-1)
	if err != nil {
		return 0, 0, err
	}

	firstEntry, err := f.readEntry(firstOff)
	if err != nil {
		return 0, 0, err
	}
	lastEntry, err := f.readEntry(lastOff)
	if err != nil {
		return 0, 0, err
	}

	return firstEntry.Monotonic, lastEntry.Monotonic, nil
}

// BootIDHex is a small helper for callers that want to print or compare a
// boot id the way a caller-supplied _BOOT_ID field value is looked up.
func BootIDHex(bootID [16]byte) string {
	return hex.EncodeToString(bootID[:])
}
