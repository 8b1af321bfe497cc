package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/format"
)

// procSelfFdPrefix is how a descriptor-only path (no real directory entry)
// shows up when a caller opened a file via /proc/self/fd/<n> (§4.7
// "Rotate" refuses this: there is nothing to rename).
const procSelfFdPrefix = "/proc/self/fd/"

// archivedName builds the §6.2 archived filename:
// prefix@<seqnum_id-hex>-<head_seqnum-hex>-<head_realtime-hex>.journal
func archivedName(path string, hdr *format.Header) string {
	return fmt.Sprintf("%s@%x-%016x-%016x.journal",
		trimJournalSuffix(path), hdr.SeqnumID[:], hdr.HeadEntrySeqnum, hdr.HeadEntryRealtime)
}

// Rotate renames the live file away under the §6.2 archived name, arranges
// for the offline worker to commit state=archived on its next cycle, marks
// this File for defrag on Close, and opens a successor file at the original
// path using this file as a template so the seqnum_id lineage and tail
// sequence number carry over (§4.7 "Rotate").
//
// f itself keeps referring to the renamed (now archived-pending) file; the
// caller is expected to eventually Close it and switch to the returned
// successor for further appends.
func (f *File) Rotate(opts ...Option) (*File, error) {
	if !f.writable {
		return nil, errs.NewLifecycleError("rotate", errs.ErrPerm).WithPath(f.path)
	}
	if strings.HasPrefix(f.path, procSelfFdPrefix) {
		return nil, errs.NewLifecycleError("rotate", errs.ErrPerm).WithPath(f.path).
			WithDetail("reason", "cannot rotate a file with no real pathname")
	}

	archived := archivedName(f.path, f.hdr)
	if err := os.Rename(f.path, archived); err != nil {
		return nil, errs.NewLifecycleError("rotate", errs.ErrIO).WithPath(f.path).WithCause(err)
	}
	if err := fsyncDir(archived); err != nil {
		return nil, err
	}

	f.path = archived
	f.defragOnClose = true

	if err := f.offline.SetOffline(false, true); err != nil {
		return nil, err
	}

	template := Template{SeqnumID: f.hdr.SeqnumID, TailEntrySeqnum: f.hdr.TailEntrySeqnum}
	successorOpts := append([]Option{WithTemplate(template)}, opts...)

	successor, err := Open(f.origPath(), os.O_RDWR, 0o644, successorOpts...)
	if err != nil {
		return nil, err
	}

	return successor, nil
}

// origPath recovers the live pathname a rotated File used to have, by
// stripping the §6.2 archived suffix this file's current path now carries.
func (f *File) origPath() string {
	base := filepath.Base(f.path)
	if idx := strings.IndexByte(base, '@'); idx >= 0 {
		base = base[:idx]
	}
	return filepath.Join(filepath.Dir(f.path), base+".journal")
}

// Dispose renames a corrupt file out of the way with a timestamp+random
// suffix, per §6.2's "disposed" convention, without attempting to open a
// successor. Used by OpenReliably and manual recovery paths; see
// disposePath in file.go for the actual rename.
func Dispose(path string) error {
	return disposePath(path)
}

// RotateSuggested is rotate_suggested(max_age) (§4.7): reports whether any
// rotation trigger holds for f as it stands right now.
//
//   - the on-disk header predates the layout this build writes
//   - either hash table's load factor (n / buckets) exceeds 75%
//   - the longest hash chain ever observed for either table exceeds 100
//   - n_data > 0 but n_fields == 0 (a structural inconsistency: every Data
//     object must be owned by some Field)
//   - the file is older than maxAgeUsec (realtime units), when maxAgeUsec
//     is nonzero; age is measured from head_entry_realtime to now
func (f *File) RotateSuggested(maxAgeUsec uint64) bool {
	if f.hdr.HeaderSize < format.HeaderSize {
		return true
	}

	if loadFactor(f.hdr.NData, f.dataTbl.NumBuckets()) > 0.75 {
		return true
	}
	if loadFactor(f.hdr.NFields, f.fieldTbl.NumBuckets()) > 0.75 {
		return true
	}

	if f.hdr.DataHashChainDepth > 100 || f.hdr.FieldHashChainDepth > 100 {
		return true
	}

	if f.hdr.NData > 0 && f.hdr.NFields == 0 {
		return true
	}

	if maxAgeUsec != 0 && f.hdr.HeadEntryRealtime != 0 {
		age := nowRealtime() - f.hdr.HeadEntryRealtime
		if age > maxAgeUsec {
			return true
		}
	}

	return false
}

func loadFactor(n uint64, buckets int) float64 {
	if buckets == 0 {
		return 0
	}
	return float64(n) / float64(buckets)
}
