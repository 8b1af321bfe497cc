// Package jrnl implements an append-only, memory-mapped, content-addressed
// log file format and the engine that reads and writes it.
//
// # Core Features
//
//   - Content-addressed storage: identical field=value pairs are written once
//     and referenced by every entry that uses them
//   - Memory-mapped arena with a fixed 256-byte header and hash-chained
//     objects, never rewritten in place
//   - Seek by sequence number, wall-clock time, per-boot monotonic time, or
//     raw file offset, all via binary search over append-ordered chains
//   - Optional per-value compression (xz, lz4, zstd) above a configurable
//     size threshold
//   - Keyed or legacy 64-bit content hashing, selectable per file
//   - Rotation into a successor file that inherits the predecessor's
//     sequence-number lineage, with corrupt-file quarantine via dispose
//
// # Basic Usage
//
// Opening a file and appending entries:
//
//	f, err := jrnl.Open("app.journal", os.O_RDWR, 0o644,
//	    jrnl.WithCompression(format.CompressionCodecZstd, 512),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Close()
//
//	_, err = f.AppendEntry(jrnl.NowRealtime(), 0, []jrnl.EntryInput{
//	    {Name: []byte("MESSAGE"), Value: []byte("service started")},
//	    {Name: []byte("PRIORITY"), Value: []byte("6")},
//	})
//
// Recovering from a corrupt file automatically:
//
//	f, err := jrnl.OpenReliably("app.journal", os.O_RDWR, 0o644)
//
// Rotating once a rotation trigger holds (a hash table over 75% full, a hash
// chain deeper than 100, a stale header layout, or a maximum age):
//
//	if f.RotateSuggested(0) {
//	    successor, err := f.Rotate()
//	    // ... close f, continue appending to successor
//	}
//
// # Package Structure
//
// This package is a thin convenience layer over package journal, which holds
// the actual file-lifecycle, append, and seek implementation. Use package
// journal directly for access to Config and the lower-level object layout
// packages (format, heap, hashtable, entryarray) that journal is built on.
package jrnl

import (
	"os"
	"time"

	"github.com/arloliu/jrnl/journal"
	"github.com/arloliu/jrnl/metrics"
)

// Metrics is the size/free-space policy a file is bound by (§4.8).
type Metrics = metrics.Metrics

// File is one open journal file. See journal.File for the full method set:
// AppendEntry, the seek family, next_entry/next_entry_for_data,
// CopyEntryFrom, Rotate, Archive, SetOnline, Close.
type File = journal.File

// Option configures a File at Open/OpenReliably time.
type Option = journal.Option

// EntryInput is one field=value pair to write as part of a single entry.
type EntryInput = journal.EntryInput

// Location is a saved cursor (seqnum, realtime, monotonic, boot_id,
// xor_hash) a reader can compare against another Location to resume a scan
// across files in the same rotation lineage.
type Location = journal.Location

// Template carries a predecessor's seqnum_id lineage and tail sequence
// number into a newly created file.
type Template = journal.Template

// Direction selects which edge a seek or next_entry resolves toward.
type Direction = journal.Direction

const (
	Down = journal.Down
	Up   = journal.Up
)

// Open opens or creates the journal file at path.
func Open(path string, flag int, mode os.FileMode, opts ...Option) (*File, error) {
	return journal.Open(path, flag, mode, opts...)
}

// OpenReliably behaves like Open, but quarantines a corrupt file (renaming
// it aside) and retries exactly once with a fresh file at path.
func OpenReliably(path string, flag int, mode os.FileMode, opts ...Option) (*File, error) {
	return journal.OpenReliably(path, flag, mode, opts...)
}

// Dispose renames a corrupt file out of the way with a timestamp+random
// suffix, without attempting to open a successor.
func Dispose(path string) error {
	return journal.Dispose(path)
}

// WithCompression enables codec for newly written values at least threshold
// bytes long.
var WithCompression = journal.WithCompression

// WithSealing turns on the forward-secure-sealing hook points for a
// caller-supplied implementation to attach to.
var WithSealing = journal.WithSealing

// WithKeyedHash selects keyed (true) or legacy (false) content hashing for
// the data table.
var WithKeyedHash = journal.WithKeyedHash

// WithMetrics overrides the size/free-space policy that would otherwise be
// derived from the filesystem at open time.
var WithMetrics = journal.WithMetrics

// WithLogger attaches a structured logger for diagnostics.
var WithLogger = journal.WithLogger

// WithTemplate carries a predecessor's seqnum_id lineage into a newly
// created file. Rotate builds one automatically; most callers never need to
// pass this directly.
var WithTemplate = journal.WithTemplate

// BootIDHex renders a 16-byte boot id the way by_monotonic expects a
// caller-supplied "_BOOT_ID" field value.
var BootIDHex = journal.BootIDHex

// DefaultMetrics derives the size/free-space policy a writable file would
// get if opened without WithMetrics, from the filesystem backing fd.
var DefaultMetrics = journal.DefaultMetrics

// NowRealtime returns the current wall-clock time in the journal's realtime
// unit (microseconds since the Unix epoch).
func NowRealtime() uint64 {
	return uint64(time.Now().UnixMicro()) //nolint:gosec
}
