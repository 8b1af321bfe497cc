package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/arloliu/jrnl/errs"
)

func openTestFile(t *testing.T, opts ...Option) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.journal")
	f, err := Open(path, os.O_RDWR, 0o644, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAppendEntryThenSeekBySeqnum(t *testing.T) {
	f := openTestFile(t)

	off, err := f.AppendEntry(1000, 10, []EntryInput{
		{Name: []byte("MESSAGE"), Value: []byte("hello")},
	})
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	found, err := f.SeekBySeqnum(1, Down)
	if err != nil {
		t.Fatalf("SeekBySeqnum: %v", err)
	}
	if found != off {
		t.Fatalf("SeekBySeqnum returned %d, want %d", found, off)
	}

	if _, err := f.SeekBySeqnum(999, Down); err == nil {
		t.Fatal("expected SeekBySeqnum to fail for a seqnum beyond the tail")
	}
}

func TestAppendEntryDedupesIdenticalFieldValue(t *testing.T) {
	f := openTestFile(t)

	off1, err := f.AppendEntry(1000, 10, []EntryInput{
		{Name: []byte("MESSAGE"), Value: []byte("same")},
	})
	if err != nil {
		t.Fatalf("AppendEntry #1: %v", err)
	}
	off2, err := f.AppendEntry(1001, 11, []EntryInput{
		{Name: []byte("MESSAGE"), Value: []byte("same")},
	})
	if err != nil {
		t.Fatalf("AppendEntry #2: %v", err)
	}
	if off1 == off2 {
		t.Fatal("expected two distinct entry objects")
	}

	e1, err := f.readEntry(off1)
	if err != nil {
		t.Fatalf("readEntry #1: %v", err)
	}
	e2, err := f.readEntry(off2)
	if err != nil {
		t.Fatalf("readEntry #2: %v", err)
	}

	if len(e1.Items) != 1 || len(e2.Items) != 1 {
		t.Fatalf("expected each entry to carry exactly the one field it was appended with, got %d and %d items", len(e1.Items), len(e2.Items))
	}

	dataOff1 := e1.Items[0].DataOffset
	dataOff2 := e2.Items[0].DataOffset
	if dataOff1 != dataOff2 {
		t.Fatalf("expected both entries to reference the same Data object, got %d and %d", dataOff1, dataOff2)
	}
}

// TestAppendEntryOmitsBootIDUnlessSupplied pins down that the engine never
// synthesizes a _BOOT_ID field on its own (§4.5): by_monotonic only has
// something to search when the caller includes it explicitly.
func TestAppendEntryOmitsBootIDUnlessSupplied(t *testing.T) {
	f := openTestFile(t)

	off, err := f.AppendEntry(1000, 10, []EntryInput{
		{Name: []byte("MESSAGE"), Value: []byte("hello")},
	})
	if err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	entry, err := f.readEntry(off)
	if err != nil {
		t.Fatalf("readEntry: %v", err)
	}
	if len(entry.Items) != 1 {
		t.Fatalf("expected 1 item on an entry appended with a single field, got %d", len(entry.Items))
	}

	if _, _, err := f.CutoffMonotonic(entry.BootID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("CutoffMonotonic = %v, want ErrNotFound since no _BOOT_ID field was appended", err)
	}
}

// TestSeekByMonotonicFindsCallerSuppliedBootID exercises by_monotonic against
// entries that carry an explicit _BOOT_ID field, the way a caller mirroring
// journald's own convention would.
func TestSeekByMonotonicFindsCallerSuppliedBootID(t *testing.T) {
	f := openTestFile(t)

	bootID := [16]byte{1, 2, 3, 4}
	bootHex := bootIDHex(bootID[:])

	var offsets []uint64
	for i := 0; i < 3; i++ {
		off, err := f.AppendEntry(uint64(1000+i), uint64(100+i*10), []EntryInput{ //nolint:gosec
			{Name: []byte("_BOOT_ID"), Value: bootHex},
			{Name: []byte("MESSAGE"), Value: []byte("hi")},
		})
		if err != nil {
			t.Fatalf("AppendEntry(%d): %v", i, err)
		}
		offsets = append(offsets, off)
	}

	from, to, err := f.CutoffMonotonic(bootID)
	if err != nil {
		t.Fatalf("CutoffMonotonic: %v", err)
	}
	if from != 100 || to != 120 {
		t.Fatalf("CutoffMonotonic = (%d, %d), want (100, 120)", from, to)
	}

	got, err := f.seekByMonotonic(bootID, 110, Down)
	if err != nil {
		t.Fatalf("seekByMonotonic: %v", err)
	}
	if got != offsets[1] {
		t.Fatalf("seekByMonotonic(110, Down) = %d, want %d", got, offsets[1])
	}
}

func TestAppendEntryRejectsInvalidFieldName(t *testing.T) {
	f := openTestFile(t)

	cases := [][]byte{
		[]byte(""),
		[]byte("_LEADING_UNDERSCORE"),
		[]byte("9DIGITS_FIRST"),
		[]byte("lower_case"),
	}
	for _, name := range cases {
		if _, err := f.AppendEntry(1000, 10, []EntryInput{{Name: name, Value: []byte("v")}}); err == nil {
			t.Fatalf("expected AppendEntry to reject field name %q", name)
		}
	}
}

func TestAppendEntryRequiresAtLeastOneField(t *testing.T) {
	f := openTestFile(t)

	if _, err := f.AppendEntry(1000, 10, nil); err == nil {
		t.Fatal("expected AppendEntry to reject an entry with no fields")
	}
}

func TestNextEntryWalksAppendOrder(t *testing.T) {
	f := openTestFile(t)

	var offsets []uint64
	for i := 0; i < 5; i++ {
		off, err := f.AppendEntry(uint64(1000+i), uint64(i), []EntryInput{ //nolint:gosec
			{Name: []byte("SEQ"), Value: []byte{byte(i)}},
		})
		if err != nil {
			t.Fatalf("AppendEntry(%d): %v", i, err)
		}
		offsets = append(offsets, off)
	}

	cur := offsets[0]
	for i := 1; i < len(offsets); i++ {
		next, err := f.NextEntry(cur, Down)
		if err != nil {
			t.Fatalf("NextEntry(%d): %v", i, err)
		}
		if next != offsets[i] {
			t.Fatalf("NextEntry at step %d = %d, want %d", i, next, offsets[i])
		}
		cur = next
	}

	if _, err := f.NextEntry(cur, Down); err == nil {
		t.Fatal("expected NextEntry to fail past the tail entry")
	}
}

func TestCopyEntryFromPreservesSourceTimestamps(t *testing.T) {
	src := openTestFile(t)
	dst := openTestFile(t)

	srcOff, err := src.AppendEntry(5000, 50, []EntryInput{
		{Name: []byte("MESSAGE"), Value: []byte("copied")},
	})
	if err != nil {
		t.Fatalf("AppendEntry on src: %v", err)
	}
	srcEntry, err := src.readEntry(srcOff)
	if err != nil {
		t.Fatalf("readEntry on src: %v", err)
	}

	dstOff, err := dst.CopyEntryFrom(src, srcOff)
	if err != nil {
		t.Fatalf("CopyEntryFrom: %v", err)
	}
	dstEntry, err := dst.readEntry(dstOff)
	if err != nil {
		t.Fatalf("readEntry on dst: %v", err)
	}

	if dstEntry.Realtime != srcEntry.Realtime || dstEntry.Monotonic != srcEntry.Monotonic {
		t.Fatalf("copied entry timestamps = (%d,%d), want (%d,%d)",
			dstEntry.Realtime, dstEntry.Monotonic, srcEntry.Realtime, srcEntry.Monotonic)
	}
	if dstEntry.BootID != srcEntry.BootID {
		t.Fatal("expected CopyEntryFrom to preserve the source entry's boot id")
	}
}

func TestLocationCompareOrdersBySeqnumWithinSameLineage(t *testing.T) {
	f := openTestFile(t)

	off1, err := f.AppendEntry(1000, 10, []EntryInput{{Name: []byte("A"), Value: []byte("1")}})
	if err != nil {
		t.Fatalf("AppendEntry #1: %v", err)
	}
	off2, err := f.AppendEntry(1001, 11, []EntryInput{{Name: []byte("A"), Value: []byte("2")}})
	if err != nil {
		t.Fatalf("AppendEntry #2: %v", err)
	}

	loc1, err := f.LocationOf(off1)
	if err != nil {
		t.Fatalf("LocationOf #1: %v", err)
	}
	loc2, err := f.LocationOf(off2)
	if err != nil {
		t.Fatalf("LocationOf #2: %v", err)
	}

	if loc1.Compare(loc2) >= 0 {
		t.Fatal("expected the earlier entry's Location to compare less than the later one")
	}
	if loc2.Compare(loc1) <= 0 {
		t.Fatal("expected Compare to be antisymmetric")
	}
	if loc1.Compare(loc1) != 0 {
		t.Fatal("expected a Location to compare equal to itself")
	}
}

func TestRotateSuggestedTriggersOnMaxAge(t *testing.T) {
	f := openTestFile(t)

	if _, err := f.AppendEntry(1000, 10, []EntryInput{{Name: []byte("A"), Value: []byte("1")}}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}

	if f.RotateSuggested(0) {
		t.Fatal("expected a fresh small file not to suggest rotation with maxAgeUsec disabled")
	}
	if !f.RotateSuggested(1) {
		t.Fatal("expected rotation to be suggested once maxAgeUsec is smaller than the file's age")
	}
}

func TestRotateRenamesAndReopensSuccessor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.journal")

	f, err := Open(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if _, err := f.AppendEntry(1000, 10, []EntryInput{{Name: []byte("A"), Value: []byte("1")}}); err != nil {
		t.Fatalf("AppendEntry: %v", err)
	}
	firstSeqnumID := f.hdr.SeqnumID
	tailSeqnum := f.hdr.TailEntrySeqnum

	successor, err := f.Rotate()
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	defer successor.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected a new file at the original path, stat failed: %v", err)
	}
	if successor.hdr.SeqnumID != firstSeqnumID {
		t.Fatal("expected the successor to inherit the predecessor's seqnum_id lineage")
	}
	if successor.hdr.TailEntrySeqnum != tailSeqnum {
		t.Fatalf("successor TailEntrySeqnum = %d, want %d", successor.hdr.TailEntrySeqnum, tailSeqnum)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 files in %s after rotation, got %d", dir, len(entries))
	}
}
