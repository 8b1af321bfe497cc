package heap

import (
	"os"
	"testing"

	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/mmapcache"
	"github.com/arloliu/jrnl/metrics"
)

func newTestFile(t *testing.T, initialSize int64) (*os.File, *mmapcache.Cache) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "heap-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if err := f.Truncate(initialSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	c := mmapcache.New(f.Fd(), true)
	if err := c.RefreshFstat(true); err != nil {
		t.Fatalf("RefreshFstat: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return f, c
}

func testMetrics() metrics.Metrics {
	return metrics.Metrics{MaxUse: 1 << 30, MinUse: 1 << 20, MaxSize: 64 << 20, KeepFree: 0, NMaxFiles: 100}
}

func TestAllocateFirstObjectAtHeaderEnd(t *testing.T) {
	_, c := newTestFile(t, format.HeaderSize)
	hdr := &format.Header{HeaderSize: format.HeaderSize}

	size := format.DataSize(len("MESSAGE=hi"))
	off, err := Allocate(hdr, c, testMetrics(), 1<<30, format.ObjectData, size)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if off != format.HeaderSize {
		t.Fatalf("offset = %d, want %d", off, format.HeaderSize)
	}
	if hdr.NObjects != 1 || hdr.TailObjectOffset != off {
		t.Fatalf("header not updated: %+v", hdr)
	}
}

func TestAllocateSecondObjectFollowsTail(t *testing.T) {
	_, c := newTestFile(t, format.HeaderSize)
	hdr := &format.Header{HeaderSize: format.HeaderSize}

	firstSize := format.DataSize(8)
	firstOff, err := Allocate(hdr, c, testMetrics(), 1<<30, format.ObjectData, firstSize)
	if err != nil {
		t.Fatalf("Allocate #1: %v", err)
	}

	secondSize := format.FieldSize(7)
	secondOff, err := Allocate(hdr, c, testMetrics(), 1<<30, format.ObjectField, secondSize)
	if err != nil {
		t.Fatalf("Allocate #2: %v", err)
	}

	if secondOff != firstOff+firstSize {
		t.Fatalf("second offset = %d, want %d", secondOff, firstOff+firstSize)
	}
	if hdr.NObjects != 2 {
		t.Fatalf("NObjects = %d, want 2", hdr.NObjects)
	}
}

func TestAllocateRejectsOverMaxSize(t *testing.T) {
	_, c := newTestFile(t, format.HeaderSize)
	hdr := &format.Header{HeaderSize: format.HeaderSize}

	m := testMetrics()
	m.MaxSize = format.HeaderSize + 4096

	_, err := Allocate(hdr, c, m, 1<<30, format.ObjectTag, format.TagSize(1<<20))
	if err == nil {
		t.Fatal("expected oversized allocation to fail")
	}
}

func TestAllocateRejectsWhenFreeSpaceWouldBeSwallowed(t *testing.T) {
	_, c := newTestFile(t, format.HeaderSize)
	hdr := &format.Header{HeaderSize: format.HeaderSize}

	m := testMetrics()
	m.KeepFree = 1 << 30

	_, err := Allocate(hdr, c, m, 1<<20, format.ObjectTag, format.TagSize(64))
	if err == nil {
		t.Fatal("expected keep_free violation to fail")
	}
}
