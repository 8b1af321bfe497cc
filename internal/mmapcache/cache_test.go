package mmapcache

import (
	"os"
	"testing"
)

func tempFile(t *testing.T, size int) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "mmapcache-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestMapReturnsRequestedRange(t *testing.T) {
	f := tempFile(t, 1<<20)
	data := []byte("hello journal")
	if _, err := f.WriteAt(data, 4096); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	c := New(f.Fd(), false)
	defer c.Close()

	got, err := c.Map(CtxData, 4096, uint64(len(data)), false)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Map returned %q, want %q", got, data)
	}
}

func TestMapReusesWindowWithoutRemap(t *testing.T) {
	f := tempFile(t, 1<<20)
	c := New(f.Fd(), false)
	defer c.Close()

	first, err := c.Map(CtxEntry, 0, 64, true)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	second, err := c.Map(CtxEntry, 8, 32, true)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}

	if &first[0] != &c.windows[CtxEntry].data[0] {
		t.Fatalf("expected first window to back the context")
	}
	_ = second
}

func TestMapOutOfRange(t *testing.T) {
	f := tempFile(t, 4096)
	c := New(f.Fd(), false)
	defer c.Close()

	if _, err := c.Map(CtxData, 0, 1<<20, false); err == nil {
		t.Fatal("expected out-of-range Map to fail")
	}
}

func TestMapDetectsRemovedFile(t *testing.T) {
	f := tempFile(t, 4096)
	c := New(f.Fd(), false)
	defer c.Close()

	if err := os.Remove(f.Name()); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if err := c.RefreshFstat(true); err == nil {
		t.Fatal("expected refresh to detect nlink==0 after unlink")
	}
}

func TestGotSigbusStickyPerDescriptor(t *testing.T) {
	f := tempFile(t, 4096)
	c := New(f.Fd(), false)
	defer c.Close()

	if c.GotSigbus() {
		t.Fatal("fresh cache should not report sigbus")
	}

	c.MarkFaulted()
	if !c.GotSigbus() {
		t.Fatal("expected GotSigbus to be true after MarkFaulted")
	}
}
