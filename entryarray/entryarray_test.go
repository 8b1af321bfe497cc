package entryarray

import (
	"os"
	"testing"

	"github.com/arloliu/jrnl/format"
	"github.com/arloliu/jrnl/internal/chaincache"
	"github.com/arloliu/jrnl/internal/mmapcache"
	"github.com/arloliu/jrnl/metrics"
)

func newTestEnv(t *testing.T) (*format.Header, *mmapcache.Cache, metrics.Metrics) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "entryarray-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if err := f.Truncate(format.HeaderSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	t.Cleanup(func() { f.Close() })

	c := mmapcache.New(f.Fd(), true)
	if err := c.RefreshFstat(true); err != nil {
		t.Fatalf("RefreshFstat: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	hdr := &format.Header{HeaderSize: format.HeaderSize}
	m := metrics.Metrics{MaxUse: 1 << 30, MinUse: 1 << 20, MaxSize: 64 << 20, KeepFree: 0, NMaxFiles: 100}

	return hdr, c, m
}

func TestAppendAcrossMultipleSegments(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var first uint64
	const count = 50
	for i := 0; i < count; i++ {
		if err := Append(hdr, cache, m, 1<<30, &first, i, uint64((i+1)*8)); err != nil { //nolint:gosec
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if hdr.NEntryArrays == 0 {
		t.Fatal("expected at least one entry-array segment to have been allocated")
	}

	segs, err := walkSegments(cache, first, 0)
	if err != nil {
		t.Fatalf("walkSegments: %v", err)
	}
	total := 0
	for _, s := range segs {
		total += s.cap
	}
	if total < count {
		t.Fatalf("segment capacities sum to %d, want at least %d", total, count)
	}

	for i := 0; i < count; i++ {
		off, within, ok := locate(segs, i)
		if !ok {
			t.Fatalf("locate(%d): not found", i)
		}
		got, err := readItem(cache, off, within)
		if err != nil {
			t.Fatalf("readItem(%d): %v", i, err)
		}
		want := uint64((i + 1) * 8) //nolint:gosec
		if got != want {
			t.Fatalf("item %d = %d, want %d", i, got, want)
		}
	}
}

func TestBisectFindsExactMatch(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var first uint64
	const count = 40
	for i := 0; i < count; i++ {
		if err := Append(hdr, cache, m, 1<<30, &first, i, uint64((i+1)*8)); err != nil { //nolint:gosec
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	cc, err := chaincache.New(chaincache.DefaultSize)
	if err != nil {
		t.Fatalf("chaincache.New: %v", err)
	}

	target := uint64(17 * 8)
	compare := func(offset uint64) (Comparison, error) {
		switch {
		case offset == target:
			return Equal, nil
		case offset < target:
			return Less, nil
		default:
			return Greater, nil
		}
	}

	offset, idx, err := Bisect(cache, cc, first, count, compare, Down)
	if err != nil {
		t.Fatalf("Bisect: %v", err)
	}
	if offset != target || idx != 16 {
		t.Fatalf("Bisect returned offset=%d idx=%d, want offset=%d idx=16", offset, idx, target)
	}

	// Repeat: this time Bisect starts from the chain cache's progress point.
	offset2, idx2, err := Bisect(cache, cc, first, count, compare, Down)
	if err != nil {
		t.Fatalf("Bisect (cached): %v", err)
	}
	if offset2 != offset || idx2 != idx {
		t.Fatalf("cached Bisect mismatch: got offset=%d idx=%d", offset2, idx2)
	}
}

func TestBisectNotFoundReturnsZero(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var first uint64
	for i := 0; i < 5; i++ {
		if err := Append(hdr, cache, m, 1<<30, &first, i, uint64((i+1)*8)); err != nil { //nolint:gosec
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	compare := func(offset uint64) (Comparison, error) {
		const missing = uint64(9999)
		switch {
		case offset == missing:
			return Equal, nil
		case offset < missing:
			return Less, nil
		default:
			return Greater, nil
		}
	}

	offset, idx, err := Bisect(cache, nil, first, 5, compare, Down)
	if err != nil {
		t.Fatalf("Bisect: %v", err)
	}
	if offset != 0 || idx != 0 {
		t.Fatalf("expected not-found (0,0), got offset=%d idx=%d", offset, idx)
	}
}

func TestBisectResolvesNearestBoundaryWhenNoExactMatch(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var first uint64
	const count = 40
	for i := 0; i < count; i++ {
		if err := Append(hdr, cache, m, 1<<30, &first, i, uint64((i+1)*8)); err != nil { //nolint:gosec
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	// Items hold 8, 16, ..., 320. 139 falls strictly between item 16 (136)
	// and item 17 (144), so there is no exact match in either direction.
	const target = uint64(139)
	compare := func(offset uint64) (Comparison, error) {
		switch {
		case offset == target:
			return Equal, nil
		case offset < target:
			return Less, nil
		default:
			return Greater, nil
		}
	}

	downOffset, downIdx, err := Bisect(cache, nil, first, count, compare, Down)
	if err != nil {
		t.Fatalf("Bisect Down: %v", err)
	}
	if downOffset != 144 || downIdx != 17 {
		t.Fatalf("Bisect(Down) = (offset=%d idx=%d), want (144, 17) — the first item >= target", downOffset, downIdx)
	}

	upOffset, upIdx, err := Bisect(cache, nil, first, count, compare, Up)
	if err != nil {
		t.Fatalf("Bisect Up: %v", err)
	}
	if upOffset != 136 || upIdx != 16 {
		t.Fatalf("Bisect(Up) = (offset=%d idx=%d), want (136, 16) — the last item <= target", upOffset, upIdx)
	}

	// A target below every item: Down must still find the smallest item,
	// Up must report not-found since nothing is <= target.
	belowAll := func(offset uint64) (Comparison, error) {
		if offset == 0 {
			return Equal, nil
		}
		return Greater, nil
	}
	downOffset, downIdx, err = Bisect(cache, nil, first, count, belowAll, Down)
	if err != nil {
		t.Fatalf("Bisect Down (below all): %v", err)
	}
	if downOffset != 8 || downIdx != 0 {
		t.Fatalf("Bisect(Down, below all) = (offset=%d idx=%d), want (8, 0)", downOffset, downIdx)
	}
	if upOffset, _, err := Bisect(cache, nil, first, count, belowAll, Up); err != nil || upOffset != 0 {
		t.Fatalf("Bisect(Up, below all) = (offset=%d, err=%v), want (0, nil)", upOffset, err)
	}

	// A target above every item: Up must find the largest item, Down must
	// report not-found since nothing is >= target.
	aboveAll := func(offset uint64) (Comparison, error) {
		if offset == 0 {
			return Equal, nil
		}
		return Less, nil
	}
	upOffset, upIdx, err = Bisect(cache, nil, first, count, aboveAll, Up)
	if err != nil {
		t.Fatalf("Bisect Up (above all): %v", err)
	}
	if upOffset != 320 || upIdx != count-1 {
		t.Fatalf("Bisect(Up, above all) = (offset=%d idx=%d), want (320, %d)", upOffset, upIdx, count-1)
	}
	if downOffset, _, err := Bisect(cache, nil, first, count, aboveAll, Down); err != nil || downOffset != 0 {
		t.Fatalf("Bisect(Down, above all) = (offset=%d, err=%v), want (0, nil)", downOffset, err)
	}
}

func TestBisectPlusOneResolvesNearestBoundaryAgainstInlineSlot(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var inline, chainFirst uint64
	// Inline slot holds 10; chain holds 20, 30, 40.
	if err := AppendPlusOne(hdr, cache, m, 1<<30, &inline, &chainFirst, 0, 10); err != nil {
		t.Fatalf("AppendPlusOne: %v", err)
	}
	for i, v := range []uint64{20, 30, 40} {
		if err := AppendPlusOne(hdr, cache, m, 1<<30, &inline, &chainFirst, i+1, v); err != nil {
			t.Fatalf("AppendPlusOne #%d: %v", i+2, err)
		}
	}

	compareTarget := func(target uint64) CompareFunc {
		return func(offset uint64) (Comparison, error) {
			switch {
			case offset == target:
				return Equal, nil
			case offset < target:
				return Less, nil
			default:
				return Greater, nil
			}
		}
	}

	// 15 falls between the inline slot (10) and the chain's first item
	// (20): Down must cross into the chain, Up must fall back to inline.
	downOffset, downIdx, err := BisectPlusOne(cache, nil, inline, chainFirst, 4, compareTarget(15), Down)
	if err != nil {
		t.Fatalf("BisectPlusOne Down: %v", err)
	}
	if downOffset != 20 || downIdx != 1 {
		t.Fatalf("BisectPlusOne(Down, 15) = (offset=%d idx=%d), want (20, 1)", downOffset, downIdx)
	}
	upOffset, upIdx, err := BisectPlusOne(cache, nil, inline, chainFirst, 4, compareTarget(15), Up)
	if err != nil {
		t.Fatalf("BisectPlusOne Up: %v", err)
	}
	if upOffset != 10 || upIdx != 0 {
		t.Fatalf("BisectPlusOne(Up, 15) = (offset=%d idx=%d), want (10, 0) — the inline slot", upOffset, upIdx)
	}

	// Below everything: Down must land on the inline slot (index 0), Up
	// must report not-found.
	downOffset, downIdx, err = BisectPlusOne(cache, nil, inline, chainFirst, 4, compareTarget(1), Down)
	if err != nil {
		t.Fatalf("BisectPlusOne Down (below all): %v", err)
	}
	if downOffset != 10 || downIdx != 0 {
		t.Fatalf("BisectPlusOne(Down, 1) = (offset=%d idx=%d), want (10, 0)", downOffset, downIdx)
	}
	if offset, _, err := BisectPlusOne(cache, nil, inline, chainFirst, 4, compareTarget(1), Up); err != nil || offset != 0 {
		t.Fatalf("BisectPlusOne(Up, 1) = (offset=%d, err=%v), want (0, nil)", offset, err)
	}
}

func TestItemAtMatchesBisectedOffsets(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var first uint64
	const count = 30
	for i := 0; i < count; i++ {
		if err := Append(hdr, cache, m, 1<<30, &first, i, uint64((i+1)*8)); err != nil { //nolint:gosec
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	cc, err := chaincache.New(chaincache.DefaultSize)
	if err != nil {
		t.Fatalf("chaincache.New: %v", err)
	}

	for i := 0; i < count; i++ {
		got, err := ItemAt(cache, cc, first, count, i)
		if err != nil {
			t.Fatalf("ItemAt(%d): %v", i, err)
		}
		want := uint64((i + 1) * 8) //nolint:gosec
		if got != want {
			t.Fatalf("ItemAt(%d) = %d, want %d", i, got, want)
		}
	}

	if _, err := ItemAt(cache, cc, first, count, count); err == nil {
		t.Fatal("expected ItemAt to reject an out-of-range index")
	}
}

func TestItemAtPlusOneReturnsInlineSlotAtZero(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var inline, chainFirst uint64
	if err := AppendPlusOne(hdr, cache, m, 1<<30, &inline, &chainFirst, 0, 111); err != nil {
		t.Fatalf("AppendPlusOne: %v", err)
	}
	for i, v := range []uint64{222, 333, 444} {
		if err := AppendPlusOne(hdr, cache, m, 1<<30, &inline, &chainFirst, i+1, v); err != nil {
			t.Fatalf("AppendPlusOne #%d: %v", i+2, err)
		}
	}

	got, err := ItemAtPlusOne(cache, nil, inline, chainFirst, 4, 0)
	if err != nil {
		t.Fatalf("ItemAtPlusOne(0): %v", err)
	}
	if got != 111 {
		t.Fatalf("ItemAtPlusOne(0) = %d, want inline slot value 111", got)
	}

	want := []uint64{111, 222, 333, 444}
	for i := 0; i < len(want); i++ {
		got, err := ItemAtPlusOne(cache, nil, inline, chainFirst, 4, i)
		if err != nil {
			t.Fatalf("ItemAtPlusOne(%d): %v", i, err)
		}
		if got != want[i] {
			t.Fatalf("ItemAtPlusOne(%d) = %d, want %d", i, got, want[i])
		}
	}
}

func TestAppendPlusOneUsesInlineSlotFirst(t *testing.T) {
	hdr, cache, m := newTestEnv(t)

	var inline, chainFirst uint64
	if err := AppendPlusOne(hdr, cache, m, 1<<30, &inline, &chainFirst, 0, 777); err != nil {
		t.Fatalf("AppendPlusOne: %v", err)
	}
	if inline != 777 || chainFirst != 0 {
		t.Fatalf("expected inline slot to absorb the first append, got inline=%d chainFirst=%d", inline, chainFirst)
	}

	if err := AppendPlusOne(hdr, cache, m, 1<<30, &inline, &chainFirst, 1, 888); err != nil {
		t.Fatalf("AppendPlusOne #2: %v", err)
	}
	if chainFirst == 0 {
		t.Fatal("expected the second append to land in the chain")
	}
}
