package entryarray

import (
	"errors"
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/internal/chaincache"
	"github.com/arloliu/jrnl/internal/mmapcache"
)

// Direction selects which way a Bisect search resolves ties at either edge
// of the chain: Down toward larger/later logical indices, Up toward
// smaller/earlier ones.
type Direction int

const (
	Down Direction = iota
	Up
)

// Comparison is what a CompareFunc reports about one candidate item versus
// the bisection's target.
type Comparison int

const (
	Less Comparison = iota
	Equal
	Greater
)

// CompareFunc inspects the entry (or other chained object) at offset and
// reports how it compares to the search target. Returning an error wrapping
// errs.ErrBadMessage tells Bisect to treat this slot as corrupt — folded
// into the search as a new upper bound rather than a hard failure (§4.4).
type CompareFunc func(offset uint64) (Comparison, error)

type segInfo struct {
	offset uint64
	begin  int
	cap    int
}

// walkSegments walks the chain rooted at start (whose first item has
// logical index startBegin), returning every segment's boundaries. It
// refuses a chain whose next pointer does not strictly increase the offset
// (§9 "cyclic structures").
func walkSegments(cache *mmapcache.Cache, start uint64, startBegin int) ([]segInfo, error) {
	var segs []segInfo
	cur := start
	begin := startBegin
	var last uint64

	for cur != 0 {
		if last != 0 && cur <= last {
			return nil, fmt.Errorf("%w: entry-array chain cycle detected", errs.ErrBadMessage)
		}
		last = cur

		objSize, err := readSegmentHeader(cache, cur)
		if err != nil {
			return nil, err
		}
		c := segmentCapacity(objSize)
		segs = append(segs, segInfo{offset: cur, begin: begin, cap: c})
		begin += c

		next, err := readNext(cache, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}

	return segs, nil
}

func locate(segs []segInfo, idx int) (offset uint64, within int, ok bool) {
	for _, s := range segs {
		if idx >= s.begin && idx < s.begin+s.cap {
			return s.offset, idx - s.begin, true
		}
	}
	return 0, 0, false
}

// Bisect performs a binary search by logical index over the chain rooted at
// first (which holds n items), using compare to test candidates and dir to
// resolve which half to continue into. It consults cc (which may be nil) to
// skip re-walking segment boundaries from the chain head when the chain's
// length hasn't changed since the last bisection, and publishes a fresh
// progress point back to cc on completion.
//
// When no item compares Equal to the target, Bisect resolves to the nearest
// boundary in dir instead of failing outright: Down returns the first item
// greater than the target (the smallest item >= target), Up returns the
// last item less than the target (the largest item <= target).
//
// Returns (0, 0, nil) if nothing matches even a boundary in dir — the "not
// found" case in §4.4.
func Bisect(cache *mmapcache.Cache, cc *chaincache.Cache, first uint64, n int, compare CompareFunc, dir Direction) (uint64, int, error) {
	if n == 0 || first == 0 {
		return 0, 0, nil
	}

	segs, err := resolveSegments(cache, cc, first, n)
	if err != nil {
		return 0, 0, err
	}

	lo, hi := 0, n-1
	resultIdx := -1

	for lo <= hi {
		mid := (lo + hi) / 2

		segOffset, within, ok := locate(segs, mid)
		if !ok && len(segs) > 0 && segs[0].begin > 0 {
			// mid lies before the cached progress point: re-walk from the head.
			if segs, err = walkSegments(cache, first, 0); err != nil {
				return 0, 0, err
			}
			segOffset, within, ok = locate(segs, mid)
		}
		if !ok {
			break
		}

		itemOffset, err := readItem(cache, segOffset, within)
		if err != nil {
			return 0, 0, err
		}

		cmp, err := compare(itemOffset)
		if err != nil {
			if errors.Is(err, errs.ErrBadMessage) {
				// Corrupt slot: treat it as the new upper bound rather than
				// failing the whole search.
				hi = mid - 1
				continue
			}
			return 0, 0, err
		}

		switch cmp {
		case Equal:
			resultIdx = mid
			lo = hi + 1
		case Less:
			if dir == Down {
				lo = mid + 1
			} else {
				// candidate < target: a boundary candidate for UP (last
				// item <= target). Search the right half for one closer
				// to target; each later candidate found this way has a
				// larger index than this one, so overwriting resultIdx
				// always keeps the closest match found so far.
				resultIdx = mid
				lo = mid + 1
			}
		case Greater:
			if dir == Down {
				// candidate > target: a boundary candidate for DOWN (first
				// item >= target). Search the left half for one closer to
				// target; each later candidate found this way has a
				// smaller index than this one, so overwriting resultIdx
				// always keeps the closest match found so far.
				resultIdx = mid
				hi = mid - 1
			} else {
				hi = mid - 1
			}
		}
	}

	if resultIdx < 0 {
		return 0, 0, nil
	}

	segOffset, within, _ := locate(segs, resultIdx)
	offset, err := readItem(cache, segOffset, within)
	if err != nil {
		return 0, 0, err
	}

	if cc != nil {
		for _, s := range segs {
			if s.offset == segOffset {
				cc.Put(first, chaincache.ProgressPoint{SegmentOffset: s.offset, Begin: s.begin, Total: n, LastIndex: resultIdx})
				break
			}
		}
	}

	return offset, resultIdx, nil
}

// ItemAt returns the value stored at logical index idx of the chain rooted
// at first (which holds n items), consulting cc the same way Bisect does to
// avoid re-walking segment boundaries from the head. Used by next_entry to
// step to the slot adjacent to one already located by Bisect (§4.5).
func ItemAt(cache *mmapcache.Cache, cc *chaincache.Cache, first uint64, n, idx int) (uint64, error) {
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d)", errs.ErrNotFound, idx, n)
	}

	segs, err := resolveSegments(cache, cc, first, n)
	if err != nil {
		return 0, err
	}

	segOffset, within, ok := locate(segs, idx)
	if !ok && len(segs) > 0 && segs[0].begin > 0 {
		// idx lies before the cached progress point: re-walk from the head.
		if segs, err = walkSegments(cache, first, 0); err != nil {
			return 0, err
		}
		segOffset, within, ok = locate(segs, idx)
	}
	if !ok {
		return 0, fmt.Errorf("%w: index %d not found in chain", errs.ErrNotFound, idx)
	}

	offset, err := readItem(cache, segOffset, within)
	if err != nil {
		return 0, err
	}

	if cc != nil {
		for _, s := range segs {
			if s.offset == segOffset {
				cc.Put(first, chaincache.ProgressPoint{SegmentOffset: s.offset, Begin: s.begin, Total: n, LastIndex: idx})
				break
			}
		}
	}

	return offset, nil
}

// ItemAtPlusOne is ItemAt's counterpart for a per-data chain whose first
// logical slot is inlined into the owning Data object (§4.4 "plus-one"
// variant).
func ItemAtPlusOne(cache *mmapcache.Cache, cc *chaincache.Cache, inlineFirst, chainFirst uint64, n, idx int) (uint64, error) {
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d)", errs.ErrNotFound, idx, n)
	}
	if idx == 0 {
		return inlineFirst, nil
	}

	return ItemAt(cache, cc, chainFirst, n-1, idx-1)
}

func resolveSegments(cache *mmapcache.Cache, cc *chaincache.Cache, first uint64, n int) ([]segInfo, error) {
	if cc != nil {
		if pp, ok := cc.Get(first); ok && pp.Total == n {
			segs, err := walkSegments(cache, pp.SegmentOffset, pp.Begin)
			if err == nil && len(segs) > 0 {
				return segs, nil
			}
		}
	}

	return walkSegments(cache, first, 0)
}

// BisectPlusOne is Bisect's counterpart for a per-data chain whose first
// logical slot is inlined into the owning Data object instead of living in
// the segmented chain (§4.4 "plus-one" variant). Like Bisect, it resolves to
// the nearest boundary in dir when nothing compares Equal.
func BisectPlusOne(cache *mmapcache.Cache, cc *chaincache.Cache, inlineFirst, chainFirst uint64, n int, compare CompareFunc, dir Direction) (uint64, int, error) {
	if n == 0 {
		return 0, 0, nil
	}

	inlineCmp, err := compare(inlineFirst)
	if err != nil {
		if !errors.Is(err, errs.ErrBadMessage) {
			return 0, 0, err
		}
		// Corrupt inline slot: it can't serve as a candidate either way;
		// fall through to the chain below (or "not found" when n == 1).
		inlineCmp = -1
	}

	if n == 1 {
		switch {
		case inlineCmp == Equal:
			return inlineFirst, 0, nil
		case dir == Down && inlineCmp == Greater:
			return inlineFirst, 0, nil
		case dir == Up && inlineCmp == Less:
			return inlineFirst, 0, nil
		default:
			return 0, 0, nil
		}
	}

	// Down wants the smallest qualifying index. The inline slot is always
	// index 0, so if it already qualifies (Equal or Greater-than-target) no
	// chain item can beat it; only fall into the chain when inline is Less.
	if dir == Down && (inlineCmp == Equal || inlineCmp == Greater) {
		return inlineFirst, 0, nil
	}

	offset, idx, err := Bisect(cache, cc, chainFirst, n-1, compare, dir)
	if err != nil {
		return 0, 0, err
	}
	if offset != 0 {
		return offset, idx + 1, nil
	}

	// Up wants the largest qualifying index; the chain (indices 1..n-1)
	// always beats the inline slot when it has any qualifying item, so the
	// inline slot is only consulted here as Up's last resort.
	if inlineCmp == Equal || (dir == Up && inlineCmp == Less) {
		return inlineFirst, 0, nil
	}

	return 0, 0, nil
}
