// Package metrics computes and holds the size/free-space policy a journal
// file is bound by (§4.8): how large a single file may grow, how much free
// space on the filesystem must stay untouched, and how many rotated files to
// keep around.
package metrics

const (
	mib = 1 << 20
	gib = 1 << 30
)

// Metrics is the size policy for one file (or a whole journal directory, for
// NMaxFiles).
type Metrics struct {
	MaxUse    uint64
	MinUse    uint64
	MaxSize   uint64
	KeepFree  uint64
	NMaxFiles int
}

func clamp(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Default derives a Metrics from filesystem statistics the way the core does
// when a writable file is opened without an explicit policy (§4.8). fsSize
// is the filesystem's total size in bytes; pass 0 if unknown, which forces
// KeepFree to its 1 MiB fallback.
func Default(fsSize uint64) Metrics {
	maxUse := clamp(fsSize/10, mib, 4*gib)
	minUse := clamp(fsSize/50, mib, 16*mib)
	if minUse > maxUse {
		minUse = maxUse
	}

	const absoluteMinFileSize = 2 * mib
	maxSize := pageAlign(maxUse / 8)
	if maxSize > 128*mib {
		maxSize = 128 * mib
	}
	if maxSize < 2*absoluteMinFileSize {
		maxSize = 2 * absoluteMinFileSize
	}

	var keepFree uint64
	if fsSize == 0 {
		keepFree = mib
	} else {
		keepFree = min64(fsSize/20, 4*gib)
	}

	return Metrics{
		MaxUse:    maxUse,
		MinUse:    minUse,
		MaxSize:   maxSize,
		KeepFree:  keepFree,
		NMaxFiles: 100,
	}
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// pageAlign rounds down to 4096, the conservative page size assumption used
// purely for the max_size derivation; the actual allocator rounds to the
// host's real page size when growing a file (internal/mmapcache.PageCeil).
func pageAlign(n uint64) uint64 {
	const page = 4096
	return n &^ (page - 1)
}
