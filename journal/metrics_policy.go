package journal

import (
	"fmt"

	"github.com/arloliu/jrnl/errs"
	"github.com/arloliu/jrnl/metrics"
	"golang.org/x/sys/unix"
)

// DefaultMetrics is default_metrics(&m, fd) (§4.8): derives the size/free-
// space policy a writable file would get if opened without WithMetrics,
// from the filesystem backing fd.
func DefaultMetrics(fd uintptr) (metrics.Metrics, error) {
	return defaultMetricsForFd(int(fd)) //nolint:gosec
}

// defaultMetricsForFd derives a Metrics policy from the filesystem the open
// descriptor lives on (§4.8 "default_metrics(&m, fd)").
func defaultMetricsForFd(fd int) (metrics.Metrics, error) {
	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		// Filesystem size genuinely unknown: fall back to the fsSize==0
		// branch of metrics.Default rather than failing the open.
		return metrics.Default(0), nil //nolint:nilerr
	}
	total := st.Blocks * uint64(st.Bsize) //nolint:gosec
	return metrics.Default(total), nil
}

// statvfsFreeBytes returns the free space the allocator must not swallow
// past keep_free (§4.2 step 3).
func statvfsFreeBytes(fd int) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Fstatfs(fd, &st); err != nil {
		return 0, fmt.Errorf("%w: statvfs: %v", errs.ErrIO, err)
	}
	return st.Bavail * uint64(st.Bsize), nil //nolint:gosec
}
