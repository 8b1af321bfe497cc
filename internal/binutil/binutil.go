// Package binutil provides the byte-codec and layout primitives shared by
// every on-disk structure in the journal format: 64-bit alignment, offset and
// timestamp validity predicates, and little-endian struct packing helpers
// built on top of the endian package.
package binutil

import "github.com/arloliu/jrnl/endian"

// Align8 rounds n up to the next multiple of 8. Every object in the arena
// starts at an 8-byte-aligned offset, so allocation sizes and the running
// "next object" cursor are always passed through Align8 before being used as
// an offset.
func Align8(n uint64) uint64 {
	return (n + 7) &^ 7
}

// IsAligned8 reports whether n is already a multiple of 8.
func IsAligned8(n uint64) bool {
	return n&7 == 0
}

// MaxRealtime is the exclusive upper bound validity predicates enforce on
// realtime and monotonic timestamps: 2^55 microseconds, chosen to reject
// obviously garbage values (a corrupt timestamp is far more likely to be a
// huge out-of-range number than one that happens to still look plausible).
const MaxRealtime = uint64(1) << 55

// ValidOffset reports VALID64(o): zero (meaning "no object") or a multiple
// of 8.
func ValidOffset(o uint64) bool {
	return o == 0 || IsAligned8(o)
}

// ValidRealtime reports VALID_REALTIME(t): strictly positive and below
// MaxRealtime.
func ValidRealtime(t uint64) bool {
	return t > 0 && t < MaxRealtime
}

// ValidMonotonic reports VALID_MONOTONIC(t): below MaxRealtime. Unlike
// realtime, zero is a legitimate monotonic timestamp (time since boot can be
// zero at the very first entry of a boot).
func ValidMonotonic(t uint64) bool {
	return t < MaxRealtime
}

// LE is the byte order every on-disk structure in this module uses. The
// engine package supports big-endian hosts reading foreign files, but the
// journal format itself is little-endian only, matching the teacher's
// convention of picking one engine at construction time and threading it
// through every Parse/Bytes pair.
var LE = endian.GetLittleEndianEngine()
