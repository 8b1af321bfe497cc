package format

// CompatibleFlags are the Header's compatible-flags word (§3). An
// implementation that does not understand a set compatible flag must refuse
// to write the file but may still read it.
type CompatibleFlags uint32

const (
	// FlagSealed marks a file as using forward-secure sealing (§6.5). This
	// module sets it only on files created with sealing enabled, whose
	// sealing hooks are no-ops, and keeps refuse-to-write-on-unknown
	// semantics for it.
	FlagSealed CompatibleFlags = 1 << 0

	// knownCompatibleFlags is the set of compatible flags this
	// implementation understands. Any bit outside this set present in a
	// file refuses writes (§3, §6.1).
	knownCompatibleFlags = FlagSealed
)

// UnknownBits returns the bits of f this implementation does not recognize.
func (f CompatibleFlags) UnknownBits() CompatibleFlags {
	return f &^ knownCompatibleFlags
}

// IncompatibleFlags are the Header's incompatible-flags word (§3). An
// implementation that does not understand a set incompatible flag must
// refuse to open the file at all, for reading or writing.
type IncompatibleFlags uint32

const (
	FlagCompressedXZ   IncompatibleFlags = 1 << 0
	FlagCompressedLZ4  IncompatibleFlags = 1 << 1
	FlagCompressedZstd IncompatibleFlags = 1 << 2
	FlagKeyedHash      IncompatibleFlags = 1 << 3

	knownIncompatibleFlags = FlagCompressedXZ | FlagCompressedLZ4 | FlagCompressedZstd | FlagKeyedHash

	// compressionFlagsMask isolates the mutually-exclusive compression bits:
	// the design in §3/§6.4 allows at most one compression codec active per
	// file.
	compressionFlagsMask = FlagCompressedXZ | FlagCompressedLZ4 | FlagCompressedZstd
)

// UnknownBits returns the bits of f this implementation does not recognize.
func (f IncompatibleFlags) UnknownBits() IncompatibleFlags {
	return f &^ knownIncompatibleFlags
}

// Codec returns the compression codec implied by f's compression bits, or
// CompressionCodecNone if none (or more than one, which Validate rejects) is
// set.
func (f IncompatibleFlags) Codec() CompressionCodec {
	switch f & compressionFlagsMask {
	case FlagCompressedXZ:
		return CompressionCodecXZ
	case FlagCompressedLZ4:
		return CompressionCodecLZ4
	case FlagCompressedZstd:
		return CompressionCodecZstd
	default:
		return CompressionCodecNone
	}
}

// HasMultipleCompressionFlags reports whether more than one compression bit
// is set, which is always invalid.
func (f IncompatibleFlags) HasMultipleCompressionFlags() bool {
	bits := f & compressionFlagsMask
	return bits != 0 && bits&(bits-1) != 0
}

// CodecFlag returns the single incompatible flag bit corresponding to c, or 0
// for CompressionCodecNone.
func CodecFlag(c CompressionCodec) IncompatibleFlags {
	switch c {
	case CompressionCodecXZ:
		return FlagCompressedXZ
	case CompressionCodecLZ4:
		return FlagCompressedLZ4
	case CompressionCodecZstd:
		return FlagCompressedZstd
	default:
		return 0
	}
}

// State is the Header's one-byte file state (§3).
type State uint8

const (
	StateOffline State = iota
	StateOnline
	StateArchived
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateOnline:
		return "online"
	case StateArchived:
		return "archived"
	default:
		return "invalid"
	}
}

// Valid reports whether s is one of the three defined states.
func (s State) Valid() bool {
	return s <= StateArchived
}
