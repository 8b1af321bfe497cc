// Package errs defines the sentinel error kinds the journal engine recognizes.
//
// Every error the engine returns either is one of these sentinels or wraps one
// via fmt.Errorf("%w: ...", ...), so callers can classify failures with
// errors.Is regardless of how much context was attached at the call site.
package errs

import "errors"

var (
	// ErrBadMessage means an on-disk invariant was violated: unknown object
	// type, misaligned offset, truncated object, bogus timestamp, or a hash/
	// entry-array chain that fails to terminate.
	ErrBadMessage = errors.New("bad message")

	// ErrNoData means the header is internally consistent but the file is
	// truncated past a section the header claims exists.
	ErrNoData = errors.New("no data")

	// ErrProtocolNotSupported means an unknown incompatible flag or unknown
	// compression codec id was encountered.
	ErrProtocolNotSupported = errors.New("protocol not supported")

	// ErrHostDown means the file's machine_id does not match this host.
	ErrHostDown = errors.New("host is down")

	// ErrShutdown means the file is already archived.
	ErrShutdown = errors.New("shutdown")

	// ErrBusy means the file's state is online at open time (unclean shutdown).
	ErrBusy = errors.New("busy")

	// ErrTxtBsy means tail_entry_realtime is in the future relative to now.
	ErrTxtBsy = errors.New("text file busy")

	// ErrIDRM means the file was removed from under the caller (nlink == 0).
	ErrIDRM = errors.New("identifier removed")

	// ErrIO means a SIGBUS was observed for this file, or an fsync/write
	// I/O operation failed.
	ErrIO = errors.New("I/O error")

	// ErrTooBig means an append would exceed the file's configured metrics
	// (max_size or keep_free).
	ErrTooBig = errors.New("too big")

	// ErrPerm means a write was attempted on a read-only file.
	ErrPerm = errors.New("permission denied")

	// ErrNotFound means a seek or lookup found no matching record. Callers
	// that treat absence as a normal outcome should check for this with
	// errors.Is rather than treating it as a failure.
	ErrNotFound = errors.New("not found")
)

// IsRecoverable reports whether err is one of the error kinds that
// open_reliably treats as "corrupt, please rotate": the file should be
// disposed and a fresh one opened in its place.
//
// This mirrors the recovery trigger list in the engine's error handling
// design: bad-message, no-data, host-down, protocol-not-supported, busy,
// shutdown, io, idrm, and txtbsy all indicate the file itself cannot be
// trusted for further use.
func IsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrBadMessage),
		errors.Is(err, ErrNoData),
		errors.Is(err, ErrHostDown),
		errors.Is(err, ErrProtocolNotSupported),
		errors.Is(err, ErrBusy),
		errors.Is(err, ErrShutdown),
		errors.Is(err, ErrIO),
		errors.Is(err, ErrIDRM),
		errors.Is(err, ErrTxtBsy):
		return true
	default:
		return false
	}
}
