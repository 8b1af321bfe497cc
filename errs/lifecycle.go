package errs

import "fmt"

// LifecycleError attaches file-lifecycle context (path, offset, operation) to
// one of the sentinel error kinds above. Open, Rotate, AppendEntry, and
// CopyEntryFrom build these
// so logs and open_reliably's retry path can report exactly what failed and
// where, without every call site hand-rolling fmt.Errorf context.
type LifecycleError struct {
	Op      string // "open", "rotate", "dispose", "append", "allocate", ...
	Path    string
	Offset  uint64
	Kind    error // one of the sentinels in errs.go
	Details map[string]any
	cause   error
}

// NewLifecycleError wraps kind (a sentinel from this package) with the
// operation that was being attempted.
func NewLifecycleError(op string, kind error) *LifecycleError {
	return &LifecycleError{Op: op, Kind: kind, Details: make(map[string]any)}
}

// WithPath attaches the file path involved in the failure.
func (e *LifecycleError) WithPath(path string) *LifecycleError {
	e.Path = path
	return e
}

// WithOffset attaches the arena offset involved in the failure.
func (e *LifecycleError) WithOffset(offset uint64) *LifecycleError {
	e.Offset = offset
	return e
}

// WithCause attaches the underlying error (e.g. a syscall error) that
// triggered this classification.
func (e *LifecycleError) WithCause(cause error) *LifecycleError {
	e.cause = cause
	return e
}

// WithDetail attaches a single structured key/value for logging.
func (e *LifecycleError) WithDetail(key string, value any) *LifecycleError {
	e.Details[key] = value
	return e
}

func (e *LifecycleError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
}

// Unwrap exposes the sentinel kind so errors.Is(err, errs.ErrBadMessage) and
// similar checks work transparently through a LifecycleError.
func (e *LifecycleError) Unwrap() error {
	return e.Kind
}
