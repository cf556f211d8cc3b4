// Package vaulterr defines the error kinds shared across every core
// component, per the propagation rules in the spec's error handling design:
// host API calls never panic, and PermissionDenied is never converted to
// any other kind.
package vaulterr

import "fmt"

// Kind is a closed set of error categories. Dispatch by match, never by
// open virtual calls.
type Kind string

const (
	InvalidPath     Kind = "invalid_path"
	NotFound        Kind = "not_found"
	PermissionDenied Kind = "permission_denied"
	QuotaExceeded   Kind = "quota_exceeded"
	Corrupted       Kind = "corrupted"
	IoError         Kind = "io_error"
	Timeout         Kind = "timeout"
	RateLimited     Kind = "rate_limited"
	Conflict        Kind = "conflict"
)

// Error wraps an underlying error with a stable Kind so callers (in
// particular internal/ipc, which maps kinds to JSON-RPC codes) can
// dispatch without string-matching.
type Error struct {
	Kind    Kind
	Message string
	Value   any // the conflicting/offending value, when relevant
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithValue attaches the conflicting value (e.g. the duplicate identifier,
// or the version that failed a migration check) to a Conflict error.
func (e *Error) WithValue(v any) *Error {
	e.Value = v
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and the
// zero Kind otherwise.
func KindOf(err error) (Kind, bool) {
	var ve *Error
	if As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}

// As is a thin wrapper kept local to avoid an extra import at call sites
// that only care about *Error.
func As(err error, target **Error) bool {
	for err != nil {
		if ve, ok := err.(*Error); ok {
			*target = ve
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
