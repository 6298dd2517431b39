package drive

import (
	"errors"
	"fmt"
)

// Kind categorizes a gateway failure so callers can react without knowing
// backend specifics.
type Kind int

const (
	// KindUnknown covers failures outside the taxonomy.
	KindUnknown Kind = iota

	// KindAuthRequired means there is no usable token; login is needed.
	KindAuthRequired

	// KindAuthTimeout means an interactive login did not finish in time.
	KindAuthTimeout

	// KindOffline means the backend was unreachable.
	KindOffline

	// KindQuotaExceeded means the remote storage is full.
	KindQuotaExceeded

	// KindResyncRequired means the delta token is invalid and the caller
	// must restart from a fresh baseline.
	KindResyncRequired

	// KindNotFound means an expected remote file is missing.
	KindNotFound

	// KindUnsupported means the backend does not implement the operation.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth required"
	case KindAuthTimeout:
		return "auth timeout"
	case KindOffline:
		return "offline"
	case KindQuotaExceeded:
		return "quota exceeded"
	case KindResyncRequired:
		return "resync required"
	case KindNotFound:
		return "not found"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is a categorized gateway failure.
type Error struct {
	Kind Kind
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("drive: %s", e.Op)
	if e.Name != "" {
		msg += " " + e.Name
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a categorized error.
func NewError(kind Kind, op, name string, err error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: err}
}

// KindOf extracts the category of an error, or KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsKind reports whether err (or any error in its chain) carries the kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a missing-file failure.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsResyncRequired reports whether err demands a fresh delta baseline.
func IsResyncRequired(err error) bool { return IsKind(err, KindResyncRequired) }

// IsOffline reports whether err is a reachability failure.
func IsOffline(err error) bool { return IsKind(err, KindOffline) }
