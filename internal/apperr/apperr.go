// Package apperr implements the typed error boundary from spec.md §7:
// a small closed taxonomy of failure kinds, mapped to an HTTP status
// only at the edge (internal/httpapi), so that every other package can
// return a plain Go error without knowing about HTTP at all. Grounded
// on original_source/src/backend/error/types.rs's BackendError enum,
// adapted from a status-code-carrying error (HandlerError{status,
// message}) to Go's idiom of a small Kind enum plus errors.As-style
// unwrapping.
package apperr

import "fmt"

// Kind is one entry in spec.md §7's error taxonomy.
type Kind int

const (
	// KindClientMalformed covers bad JSON, oversized payload, invalid
	// UTF-8, or header parse failure. Surfaced as 400.
	KindClientMalformed Kind = iota
	// KindUnauthorized covers a missing or invalid bearer token.
	// Surfaced as 401.
	KindUnauthorized
	// KindForbidden covers an authenticated principal who is not a
	// conversation participant. Surfaced as 403.
	KindForbidden
	// KindUnknownParent covers a document PUT referencing a parent
	// version the server never issued (message PUTs record unknown
	// parents as-is). Surfaced as 400 with an explanatory body.
	KindUnknownParent
	// KindInternal covers invariant violations: lock poisoning,
	// malformed op-log, CRDT internal panic. Surfaced as 500.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindClientMalformed:
		return "ClientMalformed"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindUnknownParent:
		return "UnknownParent"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is a typed error carrying a Kind and a human-readable message.
// PersistenceFailed, BroadcastNoSubscribers, and BroadcastLagged from
// spec.md §7 are deliberately not Kinds here: per the propagation
// policy, none of them ever cross the boundary to a client — they are
// logged and swallowed at the point of occurrence (internal/ingress,
// internal/store, internal/broadcast), never wrapped as an Error bound
// for internal/httpapi.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to KindInternal for anything else — an unrecognized error
// is, by definition, an invariant violation this boundary didn't
// anticipate.
func KindOf(err error) Kind {
	var e *Error
	if ok := asAppErr(err, &e); ok {
		return e.Kind
	}
	return KindInternal
}

func asAppErr(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
