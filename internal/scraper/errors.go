package scraper

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies failures so retry policy never inspects library errors.
type Kind int

// Failure kinds. Everything except KindPermanent is retryable.
const (
	KindTransient Kind = iota
	KindPermanent
	KindSessionTerminated
	KindConnection
	KindTimeout
	KindCreationFailed
	KindDuplicate
)

func (k Kind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindSessionTerminated:
		return "session_terminated"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindCreationFailed:
		return "creation_failed"
	case KindDuplicate:
		return "duplicate"
	default:
		return "transient"
	}
}

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrPermanent         = &Error{Kind: KindPermanent}
	ErrSessionTerminated = &Error{Kind: KindSessionTerminated}
	ErrConnection        = &Error{Kind: KindConnection}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrCreationFailed    = &Error{Kind: KindCreationFailed}
	ErrDuplicate         = &Error{Kind: KindDuplicate}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError wraps err with a kind and the operation that failed.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Permanentf builds a permanent error from a format string.
func Permanentf(op, format string, args ...any) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the outermost classified error in err's chain.
// Unclassified errors are transient, except context deadline expiry which
// maps to KindTimeout.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindTransient
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return err != nil && KindOf(err) == KindPermanent
}

// IsPageTransient reports whether err is a kind the in-session extraction
// loop may retry: session terminated, connection, or timeout.
func IsPageTransient(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindSessionTerminated, KindConnection, KindTimeout:
		return true
	default:
		return false
	}
}
