package cloudsync

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCode  = errors.New("invalid or unknown code")
	ErrNotConnected = errors.New("not connected")
	ErrEmptyMessage = errors.New("empty message")
)

type ErrorKind string

const (
	KindConnectivity ErrorKind = "connectivity"
	KindLookup       ErrorKind = "lookup"
	KindSync         ErrorKind = "sync"
	KindChat         ErrorKind = "chat"
)

// Error is a failed engine operation. Its message is what the session shows
// as LastError, e.g. "join failed: invalid or unknown code".
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Op, reason(e.Err))
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	if errors.Is(err, ErrInvalidCode) && kind == KindConnectivity {
		kind = KindLookup
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func reason(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, ErrUnauthorized):
		return "account unavailable"
	case errors.Is(err, ErrForbidden):
		return "access denied"
	default:
		return err.Error()
	}
}
