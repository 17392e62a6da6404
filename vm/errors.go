package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// Sentinel error kinds. Every failure raised by the core wraps one of these,
// so callers can classify it with errors.Is.
var (
	ErrMalformedScript = errors.New("malformed script")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrArity           = errors.New("wrong number of arguments")
	ErrOutOfMemory     = errors.New("out of memory")
	ErrIndex           = errors.New("index out of range")
)

// Error is a fatal condition detected by the core. Kind is one of the
// sentinel errors above.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// fatal aborts the current compile or run. The panic is converted back into
// an error by CatchFatal at the entry point.
func fatal(kind error, format string, args ...any) {
	panic(Errorf(kind, format, args...))
}

// CatchFatal recovers a fatal *Error raised inside the machine and stores it
// in *err. Any other panic is re-raised. Use it deferred at entry points:
//
//	defer vm.CatchFatal(&err)
func CatchFatal(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		*err = e
		return
	}
	panic(r)
}
