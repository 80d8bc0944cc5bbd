package linalg

import (
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindUnknown Kind = iota
	// Wrong number of operands or parameters for a kernel
	KindArgument
	// Shapes incompatible with the requested operation
	KindSize
	// Host matrix resized to a shape with a different element count
	KindResize
	// Host matrix data replaced by a slice of the wrong length
	KindDataUpdate
	// Row or column index out of range
	KindIndex
	// Handle disagrees with the buffer table
	KindMemoryInconsistency
	// Operation produced no value
	KindReturnValue
	// No compute adapter could be acquired
	KindNoDevice
	// Calculator used after Close
	KindClosed
	// Failure reported by the WebGPU backend
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindArgument:
		return "argument"
	case KindSize:
		return "size"
	case KindResize:
		return "resize"
	case KindDataUpdate:
		return "data update"
	case KindIndex:
		return "index"
	case KindMemoryInconsistency:
		return "memory inconsistency"
	case KindReturnValue:
		return "return value"
	case KindNoDevice:
		return "no device"
	case KindClosed:
		return "closed"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every package in this module.
// Two Errors match under errors.Is when their kinds are equal, so callers
// compare against the Err* sentinels below.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "calculator.MatMul"
	Message string
	Err     error // underlying cause, set for backend failures
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func defaultMessage(k Kind) string {
	switch k {
	case KindArgument:
		return "too many or too few arguments provided"
	case KindSize:
		return "matrix dimensions not valid for requested operation"
	case KindResize:
		return "invalid dimensions for matrix resize"
	case KindDataUpdate:
		return "new data has invalid length for current matrix dimensions"
	case KindIndex:
		return "index out of range"
	case KindMemoryInconsistency:
		return "handle does not match buffer table"
	case KindReturnValue:
		return "no return value"
	case KindNoDevice:
		return "no compute device available"
	case KindClosed:
		return "calculator is closed"
	case KindBackend:
		return "backend failure"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is.
var (
	ErrArgument            = &Error{Kind: KindArgument}
	ErrSize                = &Error{Kind: KindSize}
	ErrResize              = &Error{Kind: KindResize}
	ErrDataUpdate          = &Error{Kind: KindDataUpdate}
	ErrIndex               = &Error{Kind: KindIndex}
	ErrMemoryInconsistency = &Error{Kind: KindMemoryInconsistency}
	ErrReturnValue         = &Error{Kind: KindReturnValue}
	ErrNoDevice            = &Error{Kind: KindNoDevice}
	ErrClosed              = &Error{Kind: KindClosed}
	ErrBackend             = &Error{Kind: KindBackend}
)

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Backend wraps a WebGPU failure. A nil err yields nil.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindBackend, Op: op, Err: err}
}
