// Package errs defines the error taxonomy shared by every rcf component.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way spec section 7 enumerates them.
type Kind int

const (
	// InvalidConfiguration marks a builder-time contradiction: dimensions
	// not divisible by shingleSize, incompatible mode/shingle combinations,
	// non-positive values where positive is required.
	InvalidConfiguration Kind = iota
	// DimensionMismatch marks a runtime vector length mismatch against the
	// configured baseDimension or D.
	DimensionMismatch
	// InvalidIndex marks a pointStore/nodeStore/sampler index outside
	// [0,capacity) or currently freed.
	InvalidIndex
	// Capacity marks an attempt to add beyond capacity with no reclaimable
	// space.
	Capacity
	// IllegalState marks a structural invariant violation: heap property,
	// mass consistency, double-free, compaction during iteration.
	IllegalState
	// NotReady marks a query issued before the minimum warm-up
	// observations have been seen.
	NotReady
)

func (k Kind) String() string {
	switch k {
	case InvalidConfiguration:
		return "InvalidConfiguration"
	case DimensionMismatch:
		return "DimensionMismatch"
	case InvalidIndex:
		return "InvalidIndex"
	case Capacity:
		return "Capacity"
	case IllegalState:
		return "IllegalState"
	case NotReady:
		return "NotReady"
	default:
		return "Unknown"
	}
}

// Error is the single error type used across rcf packages. It carries the
// taxonomy Kind, the operation that failed, and an optional wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rcf: %s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("rcf: %s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target shares this error's Kind, so callers can write
// errors.Is(err, errs.Capacity) style checks against the sentinels below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New constructs an *Error for the given kind/operation/message.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap constructs an *Error wrapping an underlying cause.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// sentinel values so callers can do errors.Is(err, errs.Capacity) against
// a bare Kind without constructing a full *Error.
var (
	ErrInvalidConfiguration = &Error{Kind: InvalidConfiguration, Op: "*", Msg: "invalid configuration"}
	ErrDimensionMismatch    = &Error{Kind: DimensionMismatch, Op: "*", Msg: "dimension mismatch"}
	ErrInvalidIndex         = &Error{Kind: InvalidIndex, Op: "*", Msg: "invalid index"}
	ErrCapacity             = &Error{Kind: Capacity, Op: "*", Msg: "capacity exceeded"}
	ErrIllegalState         = &Error{Kind: IllegalState, Op: "*", Msg: "illegal state"}
	ErrNotReady             = &Error{Kind: NotReady, Op: "*", Msg: "not ready"}
)

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
