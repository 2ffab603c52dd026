package jbd2

import (
	"errors"
	"fmt"
)

// Kind classifies the cause of an Error, per the journal's error taxonomy:
// a device/persistence failure, a format inconsistency found in on-disk
// state, a resource exhaustion, or a violated API contract.
type Kind int

const (
	// KindIO means a device or persistence operation failed.
	KindIO Kind = iota
	// KindCorrupt means on-disk state (magic, sequence, tag, count) did
	// not match the expected format.
	KindCorrupt
	// KindResource means an allocation failed.
	KindResource
	// KindInvariant means a caller violated an API contract, such as
	// double-enlisting a block. This is a programmer bug, not a
	// recoverable runtime condition.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCorrupt:
		return "corrupt"
	case KindResource:
		return "resource"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Sentinel errors usable with errors.Is, one per Kind.
var (
	ErrIO        = errors.New("jbd2: io error")
	ErrCorrupt   = errors.New("jbd2: corrupt journal state")
	ErrResource  = errors.New("jbd2: resource exhausted")
	ErrInvariant = errors.New("jbd2: invariant violated")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindIO:
		return ErrIO
	case KindCorrupt:
		return ErrCorrupt
	case KindResource:
		return ErrResource
	case KindInvariant:
		return ErrInvariant
	default:
		return ErrIO
	}
}

// Error is the error type returned by every exported jbd2 operation. Op
// names the failing operation (e.g. "ExtractTag", "CommitTrans") so errors
// read like "jbd2: CommitTrans: io: ...".
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jbd2: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("jbd2: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, jbd2.ErrCorrupt) and similar to match any Error
// of the corresponding Kind, regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// newErr constructs an *Error, wrapping cause (which may be nil).
func newErr(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

func errIO(op string, cause error) error        { return newErr(KindIO, op, cause) }
func errCorrupt(op string, cause error) error   { return newErr(KindCorrupt, op, cause) }
func errCorruptf(op, format string, args ...any) error {
	return newErr(KindCorrupt, op, fmt.Errorf(format, args...))
}
func errResource(op string, cause error) error  { return newErr(KindResource, op, cause) }
func errInvariant(op, msg string) error         { return newErr(KindInvariant, op, errors.New(msg)) }
