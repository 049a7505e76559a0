// Package errkind implements the pool's error taxonomy: every error the
// core hands back carries a Kind that callers switch on to decide whether
// to retry, record, or surface it, instead of string-matching.
package errkind

import "github.com/pkg/errors"

// Kind classifies a failure into one of a fixed set of categories.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransientNetwork
	KindTransientChain
	KindPermanentBadRequest
	KindInsufficientFunds
	KindSubprocessFailure
	KindCalculationImbalance
	KindIdempotencyConflict
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "transient_network"
	case KindTransientChain:
		return "transient_chain"
	case KindPermanentBadRequest:
		return "permanent_bad_request"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindSubprocessFailure:
		return "subprocess_failure"
	case KindCalculationImbalance:
		return "calculation_imbalance"
	case KindIdempotencyConflict:
		return "idempotency_conflict"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error that keeps its cause; it records no stack
// trace.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

// Unwrap lets errors.Is/As see through to the cause.
func (e *Error) Unwrap() error { return e.err }

// Kind_ returns the classified kind of err, or KindUnknown if err was never
// tagged through this package.
func Kind_(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// New creates a tagged error with no underlying cause.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Wrap tags an existing error with a kind, preserving it as the cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

// Is reports whether err (or something it wraps) was tagged with kind.
func Is(err error, kind Kind) bool {
	return Kind_(err) == kind
}

// Retryable reports whether the policy for kind is "retry with backoff":
// transient_network, transient_chain, and subprocess_failure all are.
func Retryable(kind Kind) bool {
	switch kind {
	case KindTransientNetwork, KindTransientChain, KindSubprocessFailure:
		return true
	default:
		return false
	}
}
