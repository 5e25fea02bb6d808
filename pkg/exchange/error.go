package exchange

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure for the engine's recovery policy.
type ErrorKind int

const (
	// KindNetwork is a transient transport failure; retry on the next
	// observation opportunity, never in a tight loop.
	KindNetwork ErrorKind = iota
	// KindRateLimited means the exchange throttled the request.
	KindRateLimited
	// KindRejected is terminal for the attempt.
	KindRejected
	// KindAlreadyTerminal means the order already reached a final state on
	// the exchange; callers treat it as a benign no-op.
	KindAlreadyTerminal
	// KindNotFound means the exchange does not know the order.
	KindNotFound
	// KindInsufficientBalance is a sell-side rejection for missing funds.
	KindInsufficientBalance
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimited:
		return "rate_limited"
	case KindRejected:
		return "rejected"
	case KindAlreadyTerminal:
		return "already_terminal"
	case KindNotFound:
		return "not_found"
	case KindInsufficientBalance:
		return "insufficient_balance"
	}
	return "unknown"
}

// Error is the typed result of a failed gateway operation. The engine never
// inspects raw exchange response shapes; it switches on Kind.
type Error struct {
	Kind ErrorKind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange: %s (code=%s): %s", e.Kind, e.Code, e.Msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("exchange: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("exchange: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// KindOf extracts the error kind; non-gateway errors count as network
// failures so the caller's retry policy stays conservative.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNetwork
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
