package contracts

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies bridge failures so callers can render them differently
type ErrorKind string

const (
	KindNotConnected          ErrorKind = "not_connected"
	KindValidation            ErrorKind = "validation"
	KindResolution            ErrorKind = "resolution"
	KindMarketDataUnavailable ErrorKind = "market_data_unavailable"
	KindBrokerRejection       ErrorKind = "broker_rejection"
	KindTimeout               ErrorKind = "timeout"
)

// Sentinel errors, one per kind. errors.Is matches any *Error of the same kind.
var (
	ErrNotConnected          = &Error{Kind: KindNotConnected, Msg: "broker session not connected"}
	ErrValidation            = &Error{Kind: KindValidation, Msg: "invalid request"}
	ErrResolution            = &Error{Kind: KindResolution, Msg: "instrument not resolved"}
	ErrMarketDataUnavailable = &Error{Kind: KindMarketDataUnavailable, Msg: "market data unavailable"}
	ErrBrokerRejection       = &Error{Kind: KindBrokerRejection, Msg: "broker rejected request"}
	ErrTimeout               = &Error{Kind: KindTimeout, Msg: "caller stopped waiting"}
)

// Error is the typed error every core operation returns
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "submit"
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NotConnected builds a KindNotConnected error for op
func NotConnected(op string) *Error {
	return &Error{Kind: KindNotConnected, Op: op, Msg: "broker session not connected"}
}

// Validationf builds a KindValidation error
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Resolutionf builds a KindResolution error
func Resolutionf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindResolution, Msg: fmt.Sprintf(format, args...)}
}

// MarketDataf builds a KindMarketDataUnavailable error
func MarketDataf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindMarketDataUnavailable, Msg: fmt.Sprintf(format, args...)}
}

// Rejection wraps a broker-side failure
func Rejection(op string, err error) *Error {
	return &Error{Kind: KindBrokerRejection, Op: op, Msg: "broker rejected request", Err: err}
}

// Timeout builds a KindTimeout error for a caller whose context ended while waiting
func Timeout(op, msg string, err error) *Error {
	return &Error{Kind: KindTimeout, Op: op, Msg: msg, Err: err}
}

// WithOp returns err tagged with op when it is an *Error without one
func WithOp(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}

// KindOf extracts the kind of err. Context errors count as timeouts,
// other untyped errors as broker rejections.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindBrokerRejection
}

// Message returns the user-facing message of err
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Err != nil {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Msg
	}
	return err.Error()
}
