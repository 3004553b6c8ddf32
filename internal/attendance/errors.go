package attendance

import (
	"errors"
	"fmt"
)

// Kind is a stable error kind returned to callers of the service.
type Kind string

// Error kinds.
const (
	KindInput              Kind = "input_error"
	KindNoFaceInProbe      Kind = "no_face_in_probe"
	KindDimensionMismatch  Kind = "dimension_mismatch"
	KindNoReferenceData    Kind = "no_reference_data"
	KindVerificationFailed Kind = "verification_failed"
	KindNoOpenSession      Kind = "no_open_session"
	KindStoreUnavailable   Kind = "store_unavailable"
	KindTimeout            Kind = "timeout"
)

// Retryable reports whether a caller may retry the same request unchanged.
func (k Kind) Retryable() bool {
	return k == KindStoreUnavailable || k == KindTimeout
}

// Error is the typed error returned by the ledger and the service.
type Error struct {
	Kind    Kind
	Op      string
	Message string // safe to show to the user
	Err     error  // internal cause, never shown to the user
}

// Error returns "op: kind: message" followed by the cause, if any.
func (e *Error) Error() string {
	s := string(e.Kind) + ": " + e.Message
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

// AsError returns (*Error, true) if err is or wraps an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf extracts the error kind, or empty string if err is not an *Error.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// defaultMessages are the generic user-visible messages per kind.
var defaultMessages = map[Kind]string{
	KindInput:              "invalid request",
	KindNoFaceInProbe:      "no face detected in uploaded image",
	KindDimensionMismatch:  "face embedding has an unexpected size",
	KindNoReferenceData:    "no reference images found for this employee",
	KindVerificationFailed: "face mismatch, access denied",
	KindNoOpenSession:      "no check-in record found for today",
	KindStoreUnavailable:   "storage temporarily unavailable, please retry",
	KindTimeout:            "request timed out, please retry",
}

// DefaultMessage returns the generic message for a kind.
func DefaultMessage(k Kind) string {
	if msg, ok := defaultMessages[k]; ok {
		return msg
	}
	return fmt.Sprintf("error %s", k)
}
