package sensors

import (
	"github.com/pkg/errors"
)

// Kind classifies every failure surfaced by this module. A Kind is itself an
// error so callers can test with errors.Is(err, sensors.PermissionDenied).
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	CapabilityUnavailable Kind = "capability_unavailable"
	PermissionDenied      Kind = "permission_denied"
	LookupError           Kind = "lookup_error"
	PlatformError         Kind = "platform_error"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Unavailable(op string, err error) error {
	return newError(CapabilityUnavailable, op, err)
}

func Denied(op string, err error) error {
	return newError(PermissionDenied, op, err)
}

func LookupFailed(op string, err error) error {
	return newError(LookupError, op, err)
}

func PlatformFailure(op string, err error) error {
	return newError(PlatformError, op, err)
}

// KindOf extracts the Kind of err. Errors that did not pass through this
// package are reported as PlatformError.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if k, ok := err.(Kind); ok {
		return k
	}
	return PlatformError
}

// ClassifyPosition maps a geolocation host failure onto the taxonomy. Only
// an explicit permission code counts as a denial.
func ClassifyPosition(op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *PositionError
	if errors.As(err, &perr) && perr.Code == PositionPermissionDenied {
		return Denied(op, err)
	}
	return PlatformFailure(op, err)
}

// IsPermissionDenied reports whether err is an explicit permission refusal
// from a geolocation host.
func IsPermissionDenied(err error) bool {
	var perr *PositionError
	return errors.As(err, &perr) && perr.Code == PositionPermissionDenied
}
