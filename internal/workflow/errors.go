package workflow

import (
	"errors"

	"banana3d/internal/services"
)

// ErrorKind classifies a workflow failure.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindSubmission ErrorKind = "submission"
	KindTransport  ErrorKind = "transport"
	KindTimeout    ErrorKind = "timeout"
)

// User-facing messages attached to snapshot errors.
const (
	MsgSourceEmpty   = "Source image is empty."
	MsgSourceMissing = "Source image is missing."
	MsgSourceStore   = "Failed to store the source image."
	MsgViewsNotReady = "Generate views before requesting a model."
	MsgSubmitFailed  = "Failed to submit the source image. Please try again."
	MsgViewsTimeout  = "Generation timed out. Please try again."
	MsgViewsFailed   = "Failed to fetch generated views. Please try again."
	MsgModelFailed   = "Failed to generate the 3D model. Please try again."
	MsgModelTimeout  = "Model generation timed out. Please try again."
)

// Error is the failure attached to the current snapshot. It is cleared by
// the next successful transition.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the services marker that corresponds to Kind, so callers can
// test a workflow error with errors.Is(err, services.ErrTimeout) even when
// the cause carries a different marker.
func (e *Error) Is(target error) bool {
	switch e.Kind {
	case KindValidation:
		return target == services.ErrValidation
	case KindSubmission:
		return target == services.ErrSubmission
	case KindTransport:
		return target == services.ErrTransport
	case KindTimeout:
		return target == services.ErrTimeout
	}
	return false
}

func newError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// kindOf maps a service error onto a workflow kind, using fallback when the
// error carries no recognised marker.
func kindOf(err error, fallback ErrorKind) ErrorKind {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return KindTimeout
	case errors.Is(err, services.ErrValidation):
		return KindValidation
	case errors.Is(err, services.ErrSubmission):
		return KindSubmission
	case errors.Is(err, services.ErrTransport):
		return KindTransport
	default:
		return fallback
	}
}
