package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrSubmission    = errors.New("submission error")
	ErrTransport     = errors.New("transport error")
	ErrTimeout       = errors.New("timeout")
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf returns the sentinel wrapped by err, or nil when err carries none.
func KindOf(err error) error {
	for _, marker := range []error{ErrValidation, ErrSubmission, ErrTimeout, ErrConfiguration, ErrTransport} {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

// Hint suggests the operator's next step for a failure.
func Hint(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "select a PNG or JPEG source image and retry"
	case ErrSubmission:
		return "the generation service rejected the request; check its logs"
	case ErrTimeout:
		return "the generation service is slow or stuck; retry or raise polling.timeout_ms"
	case ErrConfiguration:
		return "run banana3d config validate"
	case ErrTransport:
		return "run banana3d check to verify the service is reachable"
	default:
		return ""
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
