package generator

import (
	"fmt"
	"net/http"
)

// StatusError records a non-success HTTP response from the generation service.
type StatusError struct {
	Operation string
	Code      int
	Message   string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d %s", e.Operation, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s: status %d: %s", e.Operation, e.Code, e.Message)
}
