package llm

import (
	"fmt"
	"strings"
)

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}

// schemaFailure reports whether a provider rejected the requested shape.
// Retrying another model will not fix these.
func schemaFailure(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "tool call validation failed") || strings.Contains(m, "validation error")
}
