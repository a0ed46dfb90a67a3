package crm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "crm status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("crm %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("crm %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// Unwrap maps auth failures onto the domain kind so callers can tell a bad
// API key from an outage.
func (e *HTTPStatusError) Unwrap() error {
	if e != nil && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden) {
		return domain.ErrUnauthorized
	}
	return nil
}

func classifyCRMError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	if domain.IsKind(err, domain.ErrInvalidInput) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
