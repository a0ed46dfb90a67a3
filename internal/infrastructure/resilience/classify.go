package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

// ClassifyHTTPStatus treats throttling and server-side failures as
// transient. Other 4xx responses are the caller's fault and do not count
// against the breaker.
func ClassifyHTTPStatus(status int) ErrorClassification {
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case status >= 500:
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case status >= 400:
		return ErrorClassification{Retryable: false, RecordFailure: false}
	default:
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
}

// ClassifyTransport covers the failures shared by every outbound client:
// caller cancellation, open breakers and network errors.
func ClassifyTransport(err error) (ErrorClassification, bool) {
	if err == nil {
		return ErrorClassification{}, true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: false, RecordFailure: false}, true
	}
	if IsCircuitOpen(err) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	return ErrorClassification{}, false
}

// WrapTemporary marks err as domain.ErrTemporary when the classifier deems it
// retryable or the breaker rejected the call.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
