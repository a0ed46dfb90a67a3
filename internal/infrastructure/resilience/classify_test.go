package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
		record    bool
	}{
		{status: http.StatusTooManyRequests, retryable: true, record: true},
		{status: http.StatusBadGateway, retryable: true, record: true},
		{status: http.StatusBadRequest, retryable: false, record: false},
		{status: http.StatusUnauthorized, retryable: false, record: false},
	}
	for _, tc := range cases {
		got := ClassifyHTTPStatus(tc.status)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("status %d: got %+v", tc.status, got)
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	if class, ok := ClassifyTransport(context.Canceled); !ok || class.Retryable || class.RecordFailure {
		t.Fatalf("cancellation must neither retry nor trip, got %+v", class)
	}
	if class, ok := ClassifyTransport(fmt.Errorf("send: %w", gobreaker.ErrOpenState)); !ok || !class.Retryable {
		t.Fatalf("open breaker should be retryable, got %+v", class)
	}
	if _, ok := ClassifyTransport(errors.New("decode body")); ok {
		t.Fatalf("unknown errors are left to the caller")
	}
}

func TestWrapTemporary(t *testing.T) {
	retryable := func(error) ErrorClassification { return ErrorClassification{Retryable: true} }

	err := WrapTemporary("crm.ensure_account", errors.New("502"), retryable)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if WrapTemporary("op", nil, retryable) != nil {
		t.Fatalf("nil stays nil")
	}
	permanent := errors.New("400")
	if got := WrapTemporary("op", permanent, nil); got != permanent {
		t.Fatalf("permanent error must pass through, got %v", got)
	}
}
