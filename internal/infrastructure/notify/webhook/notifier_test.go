package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
	"github.com/kirillkom/rental-intake/internal/infrastructure/resilience"
)

var _ ports.Notifier = (*Notifier)(nil)

func sampleEvent() domain.Event {
	return domain.Event{
		ID:        "evt-1",
		Type:      domain.EventDocumentUpload,
		Timestamp: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		Payload:   map[string]any{"dossierId": "dossier-1", "fileName": "id.pdf"},
	}
}

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("", 0, nil)
	if err := n.Send(context.Background(), sampleEvent()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendPostsFlatEnvelope(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := NewNotifier(srv.URL, time.Second, nil).Send(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["eventId"] != "evt-1" || body["eventType"] != "document_upload" || body["fileName"] != "id.pdf" {
		t.Fatalf("unexpected envelope %v", body)
	}
	if body["timestamp"] != "2026-10-19T09:00:00Z" {
		t.Fatalf("unexpected timestamp %v", body["timestamp"])
	}
}

func TestSendDoesNotRetryAndTripsBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exec := resilience.NewExecutor(resilience.Config{
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}.AtMostOnce())
	n := NewNotifier(srv.URL, time.Second, exec)

	for i := 0; i < 2; i++ {
		var statusErr *StatusError
		if err := n.Send(context.Background(), sampleEvent()); !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("attempt %d: expected 503 status error, got %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one request per event, got %d", calls.Load())
	}

	if err := n.Send(context.Background(), sampleEvent()); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("open breaker must not reach the endpoint")
	}
}
