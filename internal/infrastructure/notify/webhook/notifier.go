// Package webhook delivers intake events to the automation endpoint as a
// single JSON POST per event.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/infrastructure/resilience"
)

const providerName = "webhook"

var ErrNotConfigured = errors.New("webhook url not configured")

// Notifier posts the event envelope. Delivery is at most once: the executor
// it is given should be configured with resilience.Config.AtMostOnce so the
// breaker sheds load from a dead endpoint without replaying events.
type Notifier struct {
	url        string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewNotifier(url string, timeout time.Duration, executor *resilience.Executor) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Send(ctx context.Context, event domain.Event) error {
	if n.url == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	call := func(ctx context.Context) error {
		return n.post(ctx, body)
	}
	if n.executor != nil {
		return n.executor.Execute(ctx, "webhook.send", call, classifyWebhookError)
	}
	return call(ctx)
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook status %d: %s", e.StatusCode, e.Body)
}

func classifyWebhookError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return resilience.ClassifyHTTPStatus(statusErr.StatusCode)
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
