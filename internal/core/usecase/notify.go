package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

const defaultNotifyTimeout = 10 * time.Second

// EventEmitter is the one-way side channel intake operations report to.
type EventEmitter interface {
	Dispatch(eventType domain.EventType, payload map[string]any)
}

// Dispatcher delivers events to every notifier in the background. Delivery
// is at most once; failures are logged and counted, never returned.
type Dispatcher struct {
	notifiers []ports.Notifier
	metrics   ports.IntakeMetrics
	timeout   time.Duration
	now       func() time.Time

	wg sync.WaitGroup
}

func NewDispatcher(notifiers []ports.Notifier, metrics ports.IntakeMetrics, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		notifiers: notifiers,
		metrics:   metrics,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (d *Dispatcher) Dispatch(eventType domain.EventType, payload map[string]any) {
	if len(d.notifiers) == 0 {
		return
	}
	event := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: d.now().UTC(),
		Payload:   payload,
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		for _, notifier := range d.notifiers {
			err := safeSend(ctx, notifier, event)
			d.metrics.ObserveNotification(event.Type, notifier.Name(), err)
			if err != nil {
				slog.Warn("notification_dispatch_failed",
					"notifier", notifier.Name(),
					"event_type", string(event.Type),
					"event_id", event.ID,
					"error", err,
				)
				continue
			}
			slog.Debug("notification_dispatched", "notifier", notifier.Name(), "event_type", string(event.Type), "event_id", event.ID)
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func safeSend(ctx context.Context, notifier ports.Notifier, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return notifier.Send(ctx, event)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSave(time.Duration, error)                    {}
func (noopMetrics) ObserveUpload(string, int, error)                    {}
func (noopMetrics) ObserveNotification(domain.EventType, string, error) {}
