package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

type RelayMetrics interface {
	StartDelivery()
	FinishDelivery(service, eventType string, duration time.Duration, err error)
	ObserveEventLag(service string, lag time.Duration)
}

// EventRelay forwards events consumed from the bus to one downstream
// notifier. Delivery is at most once: a failed event is logged and dropped.
type EventRelay struct {
	service string
	target  ports.Notifier
	metrics RelayMetrics
	timeout time.Duration
	now     func() time.Time
}

func NewEventRelay(service string, target ports.Notifier, metrics RelayMetrics, timeout time.Duration) *EventRelay {
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	return &EventRelay{
		service: service,
		target:  target,
		metrics: metrics,
		timeout: timeout,
		now:     time.Now,
	}
}

// Handle never returns the delivery error so the subscriber does not
// treat it as a redelivery signal.
func (r *EventRelay) Handle(ctx context.Context, event domain.Event) error {
	start := r.now()
	if r.metrics != nil {
		if !event.Timestamp.IsZero() {
			r.metrics.ObserveEventLag(r.service, start.Sub(event.Timestamp))
		}
		r.metrics.StartDelivery()
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := safeSend(sendCtx, r.target, event)

	if r.metrics != nil {
		r.metrics.FinishDelivery(r.service, string(event.Type), r.now().Sub(start), err)
	}
	if err != nil {
		slog.Warn("event_relay_failed",
			"event_id", event.ID,
			"event_type", string(event.Type),
			"target", r.target.Name(),
			"error", err,
		)
		return nil
	}
	slog.Debug("event_relayed", "event_id", event.ID, "event_type", string(event.Type), "target", r.target.Name())
	return nil
}
