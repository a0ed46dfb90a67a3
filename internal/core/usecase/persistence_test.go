package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

func TestSaveCoordinatorDebouncesMutations(t *testing.T) {
	clock := &manualScheduler{}
	var saves atomic.Int32
	c := NewSaveCoordinator(clock, func(context.Context) error {
		saves.Add(1)
		return nil
	})

	c.NotifyMutation()
	clock.Advance(1500 * time.Millisecond)
	c.NotifyMutation()
	clock.Advance(1500 * time.Millisecond)
	if saves.Load() != 0 {
		t.Fatalf("save fired before quiet period elapsed")
	}
	if !c.Pending() {
		t.Fatalf("expected pending save")
	}

	clock.Advance(500 * time.Millisecond)
	if saves.Load() != 1 {
		t.Fatalf("expected exactly one save, got %d", saves.Load())
	}
	if got := c.Status().State; got != domain.SaveSaved {
		t.Fatalf("expected saved, got %s", got)
	}

	clock.Advance(SaveStatusReset)
	if got := c.Status().State; got != domain.SaveIdle {
		t.Fatalf("expected idle after reset, got %s", got)
	}
}

func TestSaveCoordinatorErrorIsNotRetried(t *testing.T) {
	clock := &manualScheduler{}
	var saves atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)
	c := NewSaveCoordinator(clock, func(context.Context) error {
		saves.Add(1)
		if fail.Load() {
			return errors.New("db unavailable")
		}
		return nil
	})

	c.NotifyMutation()
	clock.Advance(SaveDebounce)
	status := c.Status()
	if status.State != domain.SaveError || status.Error == "" {
		t.Fatalf("expected error status, got %+v", status)
	}

	clock.Advance(time.Minute)
	if saves.Load() != 1 {
		t.Fatalf("failed save must not be retried, got %d attempts", saves.Load())
	}
	if c.Status().State != domain.SaveIdle {
		t.Fatalf("expected idle once the badge expires")
	}

	fail.Store(false)
	c.NotifyMutation()
	clock.Advance(SaveDebounce)
	if saves.Load() != 2 || c.Status().State != domain.SaveSaved {
		t.Fatalf("expected next mutation to retry, attempts=%d state=%s", saves.Load(), c.Status().State)
	}
}

func TestSaveCoordinatorFlushCancelsTimer(t *testing.T) {
	clock := &manualScheduler{}
	var saves atomic.Int32
	c := NewSaveCoordinator(clock, func(context.Context) error {
		saves.Add(1)
		return nil
	})

	c.NotifyMutation()
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	clock.Advance(SaveDebounce)
	if saves.Load() != 1 {
		t.Fatalf("expected flush to replace the debounced save, got %d", saves.Load())
	}
}

func TestSaveCoordinatorCloseCancelsPending(t *testing.T) {
	clock := &manualScheduler{}
	var saves atomic.Int32
	c := NewSaveCoordinator(clock, func(context.Context) error {
		saves.Add(1)
		return nil
	})

	c.NotifyMutation()
	c.Close()
	clock.Advance(SaveDebounce)
	c.NotifyMutation()
	clock.Advance(SaveDebounce)
	if saves.Load() != 0 {
		t.Fatalf("expected no saves after close, got %d", saves.Load())
	}
}
