package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

const (
	// SaveDebounce is the quiet period before a mutation is persisted.
	SaveDebounce = 2 * time.Second
	// SaveStatusReset is how long Saved or Error stays visible.
	SaveStatusReset = 3 * time.Second

	defaultSaveTimeout = 30 * time.Second
)

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests swap in a virtual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func SystemScheduler() Scheduler {
	return systemScheduler{}
}

// SaveCoordinator debounces mutations into single saves and tracks the
// Idle -> Saving -> Saved|Error -> Idle state machine. A failed save is not
// retried; the next mutation schedules the next attempt.
type SaveCoordinator struct {
	scheduler   Scheduler
	save        func(context.Context) error
	saveTimeout time.Duration

	runMu sync.Mutex

	mu         sync.Mutex
	state      domain.SaveState
	lastErr    error
	pending    Timer
	pendingSeq uint64
	reset      Timer
	resetSeq   uint64
	closed     bool
}

func NewSaveCoordinator(scheduler Scheduler, save func(context.Context) error) *SaveCoordinator {
	if scheduler == nil {
		scheduler = SystemScheduler()
	}
	return &SaveCoordinator{
		scheduler:   scheduler,
		save:        save,
		saveTimeout: defaultSaveTimeout,
		state:       domain.SaveIdle,
	}
}

// NotifyMutation (re)starts the debounce timer.
func (c *SaveCoordinator) NotifyMutation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pendingSeq++
	seq := c.pendingSeq
	c.pending = c.scheduler.AfterFunc(SaveDebounce, func() { c.fire(seq) })
}

// Pending reports whether a debounced save is waiting to fire.
func (c *SaveCoordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *SaveCoordinator) fire(seq uint64) {
	c.mu.Lock()
	if c.closed || seq != c.pendingSeq {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.saveTimeout)
	defer cancel()
	_ = c.run(ctx)
}

// Flush cancels any pending timer and saves immediately.
func (c *SaveCoordinator) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.pendingSeq++
	c.mu.Unlock()
	return c.run(ctx)
}

func (c *SaveCoordinator) run(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if c.reset != nil {
		c.reset.Stop()
		c.reset = nil
	}
	c.resetSeq++
	c.state = domain.SaveSaving
	c.mu.Unlock()

	err := c.save(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = domain.SaveError
		c.lastErr = err
	} else {
		c.state = domain.SaveSaved
		c.lastErr = nil
	}
	if !c.closed {
		seq := c.resetSeq
		c.reset = c.scheduler.AfterFunc(SaveStatusReset, func() { c.resetToIdle(seq) })
	}
	return err
}

func (c *SaveCoordinator) resetToIdle(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.resetSeq {
		return
	}
	c.reset = nil
	if c.state == domain.SaveSaved || c.state == domain.SaveError {
		c.state = domain.SaveIdle
	}
}

func (c *SaveCoordinator) Status() domain.SaveStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := domain.SaveStatus{State: c.state}
	if c.state == domain.SaveError && c.lastErr != nil {
		status.Error = c.lastErr.Error()
	}
	return status
}

// Close cancels pending timers. A save already running is left to finish.
func (c *SaveCoordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.reset != nil {
		c.reset.Stop()
		c.reset = nil
	}
}
