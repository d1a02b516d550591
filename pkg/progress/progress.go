// Package progress defines how long running operations report progress and
// learn about cancellation.
package progress

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Listener is notified by bulk operations. Progress is a percentage when
// the total amount of work is known, otherwise a running count.
type Listener interface {
	Started()
	Progress(percent float32)
	IsCanceled() bool
	Complete()
}

// Noop ignores every notification and is never canceled.
var Noop Listener = noop{}

type noop struct{}

func (noop) Started()         {}
func (noop) Progress(float32) {}
func (noop) IsCanceled() bool { return false }
func (noop) Complete()        {}

// OrNoop returns l, or Noop when l is nil.
func OrNoop(l Listener) Listener {
	if l == nil {
		return Noop
	}
	return l
}

// Cancelable records progress and can be canceled from another goroutine.
type Cancelable struct {
	canceled atomic.Bool
	mu       sync.Mutex
	started  bool
	done     bool
	last     float32
}

func NewCancelable() *Cancelable {
	return &Cancelable{}
}

func (c *Cancelable) Started() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
}

func (c *Cancelable) Progress(percent float32) {
	c.mu.Lock()
	c.last = percent
	c.mu.Unlock()
}

func (c *Cancelable) IsCanceled() bool { return c.canceled.Load() }

func (c *Cancelable) Complete() {
	c.mu.Lock()
	c.done = true
	c.mu.Unlock()
}

// Cancel asks the operation to stop at the next unit of work.
func (c *Cancelable) Cancel() { c.canceled.Store(true) }

// State returns whether the operation started and completed, and the last
// reported progress.
func (c *Cancelable) State() (started, completed bool, last float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.done, c.last
}

// CancelAfter returns a listener that cancels itself once IsCanceled has
// been asked more than n times.
func CancelAfter(n int64) *CountingCancel {
	return &CountingCancel{limit: n}
}

// CountingCancel cancels after a fixed number of checks.
type CountingCancel struct {
	Cancelable
	limit  int64
	checks atomic.Int64
}

func (c *CountingCancel) IsCanceled() bool {
	if c.checks.Add(1) > c.limit {
		c.Cancel()
	}
	return c.Cancelable.IsCanceled()
}

// WithContext returns a listener that is canceled when ctx is done and
// forwards everything else to l.
func WithContext(ctx context.Context, l Listener) Listener {
	return &contextListener{Listener: OrNoop(l), ctx: ctx}
}

type contextListener struct {
	Listener
	ctx context.Context
}

func (c *contextListener) IsCanceled() bool {
	return c.ctx.Err() != nil || c.Listener.IsCanceled()
}

// Logging reports progress through a logrus entry, logging at most once per
// whole percent.
type Logging struct {
	Cancelable
	entry *logrus.Entry
	step  atomic.Int64
}

func NewLogging(logger *logrus.Logger, operation string) *Logging {
	return &Logging{entry: logger.WithField("operation", operation)}
}

func (l *Logging) Started() {
	l.Cancelable.Started()
	l.entry.Debug("started")
}

func (l *Logging) Progress(percent float32) {
	l.Cancelable.Progress(percent)
	step := int64(percent)
	if prev := l.step.Swap(step); prev != step {
		l.entry.WithField("progress", step).Debug("progress")
	}
}

func (l *Logging) Complete() {
	l.Cancelable.Complete()
	l.entry.Debug("complete")
}
