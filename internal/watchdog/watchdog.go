// Package watchdog implements the failed-tick counter and the critical
// error cancellation token the node main loop uses to trigger a graceful
// restart, grounded on
// original_source/common/src/utils/{watchdog.rs,cancellation_token.rs}.
package watchdog

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

// CriticalErrorCounter is the narrow metrics surface a CancellationToken
// increments on a critical cancellation.
type CriticalErrorCounter interface {
	Inc(int64)
}

// CancellationToken wraps a context cancel function with the critical-error
// logging and metrics increment the Rust CancellationToken performs before
// cancelling.
type CancellationToken struct {
	ctx          context.Context
	cancel       context.CancelFunc
	criticalErrs CriticalErrorCounter
	log          log.Logger
}

// NewCancellationToken derives a cancellable context from parent and wraps
// it. criticalErrs may be nil, in which case no metric is recorded.
func NewCancellationToken(parent context.Context, criticalErrs CriticalErrorCounter) *CancellationToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancellationToken{
		ctx:          ctx,
		cancel:       cancel,
		criticalErrs: criticalErrs,
		log:          log.New("component", "cancellation_token"),
	}
}

// NewMetricsBackedCancellationToken registers the standard critical-errors
// counter with the default metrics registry and wraps it.
func NewMetricsBackedCancellationToken(parent context.Context) *CancellationToken {
	counter := metrics.GetOrRegisterCounter("catalyst/node/critical_errors", nil)
	return NewCancellationToken(parent, counter)
}

// Context returns the context that is cancelled by Cancel or
// CancelOnCriticalError.
func (c *CancellationToken) Context() context.Context { return c.ctx }

// Cancelled returns the done channel of the wrapped context.
func (c *CancellationToken) Cancelled() <-chan struct{} { return c.ctx.Done() }

// IsCancelled reports whether the token has been cancelled.
func (c *CancellationToken) IsCancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Cancel cancels the token without recording a critical error.
func (c *CancellationToken) Cancel() { c.cancel() }

// CancelOnCriticalError logs the reason, increments the critical-errors
// counter, and cancels the token.
func (c *CancellationToken) CancelOnCriticalError(reason string) {
	c.log.Error("critical error occurred, cancelling token", "reason", reason)
	if c.criticalErrs != nil {
		c.criticalErrs.Inc(1)
	}
	c.cancel()
}

// Watchdog counts consecutive failed ticks and triggers a critical
// cancellation once the count exceeds maxCounter.
type Watchdog struct {
	mu          sync.Mutex
	counter     uint64
	maxCounter  uint64
	cancelToken *CancellationToken
	log         log.Logger
}

// New constructs a Watchdog that cancels cancelToken once Increment has been
// called more than maxCounter times since the last Reset.
func New(cancelToken *CancellationToken, maxCounter uint64) *Watchdog {
	return &Watchdog{cancelToken: cancelToken, maxCounter: maxCounter, log: log.New("component", "watchdog")}
}

// Reset zeroes the failed-tick counter, called after any successful tick.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counter = 0
}

// Increment records one more failed tick, cancelling the token once the
// counter exceeds maxCounter.
func (w *Watchdog) Increment() {
	w.mu.Lock()
	w.counter++
	counter := w.counter
	w.mu.Unlock()

	if counter > w.maxCounter {
		w.log.Error("watchdog triggered, shutting down", "heartbeats", counter)
		w.cancelToken.CancelOnCriticalError("watchdog exceeded the maximum allowed failed ticks")
	}
}

// Counter returns the current failed-tick count, for observability.
func (w *Watchdog) Counter() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counter
}
