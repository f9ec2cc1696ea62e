package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Poller runs a function on repeat at a set interval.
// Warning: ticks can be missed, if the function execution is slow.
// At most one invocation of the function is in flight at any time.
type Poller struct {
	fn func(ctx context.Context)

	clock    clock.Clock
	interval time.Duration

	ticker *clock.Ticker // nil if not running

	mu     sync.Mutex
	ctx    context.Context // non-nil when running
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a stopped poller. The context passed to fn is cancelled on Stop.
func NewPoller(fn func(ctx context.Context), clk clock.Clock, interval time.Duration) *Poller {
	return &Poller{
		fn:       fn,
		clock:    clk,
		interval: interval,
	}
}

// Start starts polling in a background routine.
// Duplicate start calls are ignored. Only one routine runs.
func (pd *Poller) Start() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if pd.ctx != nil {
		return // already running
	}

	pd.ctx, pd.cancel = context.WithCancel(context.Background())
	pd.ticker = pd.clock.Ticker(pd.interval)

	ctx, ticker := pd.ctx, pd.ticker
	pd.wg.Add(1)
	go func() {
		defer pd.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				pd.fn(ctx)
			case <-ctx.Done():
				return // quitting
			}
		}
	}()
}

// Running reports whether the background routine is active.
func (pd *Poller) Running() bool {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	return pd.ctx != nil
}

// Stop stops the polling. Duplicate calls are ignored.
// Only if active the polling routine is stopped.
func (pd *Poller) Stop() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	if pd.ctx == nil {
		return // not running, nothing to stop
	}
	pd.cancel()
	pd.wg.Wait()
	pd.ctx = nil
	pd.cancel = nil
	pd.ticker = nil
}

// SetInterval changes the polling interval.
func (pd *Poller) SetInterval(interval time.Duration) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.interval = interval
	// if we're currently running, change the interval of the active ticker
	if pd.ticker != nil {
		pd.ticker.Reset(interval)
	}
}
