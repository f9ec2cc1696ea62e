package connection

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx/tasks"
)

const DefaultPollInterval = time.Second

// Listener receives the new snapshot after every observed change.
type Listener func(Snapshot)

// Watcher polls the state at a fixed interval and notifies listeners of changes.
// The first subscription starts polling.
type Watcher struct {
	log      log.Logger
	metrics  Metricer
	state    *State
	interval time.Duration
	poller   *tasks.Poller

	mu        sync.Mutex
	last      Snapshot
	listeners map[uint64]Listener
	nextID    uint64
}

func NewWatcher(logger log.Logger, state *State, m Metricer, clk clock.Clock, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w := &Watcher{
		log:       logger,
		metrics:   m,
		state:     state,
		interval:  interval,
		listeners: make(map[uint64]Listener),
	}
	w.poller = tasks.NewPoller(w.poll, clk, interval)
	return w
}

// Subscribe registers fn. The returned function removes it again.
func (w *Watcher) Subscribe(fn Listener) (cancel func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	w.poller.Start()
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

// SetInterval changes the polling interval, also while polling is active.
// A non-positive interval restores DefaultPollInterval.
func (w *Watcher) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	w.mu.Lock()
	w.interval = d
	w.mu.Unlock()
	w.poller.SetInterval(d)
}

// Close stops polling.
func (w *Watcher) Close() {
	w.poller.Stop()
}

func (w *Watcher) poll(ctx context.Context) {
	w.mu.Lock()
	timeout := w.interval
	w.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snap, err := w.state.Refresh(ctx)
	if err != nil {
		w.log.Warn("Failed to poll connection state", "err", err)
		return
	}

	w.mu.Lock()
	if snap.Equal(w.last) {
		w.mu.Unlock()
		return
	}
	w.last = snap
	listeners := make([]Listener, 0, len(w.listeners))
	for _, fn := range w.listeners {
		listeners = append(listeners, fn)
	}
	w.mu.Unlock()

	w.metrics.RecordConnectionChange()
	w.log.Debug("Connection state changed", "connected", snap.Connected, "network", snap.Network, "accounts", len(snap.Accounts))
	for _, fn := range listeners {
		fn(snap)
	}
}
