package connection

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethtx/ethtx/chain/chaintest"
	"github.com/ethtx/ethtx/testlog"
)

const eventualTimeout = 10 * time.Second

type countingMetrics struct {
	attaches atomic.Int64
	changes  atomic.Int64
}

func (m *countingMetrics) RecordAttach(string)     { m.attaches.Add(1) }
func (m *countingMetrics) RecordConnectionChange() { m.changes.Add(1) }

func expectSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(eventualTimeout):
		t.Fatal("expected a change notification")
		return Snapshot{}
	}
}

func expectNoSnapshot(t *testing.T, ch <-chan Snapshot) {
	t.Helper()
	select {
	case snap := <-ch:
		t.Fatalf("unexpected change notification: %+v", snap)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherNotifiesChanges(t *testing.T) {
	lgr := testlog.Logger(t, log.LevelDebug)
	m := new(countingMetrics)
	s := NewState(lgr, m)
	backend, c := attachedBackend(t)
	require.NoError(t, s.Attach(context.Background(), c))
	require.EqualValues(t, 1, m.attaches.Load())

	cl := clock.NewMock()
	w := NewWatcher(lgr, s, m, cl, time.Second)
	defer w.Close()

	changes := make(chan Snapshot, 10)
	cancel := w.Subscribe(func(snap Snapshot) { changes <- snap })

	// the first poll reports the attached state
	cl.Add(time.Second)
	snap := expectSnapshot(t, changes)
	require.True(t, snap.Connected)
	require.Equal(t, chaintest.Accounts(2), snap.Accounts)

	// nothing changed
	cl.Add(time.Second)
	expectNoSnapshot(t, changes)

	backend.SetAccounts(chaintest.Accounts(3)...)
	cl.Add(time.Second)
	snap = expectSnapshot(t, changes)
	require.Equal(t, chaintest.Accounts(3), snap.Accounts)
	require.Equal(t, chaintest.Accounts(3), s.CachedAccounts())

	backend.SetNetworkID(42)
	cl.Add(time.Second)
	snap = expectSnapshot(t, changes)
	require.EqualValues(t, 42, snap.Network.Uint64())

	cancel()
	backend.SetAccounts(chaintest.Accounts(1)...)
	cl.Add(time.Second)
	expectNoSnapshot(t, changes)
	require.Eventually(t, func() bool {
		return m.changes.Load() == 4
	}, eventualTimeout, 10*time.Millisecond)
}

func TestWatcherUnattached(t *testing.T) {
	lgr := testlog.Logger(t, log.LevelDebug)
	m := new(countingMetrics)
	s := NewState(lgr, m)
	cl := clock.NewMock()
	w := NewWatcher(lgr, s, m, cl, 0)
	defer w.Close()

	changes := make(chan Snapshot, 10)
	w.Subscribe(func(snap Snapshot) { changes <- snap })

	// an unattached state polls as disconnected, which is not a change
	cl.Add(DefaultPollInterval)
	expectNoSnapshot(t, changes)

	backend, c := attachedBackend(t)
	require.NoError(t, s.Attach(context.Background(), c))
	cl.Add(DefaultPollInterval)
	snap := expectSnapshot(t, changes)
	require.True(t, snap.Connected)
	require.EqualValues(t, 1337, snap.Network.Uint64())
	require.NotEmpty(t, backend.Calls())
}

func TestWatcherPollFailure(t *testing.T) {
	lgr, logs := testlog.CaptureLogger(t, log.LevelDebug)
	m := new(countingMetrics)
	s := NewState(lgr, m)
	backend, c := attachedBackend(t)
	require.NoError(t, s.Attach(context.Background(), c))

	cl := clock.NewMock()
	w := NewWatcher(lgr, s, m, cl, time.Second)
	defer w.Close()
	changes := make(chan Snapshot, 10)
	w.Subscribe(func(snap Snapshot) { changes <- snap })

	c.Close()
	cl.Add(time.Second)
	require.Eventually(t, func() bool {
		return logs.FindLog(log.LevelWarn, "Failed to poll connection state") != nil
	}, eventualTimeout, 10*time.Millisecond)
	expectNoSnapshot(t, changes)
	require.Zero(t, m.changes.Load())
	require.Len(t, backend.Sent(), 0)
}

func TestWatcherSetInterval(t *testing.T) {
	lgr := testlog.Logger(t, log.LevelDebug)
	m := new(countingMetrics)
	s := NewState(lgr, m)
	backend, c := attachedBackend(t)
	require.NoError(t, s.Attach(context.Background(), c))

	cl := clock.NewMock()
	w := NewWatcher(lgr, s, m, cl, time.Second)
	defer w.Close()
	changes := make(chan Snapshot, 10)
	w.Subscribe(func(snap Snapshot) { changes <- snap })

	w.SetInterval(5 * time.Second)
	cl.Add(time.Second)
	expectNoSnapshot(t, changes)
	cl.Add(4 * time.Second)
	snap := expectSnapshot(t, changes)
	require.True(t, snap.Connected)

	// a non-positive interval falls back to the default
	w.SetInterval(0)
	backend.SetAccounts(chaintest.Accounts(3)...)
	cl.Add(DefaultPollInterval)
	snap = expectSnapshot(t, changes)
	require.Equal(t, chaintest.Accounts(3), snap.Accounts)
}
