package txmgr

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ethtx/ethtx/callargs"
	"github.com/ethtx/ethtx/chain"
)

// Sender submits raw transactions. Manager implements it.
type Sender interface {
	SendTransaction(ctx context.Context, p callargs.Params) (*chain.Submission, error)
}

var _ Sender = (*Manager)(nil)

type Result[T any] struct {
	// ID identifies the send within the result channel
	ID T
	// Submission of the transaction, nil on error
	Submission *chain.Submission
	// Err contains any error that occurred during the send
	Err error
}

// Queue sends transactions concurrently, with a bound on the number in flight.
// Sends are not ordered: callers that need nonce ordering set $nonce themselves.
type Queue[T any] struct {
	ctx        context.Context
	sender     Sender
	maxPending uint64
	groupLock  sync.Mutex
	groupCtx   context.Context
	group      *errgroup.Group
}

// NewQueue creates a new transaction sending Queue, with the following parameters:
//   - ctx: runtime context of the queue. If canceled, all ongoing sends are canceled.
//   - sender: used for every send
//   - maxPending: max number of sends in flight at once (0 == no limit)
func NewQueue[T any](ctx context.Context, sender Sender, maxPending uint64) *Queue[T] {
	if maxPending > math.MaxInt {
		maxPending = math.MaxInt
	}
	return &Queue[T]{
		ctx:        ctx,
		sender:     sender,
		maxPending: maxPending,
	}
}

// Wait waits for all pending sends to complete (or fail).
func (q *Queue[T]) Wait() error {
	q.groupLock.Lock()
	group := q.group
	q.groupLock.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Send waits until the number of pending sends is below the max pending,
// and then sends p asynchronously. The outcome is delivered on resultCh.
// If the channel is unbuffered, the send routine is blocked until the channel is read from.
func (q *Queue[T]) Send(id T, p callargs.Params, resultCh chan Result[T]) {
	group, ctx := q.groupContext()
	group.Go(q.handler(ctx, id, p, resultCh))
}

// TrySend sends p, but only if the number of pending sends is below the max pending.
// It returns false if there is no room in the queue.
func (q *Queue[T]) TrySend(id T, p callargs.Params, resultCh chan Result[T]) bool {
	group, ctx := q.groupContext()
	return group.TryGo(q.handler(ctx, id, p, resultCh))
}

func (q *Queue[T]) handler(ctx context.Context, id T, p callargs.Params, resultCh chan Result[T]) func() error {
	return func() error {
		sub, err := q.sender.SendTransaction(ctx, p)
		resultCh <- Result[T]{ID: id, Submission: sub, Err: err}
		return err
	}
}

// groupContext returns a Group and a Context to use for a send.
//
// If any pending send returned an error, the queue's shared error Group is canceled.
// This method then waits on that Group for all pending sends to return,
// and creates a new Group with the queue's context as its parent.
func (q *Queue[T]) groupContext() (*errgroup.Group, context.Context) {
	q.groupLock.Lock()
	defer q.groupLock.Unlock()
	if q.groupCtx == nil || q.groupCtx.Err() != nil {
		if q.group != nil {
			_ = q.group.Wait()
		}
		q.group, q.groupCtx = errgroup.WithContext(q.ctx)
		if q.maxPending > 0 {
			q.group.SetLimit(int(q.maxPending))
		}
	}
	return q.group, q.groupCtx
}
