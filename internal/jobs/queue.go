package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"ripple/internal/middleware"
	"ripple/internal/models"
	"ripple/internal/observability"
)

// ErrQueueClosed is returned by Submit after the queue has shut down.
var ErrQueueClosed = errors.New("job queue is closed")

type submission struct {
	job    Job
	handle *Handle
}

// Queue runs jobs on a fixed pool of workers. Submitters get a Handle
// and decide independently how long to wait; a submitter walking away
// does not cancel the job.
type Queue struct {
	deps    Deps
	pending chan submission

	// mu serializes senders against close: Submit holds it in read mode
	// for the duration of the send, Shutdown in write mode around
	// close(pending), so the channel is never closed under a sender.
	mu     sync.RWMutex
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewQueue creates a queue with the given worker count and buffer size.
// Start must be called before submitting.
func NewQueue(deps Deps, workers, size int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	q := &Queue{
		deps:    deps,
		pending: make(chan submission, size),
	}
	q.baseCtx, q.cancel = context.WithCancel(context.Background())
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues the job and returns a handle for awaiting its outcome.
// Blocks while the buffer is full; ctx bounds only the enqueue, not the
// job's execution.
func (q *Queue) Submit(ctx context.Context, job Job) (*Handle, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	h := newHandle()
	select {
	case q.pending <- submission{job: job, handle: h}:
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.baseCtx.Done():
		return nil, ErrQueueClosed
	}
}

// Shutdown stops accepting jobs, lets queued work drain, and waits for
// the workers to exit or ctx to expire. The write lock waits out any
// Submit still blocked on a full buffer; workers keep draining in the
// meantime, so that sender completes before the channel closes.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.pending)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for sub := range q.pending {
		q.run(sub)
	}
}

// run executes one job under the queue's own context. Jobs deliberately
// outlive the submitting request or connection: a moderated write that
// started must finish even if the client gave up.
func (q *Queue) run(sub submission) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("PANIC in job", "kind", sub.job.Kind(), "panic", r, "stack", string(debug.Stack()))
			middleware.JobExecutions.WithLabelValues(sub.job.Kind(), "panic").Inc()
			sub.handle.complete(Result{}, models.NewInternalError(fmt.Errorf("job panicked: %v", r)))
		}
	}()

	ctx, span := observability.StartJobSpan(q.baseCtx, sub.job.Kind())
	defer span.End()

	res, err := sub.job.Execute(ctx, q.deps)
	observability.RecordError(ctx, err)
	switch {
	case err != nil:
		middleware.JobExecutions.WithLabelValues(sub.job.Kind(), "error").Inc()
	case res.Status == StatusFail:
		middleware.JobExecutions.WithLabelValues(sub.job.Kind(), "fail").Inc()
	default:
		middleware.JobExecutions.WithLabelValues(sub.job.Kind(), "success").Inc()
	}
	sub.handle.complete(res, err)
}
