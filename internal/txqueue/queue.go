// Package txqueue serializes state-changing chain submissions through a
// single worker. The relayer signs every write with one account, so two
// concurrent submissions would race on account state at the node; running
// them one at a time keeps submission order deterministic.
package txqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned for submissions after Stop.
var ErrQueueClosed = errors.New("transaction queue closed")

type job struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Queue runs submitted functions one at a time in submission order.
type Queue struct {
	log  *logrus.Entry
	jobs chan job

	stopOnce sync.Once
	quit     chan struct{}
	stopped  chan struct{}
}

// New creates a queue with the given buffer depth. Start must be called
// before Do.
func New(log *logrus.Entry, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 16
	}
	return &Queue{
		log:     log,
		jobs:    make(chan job, buffer),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (q *Queue) Start() {
	go q.run()
}

// Stop drains no further jobs and waits for the in-flight job to finish.
// Queued jobs that never ran fail with ErrQueueClosed.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		close(q.quit)
	})
	<-q.stopped
}

// Do enqueues fn and blocks until it has run or ctx is done. fn itself runs
// on the worker goroutine with the submitter's context.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case q.jobs <- j:
	case <-q.quit:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		// The worker still runs the job; the caller just stops waiting.
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		select {
		case j := <-q.jobs:
			q.runJob(j)
		case <-q.quit:
			// Fail whatever is still queued.
			for {
				select {
				case j := <-q.jobs:
					j.done <- ErrQueueClosed
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) runJob(j job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.WithField("panic", r).Error("transaction job panicked")
			j.done <- errors.New("transaction job panicked")
		}
	}()
	j.done <- j.fn(j.ctx)
}
