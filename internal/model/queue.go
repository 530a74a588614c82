package model

import (
	"context"
	"io"
	"sync"
)

// Queue serializes calls to a model that is not safe for concurrent use.
// A single worker goroutine owns the model; callers wait only for their
// own job and give up when their context ends.
type Queue struct {
	inner Model
	jobs  chan predictJob
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

type predictJob struct {
	ctx    context.Context
	in     Input
	result chan predictResult
}

type predictResult struct {
	labels []Label
	err    error
}

// Serialize wraps m in a Queue with room for depth waiting jobs.
func Serialize(m Model, depth int) *Queue {
	if depth < 0 {
		depth = 0
	}
	q := &Queue{
		inner: m,
		jobs:  make(chan predictJob, depth),
		quit:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.processLoop()
	return q
}

func (q *Queue) Name() string    { return q.inner.Name() }
func (q *Queue) Kind() Kind      { return q.inner.Kind() }
func (q *Queue) Version() string { return q.inner.Version() }

// Predict enqueues the call and waits for its result.
func (q *Queue) Predict(ctx context.Context, in Input) ([]Label, error) {
	job := predictJob{ctx: ctx, in: in, result: make(chan predictResult, 1)}

	select {
	case <-q.quit:
		return nil, ErrClosed
	default:
	}

	select {
	case q.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.quit:
		return nil, ErrClosed
	}

	select {
	case r := <-job.result:
		return r.labels, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.quit:
		// Wait for an in-flight job; Close blocks on the worker anyway.
		q.wg.Wait()
		select {
		case r := <-job.result:
			return r.labels, r.err
		default:
			return nil, ErrClosed
		}
	}
}

func (q *Queue) processLoop() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			q.run(job)
		case <-q.quit:
			q.drain()
			return
		}
	}
}

func (q *Queue) run(job predictJob) {
	// Skip jobs whose caller already gave up while waiting.
	if err := job.ctx.Err(); err != nil {
		job.result <- predictResult{err: err}
		return
	}
	labels, err := q.inner.Predict(job.ctx, job.in)
	job.result <- predictResult{labels: labels, err: err}
}

func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.result <- predictResult{err: ErrClosed}
		default:
			return
		}
	}
}

// Close stops the worker and releases the wrapped model.
func (q *Queue) Close() error {
	var err error
	q.once.Do(func() {
		close(q.quit)
		q.wg.Wait()
		if c, ok := q.inner.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
