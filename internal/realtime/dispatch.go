package realtime

import (
	"log/slog"
	"sync"
)

// Dispatcher runs listener notifications off the caller's goroutine.
type Dispatcher interface {
	Dispatch(job func())
}

// jobQueue is a thread-safe unbounded FIFO of jobs.
//
// The signal channel (buffered, size 1) coalesces wake-ups and is closed on
// Close to release the consumer.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []func()
	closed bool
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a job. Returns false if the queue is closed.
func (q *jobQueue) Enqueue(job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, job)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front job without blocking.
func (q *jobQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}
	job := q.jobs[0]
	// Release the closure for GC.
	q.jobs[0] = nil
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return job, true
}

// Wait returns a channel that signals when jobs may be available.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued jobs.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs and wakes the consumer.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// AsyncDispatcher runs jobs in FIFO order on one background goroutine.
// A panicking job is logged and does not affect later jobs.
type AsyncDispatcher struct {
	q      *jobQueue
	logger *slog.Logger
	done   chan struct{}
}

var _ Dispatcher = (*AsyncDispatcher)(nil)

// NewAsyncDispatcher starts the dispatch goroutine. Call Close to stop it.
func NewAsyncDispatcher(logger *slog.Logger) *AsyncDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &AsyncDispatcher{
		q:      newJobQueue(),
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues job. Jobs dispatched after Close are dropped.
func (d *AsyncDispatcher) Dispatch(job func()) {
	if !d.q.Enqueue(job) {
		d.logger.Debug("dispatch after close dropped")
	}
}

// Close runs the jobs already queued, then stops the goroutine.
func (d *AsyncDispatcher) Close() {
	d.q.Close()
	<-d.done
}

func (d *AsyncDispatcher) run() {
	defer close(d.done)
	for {
		for {
			job, ok := d.q.TryDequeue()
			if !ok {
				break
			}
			runJob(d.logger, job)
		}
		if _, open := <-d.q.Wait(); !open {
			for job, ok := d.q.TryDequeue(); ok; job, ok = d.q.TryDequeue() {
				runJob(d.logger, job)
			}
			return
		}
	}
}

// ManualDispatcher queues jobs until Flush. It gives tests and
// single-threaded embedders full control over delivery.
type ManualDispatcher struct {
	q      *jobQueue
	logger *slog.Logger
}

var _ Dispatcher = (*ManualDispatcher)(nil)

// NewManualDispatcher creates an empty ManualDispatcher.
func NewManualDispatcher() *ManualDispatcher {
	return &ManualDispatcher{q: newJobQueue(), logger: slog.Default()}
}

// Dispatch queues job.
func (d *ManualDispatcher) Dispatch(job func()) {
	d.q.Enqueue(job)
}

// Flush runs queued jobs, including jobs queued while flushing, and returns
// how many ran.
func (d *ManualDispatcher) Flush() int {
	n := 0
	for job, ok := d.q.TryDequeue(); ok; job, ok = d.q.TryDequeue() {
		runJob(d.logger, job)
		n++
	}
	return n
}

// Len returns the number of queued jobs.
func (d *ManualDispatcher) Len() int {
	return d.q.Len()
}

// InlineDispatcher runs each job on the calling goroutine.
type InlineDispatcher struct{}

var _ Dispatcher = InlineDispatcher{}

// Dispatch runs job.
func (InlineDispatcher) Dispatch(job func()) {
	job()
}

// goDispatcher runs each job on its own goroutine, tracked by wg.
type goDispatcher struct {
	wg *sync.WaitGroup
}

func (d goDispatcher) Dispatch(job func()) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		job()
	}()
}

func runJob(logger *slog.Logger, job func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("listener panicked", "panic", r)
		}
	}()
	job()
}
