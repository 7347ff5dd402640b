package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of goroutines.
// Submit jobs, then Close; Results is closed once every worker has exited.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	stop       chan struct{}
	closeJobs  sync.Once
	closeOnce  sync.Once
	stopOnce   sync.Once
}

// NewPool creates a pool bound to ctx; cancelling ctx stops the workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
		stop:       make(chan struct{}),
	}
}

// Start starts the workers and the goroutine that closes Results when they finish
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			// A finished job is delivered even after ctx is cancelled; only
			// Shutdown drops it
			select {
			case p.results <- job.Execute(p.ctx):
			case <-p.stop:
				return
			}
			if p.ctx.Err() != nil {
				return
			}
		}
	}
}

// Submit queues a job. It reports false when the pool has been stopped.
// Submit must not be called after Close.
func (p *Pool) Submit(job Job) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Close signals that no more jobs will be submitted
func (p *Pool) Close() {
	p.closeJobs.Do(func() {
		close(p.jobQueue)
	})
}

// Results streams job results; it must be drained concurrently with Submit
// once more jobs than the buffer holds are queued
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown stops the pool and releases its context. Queued jobs and
// undelivered results are dropped; it does not need Results to be drained.
func (p *Pool) Shutdown() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
