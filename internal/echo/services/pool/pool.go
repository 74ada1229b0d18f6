// Package pool implements a fixed-size worker pool over a shared unbounded
// FIFO queue. Workers are long-lived goroutines that race for queued
// messages; shutdown is a drain, not a cancel.
package pool

import (
	"fmt"
	"sync"

	"github.com/haukened/wp-echo/internal/echo/common/log"
)

// Job is a single-execution unit of work submitted to the pool.
type Job func()

// message is the tagged queue entry: either a Job or a terminate sentinel.
type message struct {
	job       Job
	terminate bool
}

// Pool runs submitted jobs on a fixed set of workers. The queue is
// unbounded so Submit never blocks the caller; a channel would impose a
// capacity and make Submit block once full.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []message
	closed bool

	size   int
	wg     sync.WaitGroup
	logger log.Logger
}

// New creates a pool with size workers, all started and idle before New
// returns. size must be at least one.
func New(size int, logger log.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	p := &Pool{
		size:   size,
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Debug(map[string]any{"workers": size}, "worker pool started")
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit enqueues job for execution by some worker. It never blocks.
// Once Shutdown has begun the enqueue is best-effort: the job is
// silently dropped.
func (p *Pool) Submit(job Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Debug(nil, "job submitted after shutdown, dropping")
		return
	}
	p.queue = append(p.queue, message{job: job})
	p.cond.Signal()
}

// Shutdown enqueues one terminate sentinel per worker, closes the queue
// to further submissions, and blocks until every worker has drained all
// work queued ahead of the sentinels and exited. Safe to call more than
// once; later calls still wait for the drain.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.closed {
		for i := 0; i < p.size; i++ {
			p.queue = append(p.queue, message{terminate: true})
		}
		p.closed = true
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the long-lived loop for a single worker. It pops messages in
// FIFO order, running jobs to completion and exiting on a terminate
// sentinel or a closed empty queue.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		msg, ok := p.next()
		if !ok || msg.terminate {
			p.logger.Debug(map[string]any{"worker": id}, "worker stopped")
			return
		}
		msg.job()
	}
}

// next blocks until a message is available or the queue is closed and
// empty. The second return is false only in the closed-and-empty case.
func (p *Pool) next() (message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return message{}, false
	}
	msg := p.queue[0]
	p.queue = p.queue[1:]
	return msg, true
}
