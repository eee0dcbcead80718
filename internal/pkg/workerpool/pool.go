// Package workerpool implements a fixed-size pool of workers draining a FIFO
// task queue.
//
// Enqueue never blocks and accepted tasks are never discarded: Stop drains
// the queue to completion before returning. A panicking task is recovered
// inside its worker so siblings keep running.
package workerpool

import (
	"log/slog"
	"sync"
)

const defaultWorkers = 2

// Task is a unit of queued work.
type Task func()

// Pool is a fixed-size worker pool over an unbounded FIFO queue.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	stopped bool

	wg     sync.WaitGroup
	logger *slog.Logger
}

// New creates a pool with n workers and starts them. n below 1 falls back to
// the default of 2.
func New(n int, logger *slog.Logger) *Pool {
	if n < 1 {
		n = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{logger: logger}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker(i)
	}
	return p
}

// Enqueue appends a task to the queue. It never blocks. Tasks submitted
// after Stop are rejected and the return value is false.
func (p *Pool) Enqueue(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return true
}

// Len returns the number of tasks waiting in the queue.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop rejects further tasks, drains the queue and waits for workers to
// finish. Safe to call more than once.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panic recovered", "worker", id, "panic", r)
		}
	}()
	task()
}
