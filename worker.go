package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	ErrInvalidPoolSize = errors.New("worker pool size must be positive")
	ErrPoolClosed      = errors.New("worker pool is shut down")
	ErrQueueFull       = errors.New("worker pool queue is full")
)

// Task is one unit of work, run exactly once by exactly one worker.
type Task func()

// Backpressure decides what Submit does when the queue is full.
type Backpressure int

const (
	// BlockWhenFull makes Submit wait until a worker frees a queue slot.
	BlockWhenFull Backpressure = iota
	// RejectWhenFull makes Submit fail with ErrQueueFull.
	RejectWhenFull
)

func (b Backpressure) String() string {
	switch b {
	case BlockWhenFull:
		return "block"
	case RejectWhenFull:
		return "reject"
	default:
		return fmt.Sprintf("Backpressure(%d)", int(b))
	}
}

func ParseBackpressure(s string) (Backpressure, error) {
	switch strings.ToLower(s) {
	case "block":
		return BlockWhenFull, nil
	case "reject":
		return RejectWhenFull, nil
	}
	return 0, fmt.Errorf("unknown backpressure policy %q (want block or reject)", s)
}

// message is either a task to run or, when stop is set, a shutdown notice
// for the one worker that receives it.
type message struct {
	task Task
	stop bool
}

type WorkerPoolOpts struct {
	Size         int
	QueueSize    int
	Backpressure Backpressure
	Logger       *slog.Logger
}

type PoolStats struct {
	Submitted uint64
	Completed uint64
	Panicked  uint64
	Rejected  uint64
}

// WorkerPool runs tasks on a fixed number of goroutines fed from one FIFO queue.
type WorkerPool struct {
	N int

	queue  chan message
	policy Backpressure
	log    *slog.Logger

	mu     sync.RWMutex // held for reading while enqueueing, for writing by Shutdown
	closed bool
	once   sync.Once

	wg *sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	panicked  atomic.Uint64
	rejected  atomic.Uint64
}

func NewWorkerPool(opts WorkerPoolOpts) (*WorkerPool, error) {
	if opts.Size <= 0 {
		return nil, ErrInvalidPoolSize
	}
	if opts.QueueSize < 0 {
		return nil, fmt.Errorf("worker pool queue size must not be negative, got %d", opts.QueueSize)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &WorkerPool{
		N:      opts.Size,
		queue:  make(chan message, opts.QueueSize),
		policy: opts.Backpressure,
		log:    opts.Logger,
		wg:     &sync.WaitGroup{},
	}

	// start workers now
	for id := range p.N {
		p.wg.Go(func() {
			p.work(id)
		})
	}
	return p, nil
}

func (p *WorkerPool) work(id int) {
	for msg := range p.queue {
		if msg.stop {
			return
		}
		p.log.Debug("worker picked up task", "worker", id)
		p.run(id, msg.task)
	}
}

// run executes one task. A panic ends the task, not the worker.
func (p *WorkerPool) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.log.Error("task panicked", "worker", id, "panic", r, "stack", string(debug.Stack()))
			return
		}
		p.completed.Add(1)
	}()
	t()
}

// Submit queues t. When the queue is full it either waits (BlockWhenFull),
// giving up with ctx.Err() if ctx ends first, or fails with ErrQueueFull
// (RejectWhenFull). Tasks from one caller are run in the order submitted
// relative to the queue.
func (p *WorkerPool) Submit(ctx context.Context, t Task) error {
	if t == nil {
		return errors.New("nil task")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	msg := message{task: t}
	if p.policy == RejectWhenFull {
		select {
		case p.queue <- msg:
		default:
			p.rejected.Add(1)
			return ErrQueueFull
		}
	} else {
		select {
		case p.queue <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.submitted.Add(1)
	return nil
}

// Shutdown stops accepting tasks, lets every queued and running task finish,
// and returns once all workers have exited. Calling it again is a no-op.
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() {
		// waits out any Submit still blocked on a full queue
		p.mu.Lock()
		p.closed = true
		for range p.N {
			p.queue <- message{stop: true}
		}
		p.mu.Unlock()

		p.wg.Wait()
		p.log.Debug("worker pool shut down", "workers", p.N)
	})
}

func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
	}
}
