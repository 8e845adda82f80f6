// Package dispatch runs exec tasks asynchronously on a bounded goroutine
// pool and hands results back over a per-task channel.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/bunbase/buntable/errors"
	"github.com/kartikbazzad/bunbase/buntable/internal/logger"
)

// Result is the outcome of a task.
type Result struct {
	Value any
	Err   error
}

// Task is one unit of work. The result is sent exactly once on ResultCh,
// which is buffered so the worker never blocks on a caller that stopped
// waiting.
type Task struct {
	fn       func() (any, error)
	ResultCh chan *Result
}

// NewTask creates a new task.
func NewTask(fn func() (any, error)) *Task {
	return &Task{
		fn:       fn,
		ResultCh: make(chan *Result, 1),
	}
}

func (t *Task) run() {
	res := &Result{}
	defer func() {
		if r := recover(); r != nil {
			res.Value = nil
			res.Err = errors.New(errors.KindBackend, "exec panicked", fmt.Errorf("%v", r))
		}
		t.ResultCh <- res
	}()
	res.Value, res.Err = t.fn()
}

// Dispatcher submits tasks to an ants pool. When every worker is busy the
// task runs on a fresh goroutine instead, so a task that waits on another
// task (a listener or procedure issuing a nested exec) never deadlocks the
// pool.
type Dispatcher struct {
	mu     sync.RWMutex
	pool   *ants.Pool
	closed bool
}

// New creates a dispatcher with the given number of pooled workers.
func New(workers int) (*Dispatcher, error) {
	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			logger.Error("exec worker panic", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("exec pool: %w", err)
	}
	return &Dispatcher{pool: pool}, nil
}

// Submit schedules t. It fails only after Close.
func (d *Dispatcher) Submit(t *Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.ErrClosed
	}
	if err := d.pool.Submit(t.run); err != nil {
		go t.run()
	}
	return nil
}

// Running returns the number of busy pool workers.
func (d *Dispatcher) Running() int {
	return d.pool.Running()
}

// Close stops accepting tasks and waits briefly for running ones.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.pool.ReleaseTimeout(3 * time.Second)
}

// Wait blocks until the task resolves or ctx is done. A cancelled wait does
// not stop the task.
func (t *Task) Wait(ctx context.Context) (*Result, error) {
	select {
	case res := <-t.ResultCh:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
