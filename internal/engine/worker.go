package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when a run is submitted after Shutdown.
var ErrPoolClosed = errors.New("execution pool is closed")

// PoolStats is a snapshot of the pool's run counters.
type PoolStats struct {
	InFlight  int64 `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ExecutionPool bounds how many playbook executions run at once. Each
// execution is one unit of work; steps inside it stay sequential, so the
// pool size is exactly the number of concurrent runs.
type ExecutionPool struct {
	slots chan struct{}
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panics    atomic.Int64
}

// NewExecutionPool creates a pool running at most size executions at once.
func NewExecutionPool(size int) *ExecutionPool {
	if size <= 0 {
		size = 1
	}
	return &ExecutionPool{
		slots: make(chan struct{}, size),
		done:  make(chan struct{}),
	}
}

// Submit schedules one execution's run function. It blocks while the pool is
// at capacity, honoring ctx while waiting, and returns ErrPoolClosed once
// Shutdown has begun.
func (p *ExecutionPool) Submit(ctx context.Context, run func(ctx context.Context) error) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPoolClosed
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	}

	// Shutdown may have raced the slot acquisition; wg.Add must happen
	// under the lock or Shutdown's wg.Wait can miss this run.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()
	p.inFlight.Add(1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.failed.Add(1)
			}
			p.inFlight.Add(-1)
			<-p.slots
			p.wg.Done()
		}()

		if err := run(ctx); err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}()

	return nil
}

// Wait blocks until every submitted run has finished.
func (p *ExecutionPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting runs and waits for in-flight ones. Runs are never
// interrupted here; cancellation goes through the orchestrator's checkpoints.
func (p *ExecutionPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns a snapshot of the run counters.
func (p *ExecutionPool) Stats() PoolStats {
	return PoolStats{
		InFlight:  p.inFlight.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}
