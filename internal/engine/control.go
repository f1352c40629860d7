package engine

import "sync"

type ctrlState int

const (
	ctrlRunning ctrlState = iota
	ctrlPaused
	ctrlCancelled
)

// control carries the cooperative pause/cancel signals for one execution.
// Cancel wins over pause and is irreversible.
type control struct {
	mu        sync.Mutex
	cancelled bool
	paused    bool
	cancelCh  chan struct{}
	resumeCh  chan struct{}
}

func newControl() *control {
	return &control{
		cancelCh: make(chan struct{}),
		resumeCh: make(chan struct{}),
	}
}

func (c *control) state() ctrlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.cancelled:
		return ctrlCancelled
	case c.paused:
		return ctrlPaused
	default:
		return ctrlRunning
	}
}

func (c *control) cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.cancelCh)
}

// pause requests a pause. Returns false if the execution is already paused
// or cancelled.
func (c *control) pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled || c.paused {
		return false
	}
	c.paused = true
	return true
}

// resume releases a pause. Returns false if the execution is not paused.
func (c *control) resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled || !c.paused {
		return false
	}
	c.paused = false
	close(c.resumeCh)
	c.resumeCh = make(chan struct{})
	return true
}

// resumeWait returns the channel closed by the next resume. If the
// execution is not paused the returned channel is already closed, so a
// rapid pause/resume pair cannot strand a waiter on a stale snapshot.
func (c *control) resumeWait() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.resumeCh
}
