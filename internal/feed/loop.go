package feed

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned when posting to a loop that has exited
var ErrLoopStopped = errors.New("loop stopped")

// Loop runs posted functions one at a time on the goroutine that called Run.
// List and Controller state is only touched from inside the loop.
type Loop struct {
	tasks   chan func()
	stopped chan struct{}
	once    sync.Once
}

// NewLoop creates a loop with a small task buffer
func NewLoop() *Loop {
	return &Loop{
		tasks:   make(chan func(), 64),
		stopped: make(chan struct{}),
	}
}

// Run executes tasks until ctx is done. It must be called once.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.stopped) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn without waiting for it
func (l *Loop) Post(ctx context.Context, fn func()) error {
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}

	select {
	case l.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}
}

// Call queues fn and waits until it has run. Calling it from inside the
// loop deadlocks.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := l.Post(ctx, func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLoopStopped
	}
}
