package verify

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSuperseded is returned by Task.Wait when a newer request replaced the
// task before it finished.
var ErrSuperseded = errors.New("verify: superseded by a newer request")

// Session runs at most one verification at a time. Starting a new one
// cancels the previous task, and the previous task's result is discarded.
type Session struct {
	mu      sync.Mutex
	current *Task
}

type Task struct {
	ID uuid.UUID

	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome

	mu         sync.Mutex
	superseded bool
}

// Start cancels the running task, if any, and runs fn in a new goroutine.
func (s *Session) Start(ctx context.Context, fn func(ctx context.Context) Outcome) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{ID: uuid.New(), cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	prev := s.current
	s.current = t
	s.mu.Unlock()
	if prev != nil {
		prev.supersede()
	}

	go func() {
		defer close(t.done)
		defer cancel()
		t.outcome = fn(ctx)
	}()
	return t
}

// Current returns the most recently started task, or nil.
func (s *Session) Current() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (t *Task) supersede() {
	t.mu.Lock()
	t.superseded = true
	t.mu.Unlock()
	t.cancel()
}

func (t *Task) Superseded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.superseded
}

// Cancel stops the task. Wait still returns its (canceled) outcome.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the task's function returns.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes or ctx is done. A superseded task
// yields ErrSuperseded rather than its stale outcome.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-t.done:
	}
	if t.Superseded() {
		return Outcome{}, ErrSuperseded
	}
	return t.outcome, nil
}
