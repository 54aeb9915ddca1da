package work

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// State is the state of a work Handle.
type State int32

// Handle states. Completed, Failed and Cancelled are terminal.
const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// IsTerminal returns whether no further transition can happen from s.
func (s State) IsTerminal() bool {
	return s >= StateCompleted
}

// Handle is a cancellable, single completion handle to a pending work
// Result. It is created when a request is submitted and transitions to a
// terminal state exactly once.
type Handle struct {
	id     string
	root   Root
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	lock   sync.Mutex
	state  State
	result *Result
	err    error
}

func newHandle(parent context.Context, root Root) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		id:     uuid.NewString(),
		root:   root,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the request id used in logs.
func (h *Handle) ID() string {
	return h.id
}

// Root returns the root the work is generated for.
func (h *Handle) Root() Root {
	return h.root
}

// State returns the current state.
func (h *Handle) State() State {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.state
}

// Done returns a channel that is closed once the handle reaches a terminal
// state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle is terminal or ctx is done. A cancelled handle
// returns ErrCancelled. If ctx is done first, ctx.Err() is returned and the
// request keeps running.
func (h *Handle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return h.outcome()
}

// Get blocks until the handle is terminal.
func (h *Handle) Get() (*Result, error) {
	return h.Wait(context.Background())
}

// Cancel cancels the request and interrupts its search if it is running.
// It returns true if this call moved the handle to the cancelled state.
// Calling Cancel on a terminal handle is a no-op.
func (h *Handle) Cancel() bool {
	return h.finish(StateCancelled, nil, ErrCancelled)
}

func (h *Handle) outcome() (*Result, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.result, h.err
}

// start moves a pending handle to running. It returns false if the handle was
// cancelled while queued.
func (h *Handle) start() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.state != StatePending {
		return false
	}
	h.state = StateRunning
	return true
}

func (h *Handle) complete(result *Result) bool {
	return h.finish(StateCompleted, result, nil)
}

func (h *Handle) fail(err error) bool {
	return h.finish(StateFailed, nil, err)
}

func (h *Handle) finish(state State, result *Result, err error) bool {
	h.lock.Lock()
	if h.state.IsTerminal() {
		h.lock.Unlock()
		return false
	}
	h.state = state
	h.result = result
	h.err = err
	close(h.done)
	h.lock.Unlock()

	h.cancel()
	return true
}
