package registry

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/telnet2/go-practice/go-chat/internal/logging"
)

// ErrExecutorClosed is returned when work is submitted after Close.
var ErrExecutorClosed = errors.New("executor closed")

// Executor confines all registry state to a single goroutine. Every unit
// submitted to it runs exactly once, never concurrently with another unit,
// and units from the same caller run in submission order. A panicking unit
// is recovered at the unit boundary and treated as a no-op; the executor
// goroutine itself cannot be killed by submitted work.
type Executor struct {
	tasks chan func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewExecutor creates an executor. Run must be called to start it.
func NewExecutor() *Executor {
	return &Executor{
		tasks: make(chan func(), 1024),
		done:  make(chan struct{}),
	}
}

// Run executes submitted units until Close. It is the confinement loop and
// is expected to be started as `go exec.Run()`.
func (e *Executor) Run() {
	for fn := range e.tasks {
		e.runUnit(fn)
	}
	close(e.done)
}

// runUnit isolates a single unit so a panic cannot take down the loop.
func (e *Executor) runUnit(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("executor unit panicked")
		}
	}()
	fn()
}

// Submit enqueues a fire-and-forget unit.
func (e *Executor) Submit(fn func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.tasks <- fn
	e.mu.Unlock()
	return nil
}

// Call runs fn on the executor and blocks the calling goroutine until it
// completes. Only worker and handler goroutines may use it; calling it from
// a unit already running on the executor would deadlock. The handoff
// channel is always completed, even if fn panics, so the caller cannot
// hang.
func (e *Executor) Call(fn func() error) error {
	result := make(chan error, 1)

	err := e.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("unit panicked: %v", r)
				panic(r) // re-raise so runUnit logs the stack
			}
		}()
		result <- fn()
	})
	if err != nil {
		return err
	}
	return <-result
}

// Close stops accepting work and waits for queued units to drain.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.tasks)
	e.mu.Unlock()

	<-e.done
}
