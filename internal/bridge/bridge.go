// Package bridge runs chat turns on a fixed worker pool and feeds the
// outcome back into the session registry. Handlers submit work and
// return immediately; delivery happens through the registry's pending
// results and attached streams.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-practice/go-chat/internal/engine"
	"github.com/telnet2/go-practice/go-chat/internal/logging"
)

const (
	minWorkers = 4
	maxWorkers = 16

	defaultQueueSize = 256

	// turnTimeout bounds a single chat turn end to end, retries included.
	turnTimeout = 5 * time.Minute
)

var (
	// ErrBusy means the task queue is full.
	ErrBusy = errors.New("bridge: task queue full")
	// ErrClosed means the bridge is shutting down.
	ErrClosed = errors.New("bridge: closed")
)

// ResultSink receives turn outcomes. The registry implements it.
type ResultSink interface {
	SetResult(sessionID, text string)
	SetErrorResult(sessionID, message string)
	PushDelta(sessionID, delta string)
}

// Runner executes one chat turn. *engine.Engine satisfies it.
type Runner interface {
	SessionID() string
	Chat(ctx context.Context, question string, kind engine.Kind, onDelta func(string)) (string, error)
}

type task struct {
	engine   Runner
	question string
	kind     engine.Kind
}

// Bridge is the worker pool.
type Bridge struct {
	sink  ResultSink
	tasks chan task
	log   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New starts a bridge with the given pool size. workers <= 0 selects
// NumCPU clamped to [4, 16]; queueSize <= 0 selects the default.
func New(workers, queueSize int, sink ResultSink) *Bridge {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < minWorkers {
			workers = minWorkers
		}
		if workers > maxWorkers {
			workers = maxWorkers
		}
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		sink:   sink,
		tasks:  make(chan task, queueSize),
		log:    logging.Component("bridge"),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	b.log.Info().Int("workers", workers).Int("queueSize", queueSize).Msg("bridge started")
	return b
}

// Submit enqueues one chat turn and returns without waiting for it.
func (b *Bridge) Submit(eng Runner, question string, kind engine.Kind) error {
	// The lock is held across the send so Close cannot close the channel
	// between the check and the enqueue.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	select {
	case b.tasks <- task{engine: eng, question: question, kind: kind}:
		return nil
	default:
		return ErrBusy
	}
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for t := range b.tasks {
		b.run(t)
	}
}

// run executes one turn. A panic inside the engine or a backend becomes
// a delivered error result; the worker always survives.
func (b *Bridge) run(t task) {
	sessionID := t.engine.SessionID()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("sessionID", sessionID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("chat turn panicked")
			b.sink.SetErrorResult(sessionID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(b.ctx, turnTimeout)
	defer cancel()

	onDelta := func(d string) { b.sink.PushDelta(sessionID, d) }
	answer, err := t.engine.Chat(ctx, t.question, t.kind, onDelta)
	if err != nil {
		b.sink.SetErrorResult(sessionID, "AI service error: "+err.Error())
		return
	}
	b.sink.SetResult(sessionID, answer)
}

// Close cancels in-flight turns and waits for the workers to drain.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.tasks)
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}
