package multicast

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Executor runs submitted tasks. Submit must not block on the task itself.
type Executor interface {
	Submit(task func())
}

type inline struct{}

func (inline) Submit(task func()) { task() }

// Inline runs every task on the goroutine that submits it.
var Inline Executor = inline{}

// SerialExecutor runs tasks one at a time, in submission order, on a dedicated
// goroutine. Submit never blocks.
type SerialExecutor struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	go e.loop()

	return e
}

// Submit queues task. Tasks submitted after Close are discarded.
func (e *SerialExecutor) Submit(task func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()

		return
	}

	e.tasks = append(e.tasks, task)
	e.notify()
	e.mu.Unlock()
}

// notify wakes the loop. Callers hold mu so the signal channel is still open.
func (e *SerialExecutor) notify() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until every task submitted before the call has run.
func (e *SerialExecutor) Wait() {
	ch := make(chan struct{})

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done

		return
	}

	e.tasks = append(e.tasks, func() { close(ch) })
	e.notify()
	e.mu.Unlock()

	<-ch
}

// Close runs the tasks already queued, then stops the executor. It is safe to call
// more than once.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.signal)
	}
	e.mu.Unlock()

	<-e.done
}

func (e *SerialExecutor) loop() {
	defer close(e.done)

	for {
		e.mu.Lock()
		batch := e.tasks
		e.tasks = nil
		closed := e.closed
		e.mu.Unlock()

		for _, task := range batch {
			run(task)
		}

		if len(batch) > 0 {
			continue
		}

		if closed {
			return
		}

		<-e.signal
	}
}

func run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event delivery panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	task()
}
