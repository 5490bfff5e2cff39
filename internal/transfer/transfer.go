package transfer

import (
	"context"
	"net/url"
)

// Transport performs the actual byte transfer of a download. Tasks are created
// suspended; progress and completion are reported asynchronously on Events.
type Transport interface {
	Create(ctx context.Context, source *url.URL) (Task, error)
	Events() <-chan Event
}

// Task is the handle of a single transfer.
type Task interface {
	ID() string
	Source() *url.URL
	Resume()
	Cancel()
	Progress() (written, expected int64)
}

// EventKind distinguishes progress reports from the single terminal report of a task.
type EventKind int

const (
	EventProgress EventKind = iota
	EventTerminal
)

func (k EventKind) String() string {
	if k == EventTerminal {
		return "terminal"
	}

	return "progress"
}

// Event is emitted by a Transport for one of its tasks. For every task the transport
// emits zero or more progress events followed by exactly one terminal event.
type Event struct {
	Task     Task
	Kind     EventKind
	Written  int64
	Expected int64

	// Location is the temporary file holding the downloaded bytes. It is only set on
	// a successful terminal event.
	Location string
	Err      error
}

// Terminal reports whether the event ends its task.
func (e Event) Terminal() bool {
	return e.Kind == EventTerminal
}
