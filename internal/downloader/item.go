package downloader

import (
	"sync"
	"time"

	"github.com/italolelis/cedric/internal/resource"
	"github.com/italolelis/cedric/internal/scheduler"
	"github.com/italolelis/cedric/internal/transfer"
)

// item is the runtime state of one registered resource.
type item struct {
	res resource.Resource

	mu        sync.Mutex
	task      transfer.Task
	slot      *scheduler.Slot
	startedAt time.Time
	completed bool
	canceled  bool

	// onComplete runs once, on completion or cancellation.
	onComplete func()
	done       sync.Once
}

func newItem(res resource.Resource, onComplete func()) *item {
	return &item{res: res, onComplete: onComplete}
}

// attachSlot records the admission slot. It fails once the item is canceled; the
// caller then owns the slot and must release it.
func (it *item) attachSlot(slot *scheduler.Slot) bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.canceled {
		return false
	}

	it.slot = slot

	return true
}

// attachTask records the transport task. It fails once the item is canceled; the
// caller then owns the task and must cancel it.
func (it *item) attachTask(task transfer.Task) bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.canceled {
		return false
	}

	it.task = task
	it.startedAt = time.Now()

	return true
}

func (it *item) Task() transfer.Task {
	it.mu.Lock()
	defer it.mu.Unlock()

	return it.task
}

func (it *item) owns(task transfer.Task) bool {
	if task == nil {
		return false
	}

	t := it.Task()

	return t != nil && t.ID() == task.ID()
}

func (it *item) isCanceled() bool {
	it.mu.Lock()
	defer it.mu.Unlock()

	return it.canceled
}

func (it *item) elapsed() time.Duration {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.startedAt.IsZero() {
		return 0
	}

	return time.Since(it.startedAt)
}

// markCanceled flags the item and returns its task, if one was created.
func (it *item) markCanceled() transfer.Task {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.canceled = true

	return it.task
}

func (it *item) markCompleted() {
	it.mu.Lock()
	defer it.mu.Unlock()

	it.completed = true
}

// complete releases the admission slot and runs the completion hook. Only the
// first call has an effect.
func (it *item) complete() {
	it.done.Do(func() {
		it.mu.Lock()
		slot := it.slot
		it.mu.Unlock()

		slot.Release()

		if it.onComplete != nil {
			it.onComplete()
		}
	})
}
