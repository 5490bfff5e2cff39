package downloader

import "time"

// batch covers the interval during which at least one download is registered.
// Access is guarded by the Downloader mutex.
type batch struct {
	startedAt time.Time
	items     int
	failures  int
	lastErr   error
}

func newBatch() *batch {
	return &batch{startedAt: time.Now()}
}

func (b *batch) add() {
	b.items++
}

func (b *batch) fail(err error) {
	b.failures++
	b.lastErr = err
}
