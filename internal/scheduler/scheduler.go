// Package scheduler limits how many jobs hold an execution slot at the same time.
//
// Jobs are admitted in the order they were submitted. A job receives the slot it was
// admitted with and keeps it until Release is called, which may happen long after
// the job function itself returned. This lets a job start asynchronous work and hand
// the slot to whoever observes that work finishing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/italolelis/cedric/internal/logctx"
	"golang.org/x/sync/semaphore"
)

// ErrStopped is returned by Admit once Run has returned.
var ErrStopped = errors.New("scheduler: stopped")

// Job is a unit of work. It must eventually call slot.Release.
type Job func(ctx context.Context, slot *Slot)

// Slot is the admission held by a running job.
type Slot struct {
	once    sync.Once
	release func()
}

// Release gives the slot back to the scheduler. Only the first call has an effect.
func (s *Slot) Release() {
	if s == nil {
		return
	}

	s.once.Do(s.release)
}

type Scheduler struct {
	limit int64
	sem   *semaphore.Weighted

	mu      sync.Mutex
	queue   []Job
	stopped bool
	wake    chan struct{}

	pending atomic.Int64
	running atomic.Int64
}

// New creates a scheduler allowing limit concurrent slots. Limits below 1 are
// treated as 1.
func New(limit int) *Scheduler {
	if limit < 1 {
		limit = 1
	}

	return &Scheduler{
		limit: int64(limit),
		sem:   semaphore.NewWeighted(int64(limit)),
		wake:  make(chan struct{}, 1),
	}
}

func (s *Scheduler) Limit() int {
	return int(s.limit)
}

// Admit queues job. It never blocks.
func (s *Scheduler) Admit(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	s.queue = append(s.queue, job)
	s.pending.Add(1)

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return nil
}

// Pending returns the number of jobs waiting for a slot.
func (s *Scheduler) Pending() int {
	return int(s.pending.Load())
}

// Running returns the number of held slots.
func (s *Scheduler) Running() int {
	return int(s.running.Load())
}

// Run admits queued jobs until ctx is done. Jobs still queued at that point are
// dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	defer s.stop()

	logger.Debug("scheduler started", "limit", s.limit)

	for {
		job, ok := s.next(ctx)
		if !ok {
			return ctx.Err()
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.pending.Add(-1)

			return err
		}

		s.pending.Add(-1)
		s.running.Add(1)

		slot := &Slot{release: func() {
			s.running.Add(-1)
			s.sem.Release(1)
		}}

		go s.execute(ctx, job, slot)
	}
}

func (s *Scheduler) next(ctx context.Context) (Job, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			job := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()

			return job, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-s.wake:
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job, slot *Slot) {
	defer func() {
		if r := recover(); r != nil {
			logctx.LoggerFromContext(ctx).Error("scheduled job panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))

			slot.Release()
		}
	}()

	job(ctx, slot)
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.pending.Add(-int64(len(s.queue)))
	s.queue = nil
}
