package scheduler_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/italolelis/cedric/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, s *scheduler.Scheduler) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = s.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestNew_ClampsLimit(t *testing.T) {
	assert.Equal(t, 1, scheduler.New(0).Limit())
	assert.Equal(t, 1, scheduler.New(-5).Limit())
	assert.Equal(t, 4, scheduler.New(4).Limit())
}

func TestScheduler_SerialFIFO(t *testing.T) {
	s := scheduler.New(1)
	start(t, s)

	var (
		mu    sync.Mutex
		order []int
	)

	slots := make(chan *scheduler.Slot, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Admit(func(_ context.Context, slot *scheduler.Slot) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()

			slots <- slot
		}))
	}

	for i := 0; i < 3; i++ {
		var slot *scheduler.Slot

		select {
		case slot = <-slots:
		case <-time.After(time.Second):
			t.Fatalf("job %d was not admitted", i)
		}

		// The next job must not start while the slot is held.
		select {
		case <-slots:
			t.Fatal("a second job was admitted while the slot was held")
		case <-time.After(20 * time.Millisecond):
		}

		assert.Equal(t, 1, s.Running())
		slot.Release()
		slot.Release()
	}

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	const limit = 3

	s := scheduler.New(limit)
	start(t, s)

	var (
		current atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)

	for i := 0; i < 12; i++ {
		wg.Add(1)

		require.NoError(t, s.Admit(func(_ context.Context, slot *scheduler.Slot) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			go func() {
				defer wg.Done()

				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				slot.Release()
			}()
		}))
	}

	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Eventually(t, func() bool { return s.Running() == 0 && s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_PanicReleasesSlot(t *testing.T) {
	s := scheduler.New(1)
	start(t, s)

	require.NoError(t, s.Admit(func(context.Context, *scheduler.Slot) {
		panic("boom")
	}))

	ran := make(chan struct{})

	require.NoError(t, s.Admit(func(_ context.Context, slot *scheduler.Slot) {
		slot.Release()
		close(ran)
	}))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("scheduler stalled after a panicking job")
	}
}

func TestScheduler_AdmitAfterStop(t *testing.T) {
	s := scheduler.New(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.ErrorIs(t, s.Admit(func(context.Context, *scheduler.Slot) {}), scheduler.ErrStopped)
}

func TestScheduler_PendingBeforeRun(t *testing.T) {
	s := scheduler.New(1)

	require.NoError(t, s.Admit(func(_ context.Context, slot *scheduler.Slot) { slot.Release() }))
	require.NoError(t, s.Admit(func(_ context.Context, slot *scheduler.Slot) { slot.Release() }))
	assert.Equal(t, 2, s.Pending())

	start(t, s)

	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}
