// Package multicast delivers events to any number of subscribers without keeping
// them alive.
//
// Subscribers are held through weak pointers. Once a subscriber is no longer
// referenced anywhere else it stops receiving events and is pruned on the next
// Publish or Len. Pruning depends on the garbage collector, so it is best-effort;
// call Unsubscribe when delivery must stop at a known point.
package multicast

import (
	"sync"
	"weak"
)

type Multicaster[T any] struct {
	exec Executor

	mu   sync.Mutex
	subs []weak.Pointer[T]
}

// New creates a Multicaster delivering on exec. A nil exec delivers inline.
func New[T any](exec Executor) *Multicaster[T] {
	if exec == nil {
		exec = Inline
	}

	return &Multicaster[T]{exec: exec}
}

// Subscribe adds sub. Subscribing the same pointer twice has no effect.
func (m *Multicaster[T]) Subscribe(sub *T) {
	if sub == nil {
		return
	}

	wp := weak.Make(sub)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.subs {
		if s == wp {
			return
		}
	}

	m.subs = append(m.subs, wp)
}

// Unsubscribe removes sub. Unknown subscribers are ignored.
func (m *Multicaster[T]) Unsubscribe(sub *T) {
	if sub == nil {
		return
	}

	wp := weak.Make(sub)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, s := range m.subs {
		if s == wp {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)

			return
		}
	}
}

// Publish invokes fn on every live subscriber, in subscription order, as a single
// task on the executor.
func (m *Multicaster[T]) Publish(fn func(*T)) {
	live := m.live()
	if len(live) == 0 {
		return
	}

	m.exec.Submit(func() {
		for _, sub := range live {
			fn(sub)
		}
	})
}

// Len returns the number of live subscribers.
func (m *Multicaster[T]) Len() int {
	return len(m.live())
}

func (m *Multicaster[T]) live() []*T {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := make([]*T, 0, len(m.subs))
	kept := m.subs[:0]

	for _, s := range m.subs {
		if v := s.Value(); v != nil {
			live = append(live, v)
			kept = append(kept, s)
		}
	}

	for i := len(kept); i < len(m.subs); i++ {
		m.subs[i] = weak.Pointer[T]{}
	}

	m.subs = kept

	return live
}
