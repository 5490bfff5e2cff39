// Package registry provides a collection that is safe for concurrent use. Every
// operation, including the composite AppendUnless, is atomic with respect to all
// others.
package registry

import "sync"

type Registry[T any] struct {
	mu    sync.RWMutex
	items []T
}

func New[T any]() *Registry[T] {
	return &Registry[T]{}
}

func (r *Registry[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)
}

// AppendUnless appends item unless an element matching exists. It reports whether
// item was appended.
func (r *Registry[T]) AppendUnless(exists func(T) bool, item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, it := range r.items {
		if exists(it) {
			return false
		}
	}

	r.items = append(r.items, item)

	return true
}

// RemoveWhere removes the first element matching and returns it. At most one element
// is removed.
func (r *Registry[T]) RemoveWhere(match func(T) bool) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, it := range r.items {
		if match(it) {
			var zero T

			copy(r.items[i:], r.items[i+1:])
			r.items[len(r.items)-1] = zero
			r.items = r.items[:len(r.items)-1]

			return it, true
		}
	}

	var zero T

	return zero, false
}

func (r *Registry[T]) FirstWhere(match func(T) bool) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, it := range r.items {
		if match(it) {
			return it, true
		}
	}

	var zero T

	return zero, false
}

func (r *Registry[T]) ContainsWhere(match func(T) bool) bool {
	_, ok := r.FirstWhere(match)

	return ok
}

// ForEach calls visit for each element of a snapshot taken at call time. visit may
// call back into the registry.
func (r *Registry[T]) ForEach(visit func(T)) {
	for _, it := range r.Snapshot() {
		visit(it)
	}
}

// Filter returns the elements matching, in insertion order.
func (r *Registry[T]) Filter(match func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []T

	for _, it := range r.items {
		if match(it) {
			out = append(out, it)
		}
	}

	return out
}

// Snapshot returns a copy of the current elements in insertion order.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, len(r.items))
	copy(out, r.items)

	return out
}

func (r *Registry[T]) IsEmpty() bool {
	return r.Count() == 0
}

func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}
