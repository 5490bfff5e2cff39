package registry_test

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/italolelis/cedric/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	id   string
	name string
}

func byID(id string) func(*entry) bool {
	return func(e *entry) bool { return e.id == id }
}

func TestRegistry_Basics(t *testing.T) {
	r := registry.New[*entry]()
	assert.True(t, r.IsEmpty())

	a := &entry{id: "1", name: "a.png"}
	b := &entry{id: "1", name: "b.png"}
	c := &entry{id: "2", name: "c.png"}

	r.Append(a)
	r.Append(b)
	r.Append(c)

	assert.Equal(t, 3, r.Count())
	assert.False(t, r.IsEmpty())
	assert.True(t, r.ContainsWhere(byID("2")))
	assert.False(t, r.ContainsWhere(byID("3")))

	first, ok := r.FirstWhere(byID("1"))
	require.True(t, ok)
	assert.Same(t, a, first)

	assert.Equal(t, []*entry{a, b}, r.Filter(byID("1")))
	assert.Equal(t, []*entry{a, b, c}, r.Snapshot())
}

func TestRegistry_RemoveWhereRemovesAtMostOne(t *testing.T) {
	r := registry.New[*entry]()
	a := &entry{id: "1", name: "a.png"}
	b := &entry{id: "1", name: "b.png"}

	r.Append(a)
	r.Append(b)

	removed, ok := r.RemoveWhere(byID("1"))
	require.True(t, ok)
	assert.Same(t, a, removed)
	assert.Equal(t, []*entry{b}, r.Snapshot())

	removed, ok = r.RemoveWhere(byID("1"))
	require.True(t, ok)
	assert.Same(t, b, removed)
	assert.True(t, r.IsEmpty())

	removed, ok = r.RemoveWhere(byID("1"))
	assert.False(t, ok)
	assert.Nil(t, removed)
}

func TestRegistry_AppendUnless(t *testing.T) {
	r := registry.New[*entry]()
	sameName := func(name string) func(*entry) bool {
		return func(e *entry) bool { return e.name == name }
	}

	assert.True(t, r.AppendUnless(sameName("a.png"), &entry{id: "1", name: "a.png"}))
	assert.False(t, r.AppendUnless(sameName("a.png"), &entry{id: "2", name: "a.png"}))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ConcurrentAppendUnless(t *testing.T) {
	r := registry.New[*entry]()

	var (
		wg       sync.WaitGroup
		appended atomic.Int32
	)

	for i := 0; i < 64; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			e := &entry{id: strconv.Itoa(i), name: "same.png"}
			if r.AppendUnless(func(x *entry) bool { return x.name == e.name }, e) {
				appended.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), appended.Load())
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ForEachAllowsReentry(t *testing.T) {
	r := registry.New[*entry]()
	r.Append(&entry{id: "1"})
	r.Append(&entry{id: "2"})

	var visited []string

	r.ForEach(func(e *entry) {
		visited = append(visited, e.id)
		r.RemoveWhere(byID(e.id))
	})

	assert.Equal(t, []string{"1", "2"}, visited)
	assert.True(t, r.IsEmpty())
}
