// Package arena provides generation-checked slot storage.
//
// An Arena hands out a typed Handle for every stored entity. Handles are
// plain values: they can be copied, compared and used as map keys. A handle
// resolves only while the slot it names still holds the generation recorded
// in the handle, so a handle to an erased entity fails with a stale-handle
// error instead of aliasing whatever later reuses the slot.
//
// Storage is paged. Pages are never reallocated, so a pointer returned by Get
// stays valid for as long as the entity is live, regardless of later
// allocations.
package arena

import (
	"fmt"
	"iter"
	"math"

	"github.com/deepnoodle-ai/irkit/errz"
)

const (
	pageBits = 8
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// Handle identifies an entity stored in an Arena[T]. The zero Handle is nil
// and never resolves.
type Handle[T any] struct {
	index uint32
	gen   uint32
	owner uint32
}

// IsNil returns true for the zero handle.
func (h Handle[T]) IsNil() bool {
	return h.gen == 0
}

// Index returns the slot index of the handle.
func (h Handle[T]) Index() uint32 {
	return h.index
}

// Generation returns the slot generation the handle was issued for.
func (h Handle[T]) Generation() uint32 {
	return h.gen
}

// Owner returns the owner tag of the arena that issued the handle.
func (h Handle[T]) Owner() uint32 {
	return h.owner
}

func (h Handle[T]) String() string {
	if h.IsNil() {
		return "<nil>"
	}
	return fmt.Sprintf("%d@%d", h.index, h.gen)
}

type slot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Stats summarizes the occupancy of an arena.
type Stats struct {
	Live     int
	Free     int
	Retired  int
	Capacity int
}

// Arena stores values of type T in generation-checked slots.
type Arena[T any] struct {
	name    string
	owner   uint32
	pages   [][]slot[T]
	next    uint32
	free    []uint32
	live    int
	retired int
}

// New creates an empty arena. The name is used in error messages and the
// owner tag is stamped into every handle the arena issues.
func New[T any](name string, owner uint32) *Arena[T] {
	return &Arena[T]{name: name, owner: owner}
}

// Name returns the arena name.
func (a *Arena[T]) Name() string {
	return a.name
}

// Owner returns the owner tag stamped into handles.
func (a *Arena[T]) Owner() uint32 {
	return a.owner
}

func (a *Arena[T]) slotAt(index uint32) *slot[T] {
	return &a.pages[index>>pageBits][index&pageMask]
}

func (a *Arena[T]) claim() uint32 {
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		return index
	}
	if a.next == math.MaxUint32 {
		panic(fmt.Sprintf("arena %s: index space exhausted", a.name))
	}
	index := a.next
	if int(index>>pageBits) == len(a.pages) {
		a.pages = append(a.pages, make([]slot[T], pageSize))
	}
	a.slotAt(index).gen = 1
	a.next++
	return index
}

// Alloc stores v and returns its handle.
func (a *Arena[T]) Alloc(v T) Handle[T] {
	return a.AllocFunc(func(Handle[T]) T { return v })
}

// AllocFunc claims a slot and stores the value built by fn. The function
// receives the handle of the slot being filled, which lets an entity record
// its own handle.
func (a *Arena[T]) AllocFunc(fn func(Handle[T]) T) Handle[T] {
	index := a.claim()
	s := a.slotAt(index)
	h := Handle[T]{index: index, gen: s.gen, owner: a.owner}
	s.value = fn(h)
	s.live = true
	a.live++
	return h
}

// Check returns an error if h does not resolve to a live entity.
func (a *Arena[T]) Check(h Handle[T]) error {
	_, err := a.lookup(h)
	return err
}

// Contains returns true if h resolves to a live entity.
func (a *Arena[T]) Contains(h Handle[T]) bool {
	_, err := a.lookup(h)
	return err == nil
}

func (a *Arena[T]) lookup(h Handle[T]) (*slot[T], error) {
	if h.IsNil() {
		return nil, errz.New(errz.ErrKindStaleHandle, a.name, "nil handle")
	}
	if h.owner != a.owner {
		return nil, errz.New(errz.ErrKindForeignContext, a.entity(h),
			"handle issued by owner %d, used with owner %d", h.owner, a.owner)
	}
	if h.index >= a.next {
		return nil, errz.New(errz.ErrKindStaleHandle, a.entity(h), "index out of range")
	}
	s := a.slotAt(h.index)
	if !s.live || s.gen != h.gen {
		return nil, errz.New(errz.ErrKindStaleHandle, a.entity(h),
			"slot generation is %d", s.gen)
	}
	return s, nil
}

func (a *Arena[T]) entity(h Handle[T]) string {
	return fmt.Sprintf("%s#%s", a.name, h)
}

// Get resolves h to its stored value. The returned pointer may be used to
// mutate the value in place.
func (a *Arena[T]) Get(h Handle[T]) (*T, error) {
	s, err := a.lookup(h)
	if err != nil {
		return nil, err
	}
	return &s.value, nil
}

// Erase tombstones the slot named by h. The slot generation is bumped so h
// and every copy of it become stale, and the stored value is cleared.
func (a *Arena[T]) Erase(h Handle[T]) error {
	s, err := a.lookup(h)
	if err != nil {
		return err
	}
	var zero T
	s.value = zero
	s.live = false
	s.gen++
	a.live--
	// A slot whose next generation would wrap is retired rather than
	// reused, so a wrapped generation can never revive an old handle.
	if s.gen == math.MaxUint32 {
		a.retired++
		return nil
	}
	a.free = append(a.free, h.index)
	return nil
}

// Len returns the number of live entities.
func (a *Arena[T]) Len() int {
	return a.live
}

// Stats returns occupancy counters for the arena.
func (a *Arena[T]) Stats() Stats {
	return Stats{
		Live:     a.live,
		Free:     len(a.free),
		Retired:  a.retired,
		Capacity: len(a.pages) * pageSize,
	}
}

// All iterates over live entities in slot order.
func (a *Arena[T]) All() iter.Seq2[Handle[T], *T] {
	return func(yield func(Handle[T], *T) bool) {
		for index := uint32(0); index < a.next; index++ {
			s := a.slotAt(index)
			if !s.live {
				continue
			}
			h := Handle[T]{index: index, gen: s.gen, owner: a.owner}
			if !yield(h, &s.value) {
				return
			}
		}
	}
}
