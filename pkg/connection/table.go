// Package connection provides the arena that owns per-connection state.
//
// Slots are addressed by an ID that pairs the slot index with a generation
// counter. Releasing a slot bumps its generation, so an ID kept by a stale
// event or transport callback no longer resolves once the slot is reused.
package connection

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxConnections is used when NewTable is given a non-positive limit.
const DefaultMaxConnections = 64

// Table errors.
var (
	ErrTableFull = errors.New("connection: table full")
	ErrStaleID   = errors.New("connection: stale connection id")
	ErrInvalidID = errors.New("connection: invalid connection id")
)

// ID identifies a slot of a Table. The zero ID is never allocated.
type ID struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool {
	return id == ID{}
}

// String returns "index.generation".
func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.Index, id.Generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Table is a fixed-capacity arena of T values. Safe for concurrent use.
type Table[T any] struct {
	slots []slot[T]
	free  []uint32
	count int

	mu sync.RWMutex
}

// NewTable creates a table holding at most maxEntries values.
func NewTable[T any](maxEntries int) *Table[T] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxConnections
	}
	t := &Table[T]{
		slots: make([]slot[T], maxEntries),
		free:  make([]uint32, 0, maxEntries),
	}
	// Pop from the end so index 0 is handed out first.
	for i := maxEntries - 1; i >= 0; i-- {
		t.free = append(t.free, uint32(i))
	}
	return t
}

// Allocate stores value in a free slot and returns its ID.
// Returns ErrTableFull if every slot is live.
func (t *Table[T]) Allocate(value T) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.free) == 0 {
		return ID{}, ErrTableFull
	}
	index := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	s := &t.slots[index]
	// Generations start at 1 so the zero ID stays invalid.
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.value = value
	s.live = true
	t.count++

	return ID{Index: index, Generation: s.generation}, nil
}

// Get returns the value stored under id.
func (t *Table[T]) Get(id ID) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, err := t.lookup(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Release frees the slot of id and returns the value it held.
func (t *Table[T]) Release(id ID) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	s, err := t.lookup(id)
	if err != nil {
		return zero, err
	}
	value := s.value
	s.value = zero
	s.live = false
	t.free = append(t.free, id.Index)
	t.count--
	return value, nil
}

func (t *Table[T]) lookup(id ID) (*slot[T], error) {
	if id.Generation == 0 || int(id.Index) >= len(t.slots) {
		return nil, ErrInvalidID
	}
	s := &t.slots[id.Index]
	if !s.live || s.generation != id.Generation {
		return nil, ErrStaleID
	}
	return s, nil
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// Cap returns the maximum number of values.
func (t *Table[T]) Cap() int {
	return len(t.slots)
}

// Range calls fn for every live value until fn returns false.
// fn must not call back into the table.
func (t *Table[T]) Range(fn func(id ID, value T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		if !fn(ID{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}
