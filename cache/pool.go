package cache

import "fmt"

// ref addresses a pool slot. Slots bump their generation on every alloc, so a
// ref to a released (or reused) slot fails lookup. Generations start at 1,
// the zero ref never resolves.
type ref struct {
	idx int32
	gen uint32
}

var nilRef ref

func (r ref) isNil() bool {
	return r.gen == 0
}

type poolSlot[T any] struct {
	val  T
	gen  uint32
	live bool
}

// pool is a fixed capacity slab of T. It never grows, alloc fails when all
// slots are live.
type pool[T any] struct {
	name  string
	slots []poolSlot[T]

	// free slot indexes, used as a stack
	free []int32
}

func newPool[T any](name string, capacity int) *pool[T] {
	p := &pool[T]{
		name:  name,
		slots: make([]poolSlot[T], capacity),
		free:  make([]int32, capacity),
	}
	for i := range p.free {
		// pop order is ascending slot index
		p.free[i] = int32(capacity - 1 - i)
	}
	return p
}

// alloc returns a zeroed slot, false if the pool is exhausted
func (p *pool[T]) alloc() (ref, *T, bool) {
	if len(p.free) == 0 {
		return nilRef, nil, false
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	s := &p.slots[idx]
	var zero T
	s.val = zero
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true

	return ref{idx: idx, gen: s.gen}, &s.val, true
}

func (p *pool[T]) release(r ref) {
	s := p.slot(r)
	if s == nil {
		panic(fmt.Sprintf("%s pool: release of stale or unknown node %+v", p.name, r))
	}

	var zero T
	s.val = zero
	s.live = false
	p.free = append(p.free, r.idx)
}

// get returns nil for stale refs
func (p *pool[T]) get(r ref) *T {
	s := p.slot(r)
	if s == nil {
		return nil
	}
	return &s.val
}

func (p *pool[T]) slot(r ref) *poolSlot[T] {
	if r.isNil() || r.idx < 0 || int(r.idx) >= len(p.slots) {
		return nil
	}
	s := &p.slots[r.idx]
	if !s.live || s.gen != r.gen {
		return nil
	}
	return s
}

func (p *pool[T]) capacity() int {
	return len(p.slots)
}

func (p *pool[T]) available() int {
	return len(p.free)
}

func (p *pool[T]) inUse() int {
	return len(p.slots) - len(p.free)
}
