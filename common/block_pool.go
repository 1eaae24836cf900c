package common

import "fmt"

// BlockHandle identifies a slot in a BlockPool.
type BlockHandle uint16

// BlockPool is a fixed-capacity arena of deduplicated, reference counted blocks.
// Acquiring a value that is already live returns the existing slot; released slots go back on a
// free list. Running out of slots is a configuration error and is reported as ErrInternal.
type BlockPool[T comparable] struct {
	name     string
	values   []T
	refs     []uint32
	freeList []BlockHandle
	live     map[T]BlockHandle
}

// NewBlockPool creates a pool that can hold up to capacity live blocks.
//
// Parameters:
//   - name: a name used in error messages, e.g. "sampler"
//   - capacity: the maximum number of distinct live blocks
//
// Returns:
//   - *BlockPool[T]: the new pool
func NewBlockPool[T comparable](name string, capacity int) *BlockPool[T] {
	p := &BlockPool[T]{
		name:     name,
		values:   make([]T, capacity),
		refs:     make([]uint32, capacity),
		freeList: make([]BlockHandle, 0, capacity),
		live:     make(map[T]BlockHandle, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		p.freeList = append(p.freeList, BlockHandle(i))
	}
	return p
}

// Acquire returns the handle for value, creating a new block when no identical one is live.
//
// Parameters:
//   - value: the block contents
//
// Returns:
//   - BlockHandle: the slot holding value
//   - bool: true if a new slot was allocated
//   - error: ErrInternal when every slot is in use
func (p *BlockPool[T]) Acquire(value T) (BlockHandle, bool, error) {
	if h, ok := p.live[value]; ok {
		p.refs[h]++
		return h, false, nil
	}
	if len(p.freeList) == 0 {
		return 0, false, fmt.Errorf("%w: exceeded fixed %s block capacity of %d", ErrInternal, p.name, len(p.values))
	}
	h := p.freeList[len(p.freeList)-1]
	p.freeList = p.freeList[:len(p.freeList)-1]
	p.values[h] = value
	p.refs[h] = 1
	p.live[value] = h
	return h, true, nil
}

// Release drops one reference to the block. The slot is freed when the count reaches zero.
//
// Parameters:
//   - h: the handle returned by Acquire
//
// Returns:
//   - bool: true if the slot was freed
func (p *BlockPool[T]) Release(h BlockHandle) bool {
	if int(h) >= len(p.refs) || p.refs[h] == 0 {
		return false
	}
	p.refs[h]--
	if p.refs[h] > 0 {
		return false
	}
	var zero T
	delete(p.live, p.values[h])
	p.values[h] = zero
	p.freeList = append(p.freeList, h)
	return true
}

// Get returns the block stored at h.
func (p *BlockPool[T]) Get(h BlockHandle) T {
	return p.values[h]
}

// Len returns the number of live blocks.
func (p *BlockPool[T]) Len() int {
	return len(p.live)
}

// Capacity returns the maximum number of live blocks.
func (p *BlockPool[T]) Capacity() int {
	return len(p.values)
}
