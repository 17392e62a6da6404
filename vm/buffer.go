package vm

import "unsafe"

// DefaultCapacity is the initial capacity of every growable buffer in the
// core: the root set, bytecode, the operand stack and the intrinsic table.
const DefaultCapacity = 16

// Buffer is a growable sequence charged to an Allocator. It starts at its
// initial capacity and doubles whenever a push would overflow, copying the
// existing elements and releasing the old storage.
//
// A borrowed buffer views storage owned by someone else (a stack window).
// Growing a borrowed buffer moves it onto storage of its own; the old storage
// is left for its owner to release.
type Buffer[T any] struct {
	data     []T
	alloc    Allocator
	initial  int
	borrowed bool
}

// NewBuffer creates an empty buffer. Storage is allocated on first push.
func NewBuffer[T any](alloc Allocator, initial int) Buffer[T] {
	if initial <= 0 {
		initial = DefaultCapacity
	}
	return Buffer[T]{alloc: alloc, initial: initial}
}

func (b *Buffer[T]) elemSize() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Len returns the number of elements.
func (b *Buffer[T]) Len() int { return len(b.data) }

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int { return cap(b.data) }

// At returns the element at index i.
func (b *Buffer[T]) At(i int) T { return b.data[i] }

// Set replaces the element at index i.
func (b *Buffer[T]) Set(i int, v T) { b.data[i] = v }

// Slice returns the live elements. The slice aliases the buffer and is only
// valid until the next push.
func (b *Buffer[T]) Slice() []T { return b.data }

// Push appends v, growing the storage if it is full.
func (b *Buffer[T]) Push(v T) {
	if len(b.data) == cap(b.data) {
		b.grow()
	}
	b.data = append(b.data, v)
}

// Pop removes and returns the last element.
func (b *Buffer[T]) Pop() (T, bool) {
	var zero T
	n := len(b.data)
	if n == 0 {
		return zero, false
	}
	v := b.data[n-1]
	b.data[n-1] = zero
	b.data = b.data[:n-1]
	return v, true
}

// Truncate shortens the buffer to n elements. It never grows the buffer.
func (b *Buffer[T]) Truncate(n int) {
	if n >= len(b.data) {
		return
	}
	var zero T
	for i := n; i < len(b.data); i++ {
		b.data[i] = zero
	}
	b.data = b.data[:n]
}

// Reserve allocates the initial storage without adding elements.
func (b *Buffer[T]) Reserve() {
	if cap(b.data) == 0 {
		b.grow()
	}
}

func (b *Buffer[T]) grow() {
	old := cap(b.data)
	newCap := old * 2
	if newCap == 0 {
		newCap = b.initial
		if newCap <= 0 {
			newCap = DefaultCapacity
		}
	}
	size := b.elemSize()
	if err := b.alloc.Allocate(newCap * size); err != nil {
		fatal(ErrOutOfMemory, "growing buffer to %d elements: %v", newCap, err)
	}
	data := make([]T, len(b.data), newCap)
	copy(data, b.data)
	if !b.borrowed && old > 0 {
		b.alloc.Free(old * size)
	}
	b.data = data
	b.borrowed = false
}

// Release returns the storage to the allocator and empties the buffer.
func (b *Buffer[T]) Release() {
	if !b.borrowed && cap(b.data) > 0 {
		b.alloc.Free(cap(b.data) * b.elemSize())
	}
	b.data = nil
	b.borrowed = false
}
