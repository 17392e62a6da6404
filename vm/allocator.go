package vm

import "fmt"

// ---------------------------------------------------------------------------
// Allocator port
// ---------------------------------------------------------------------------

// Allocator is the memory capability the core is built on. Every dynamic
// buffer (heap objects, array slots, owned text, the root set, bytecode, the
// operand stack and the intrinsic table) is charged to it. Allocate fails when
// the request cannot be satisfied; the core treats that as fatal and never
// retries.
type Allocator interface {
	Allocate(size int) error
	Free(size int)
}

// AllocatorStats is implemented by allocators that can report what is still
// outstanding.
type AllocatorStats interface {
	// Live returns the number of bytes allocated and not yet freed.
	Live() int
	// Count returns the number of allocations not yet freed.
	Count() int
}

// SystemAllocator is an unbounded allocator that only keeps accounts.
type SystemAllocator struct {
	live  int
	count int
	total int
}

// NewSystemAllocator creates an unbounded allocator.
func NewSystemAllocator() *SystemAllocator {
	return &SystemAllocator{}
}

func (a *SystemAllocator) Allocate(size int) error {
	if size < 0 {
		return fmt.Errorf("negative allocation size %d", size)
	}
	a.live += size
	a.count++
	a.total += size
	return nil
}

func (a *SystemAllocator) Free(size int) {
	a.live -= size
	a.count--
}

func (a *SystemAllocator) Live() int  { return a.live }
func (a *SystemAllocator) Count() int { return a.count }

// Total returns the number of bytes ever allocated.
func (a *SystemAllocator) Total() int { return a.total }

// LimitAllocator fails any request that would take the live byte count past
// its limit.
type LimitAllocator struct {
	SystemAllocator
	limit int
}

// NewLimitAllocator creates an allocator with a live-byte budget.
func NewLimitAllocator(limit int) *LimitAllocator {
	return &LimitAllocator{limit: limit}
}

func (a *LimitAllocator) Allocate(size int) error {
	if a.live+size > a.limit {
		return fmt.Errorf("allocation of %d bytes exceeds limit (%d of %d in use)", size, a.live, a.limit)
	}
	return a.SystemAllocator.Allocate(size)
}

// Limit returns the configured budget in bytes.
func (a *LimitAllocator) Limit() int { return a.limit }
