package vm

import (
	"fmt"
	"iter"
	"unsafe"

	"github.com/tliron/commonlog"
)

var gcLog = commonlog.GetLogger("owl.gc")

// ---------------------------------------------------------------------------
// Heap headers
// ---------------------------------------------------------------------------

// Handle identifies a heap header. Zero is never a valid handle.
type Handle uint32

// header is the allocation record for one object. Headers live in an arena
// indexed by handle; next links them into the heap list.
type header struct {
	obj    *Object
	next   Handle
	marked bool
	pinned bool
	size   int // charged with the object
	extra  int // charged for owned text or array slots
}

var headerSize = int(unsafe.Sizeof(header{}))

// SweepStats reports the outcome of one sweep.
type SweepStats struct {
	Freed      int
	FreedBytes int
	Kept       int
}

// ---------------------------------------------------------------------------
// Collector
// ---------------------------------------------------------------------------

// Collector owns every object of one script invocation: the heap list, the
// root set and the canonical Nothing. It is not safe for concurrent use.
type Collector struct {
	alloc   Allocator
	slots   []header
	free    []Handle
	head    Handle
	live    int
	roots   Buffer[Handle]
	nothing *Object
}

// NewCollector creates a collector drawing on alloc. The canonical Nothing is
// allocated and pinned immediately.
func NewCollector(alloc Allocator) *Collector {
	c := &Collector{
		alloc: alloc,
		roots: NewBuffer[Handle](alloc, DefaultCapacity),
	}
	c.nothing = c.New(TypeNothing)
	c.Pin(c.nothing)
	return c
}

// Allocator returns the allocator the collector charges.
func (c *Collector) Allocator() Allocator { return c.alloc }

// Nothing returns the canonical Nothing value.
func (c *Collector) Nothing() *Object { return c.nothing }

// New allocates an object of type t and links it into the heap, unmarked and
// unpinned. It is the only way objects come into existence.
func (c *Collector) New(t Type) *Object {
	size := objectSize + headerSize
	if err := c.alloc.Allocate(size); err != nil {
		fatal(ErrOutOfMemory, "allocating %s: %v", t, err)
	}

	o := &Object{Type: t}
	var h Handle
	if n := len(c.free); n > 0 {
		h = c.free[n-1]
		c.free = c.free[:n-1]
	} else {
		c.slots = append(c.slots, header{})
		h = Handle(len(c.slots))
	}
	c.slots[h-1] = header{obj: o, next: c.head, size: size}
	c.head = h
	c.live++
	o.handle = h
	return o
}

// charge bills n extra bytes to o's allocation.
func (c *Collector) charge(o *Object, n int) {
	if n <= 0 {
		return
	}
	if err := c.alloc.Allocate(n); err != nil {
		fatal(ErrOutOfMemory, "allocating %d bytes for %s: %v", n, o.Type, err)
	}
	c.headerOf(o).extra += n
}

func (c *Collector) headerOf(o *Object) *header {
	if o == nil || o.handle == 0 || int(o.handle) > len(c.slots) {
		return nil
	}
	hd := &c.slots[o.handle-1]
	if hd.obj != o {
		return nil
	}
	return hd
}

func (c *Collector) mustHeader(o *Object) *header {
	hd := c.headerOf(o)
	if hd == nil {
		panic(fmt.Sprintf("vm: %v object is not owned by this collector", describe(o)))
	}
	return hd
}

func describe(o *Object) string {
	if o == nil {
		return "nil"
	}
	return o.Type.String()
}

// ---------------------------------------------------------------------------
// Roots and pins
// ---------------------------------------------------------------------------

// AddRoot registers o as a root. Roots are never removed.
func (c *Collector) AddRoot(o *Object) {
	c.mustHeader(o)
	c.roots.Push(o.handle)
}

// Roots returns the number of registered roots.
func (c *Collector) Roots() int { return c.roots.Len() }

// Pin exempts o from collection for the life of the collector.
func (c *Collector) Pin(o *Object) {
	c.mustHeader(o).pinned = true
}

// IsPinned reports whether o is pinned.
func (c *Collector) IsPinned(o *Object) bool {
	hd := c.headerOf(o)
	return hd != nil && hd.pinned
}

// IsMarked reports whether o was reached by the current mark phase.
func (c *Collector) IsMarked(o *Object) bool {
	hd := c.headerOf(o)
	return hd != nil && hd.marked
}

// Contains reports whether o is still in the heap.
func (c *Collector) Contains(o *Object) bool {
	return c.headerOf(o) != nil
}

// HeapLen returns the number of live allocations.
func (c *Collector) HeapLen() int { return c.live }

// Objects yields the heap in list order, newest first.
func (c *Collector) Objects() iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		for h := c.head; h != 0; {
			hd := c.slots[h-1]
			if !yield(hd.obj) {
				return
			}
			h = hd.next
		}
	}
}

// ---------------------------------------------------------------------------
// Mark
// ---------------------------------------------------------------------------

// Mark traces everything reachable from the root set and from pinned
// objects. Marking an already marked object is a no-op, so shared structure
// and cycles are visited once.
func (c *Collector) Mark() {
	work := make([]*Object, 0, c.roots.Len())
	for _, h := range c.roots.Slice() {
		if hd := c.slots[h-1]; hd.obj != nil {
			work = append(work, hd.obj)
		}
	}
	for h := c.head; h != 0; h = c.slots[h-1].next {
		if hd := c.slots[h-1]; hd.pinned {
			work = append(work, hd.obj)
		}
	}
	c.trace(work)
}

// MarkFrom marks the given objects and everything reachable from them, as if
// they were roots for this cycle only.
func (c *Collector) MarkFrom(objs ...*Object) {
	c.trace(append([]*Object(nil), objs...))
}

func (c *Collector) trace(work []*Object) {
	for len(work) > 0 {
		o := work[len(work)-1]
		work = work[:len(work)-1]

		hd := c.headerOf(o)
		if hd == nil || hd.marked {
			continue
		}
		hd.marked = true

		switch o.Type {
		case TypeList:
			work = appendEdges(work, o.Value, o.Next)
		case TypeDict:
			work = appendEdges(work, o.Key, o.Value, o.Next)
		case TypeArray:
			work = appendEdges(work, o.Items...)
		}
	}
}

func appendEdges(work []*Object, edges ...*Object) []*Object {
	for _, e := range edges {
		if e != nil {
			work = append(work, e)
		}
	}
	return work
}

// ---------------------------------------------------------------------------
// Sweep
// ---------------------------------------------------------------------------

// Sweep frees every object that is neither marked nor pinned and clears the
// mark on the survivors.
func (c *Collector) Sweep() SweepStats {
	var stats SweepStats
	var prev Handle
	for h := c.head; h != 0; {
		hd := &c.slots[h-1]
		next := hd.next
		if hd.marked || hd.pinned {
			hd.marked = false
			stats.Kept++
			prev = h
		} else {
			if prev == 0 {
				c.head = next
			} else {
				c.slots[prev-1].next = next
			}
			stats.Freed++
			stats.FreedBytes += c.release(h)
		}
		h = next
	}
	gcLog.Debugf("sweep: freed %d objects (%d bytes), kept %d", stats.Freed, stats.FreedBytes, stats.Kept)
	return stats
}

// Collect runs Mark then Sweep.
func (c *Collector) Collect() SweepStats {
	c.Mark()
	return c.Sweep()
}

// release frees the allocation behind handle h and recycles the slot.
func (c *Collector) release(h Handle) int {
	hd := &c.slots[h-1]
	c.alloc.Free(hd.size)
	if hd.extra > 0 {
		c.alloc.Free(hd.extra)
	}
	n := hd.size + hd.extra
	hd.obj.handle = 0
	*hd = header{}
	c.free = append(c.free, h)
	c.live--
	return n
}

// Teardown frees every remaining allocation regardless of marks and pins,
// then the root set. The collector must not be used afterwards.
func (c *Collector) Teardown() {
	freed := 0
	for h := c.head; h != 0; {
		next := c.slots[h-1].next
		c.release(h)
		freed++
		h = next
	}
	c.head = 0
	c.roots.Release()
	c.slots = nil
	c.free = nil
	c.nothing = nil
	gcLog.Debugf("teardown: released %d objects", freed)
}
