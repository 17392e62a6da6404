package vm

// ---------------------------------------------------------------------------
// Operand stack and call windows
// ---------------------------------------------------------------------------

// Stack is the evaluator's operand stack. An intrinsic receives its arguments
// as a window: a Stack whose storage is the tail of the caller's stack, so it
// reads and writes the operands in place. A window is only valid for the
// duration of the call that received it.
type Stack struct {
	buf      Buffer[*Object]
	released bool
}

// NewStack creates an empty operand stack.
func NewStack(alloc Allocator) *Stack {
	return &Stack{buf: NewBuffer[*Object](alloc, DefaultCapacity)}
}

func (s *Stack) check() {
	if s.released {
		panic("vm: stack window used after its call returned")
	}
}

// Len returns the number of operands.
func (s *Stack) Len() int {
	s.check()
	return s.buf.Len()
}

// Cap returns the capacity of the backing storage.
func (s *Stack) Cap() int {
	s.check()
	return s.buf.Cap()
}

// At returns operand i, counting from the bottom.
func (s *Stack) At(i int) *Object {
	s.check()
	return s.buf.At(i)
}

// Items returns the operands bottom first. The slice aliases the stack.
func (s *Stack) Items() []*Object {
	s.check()
	return s.buf.Slice()
}

// Top returns the topmost operand.
func (s *Stack) Top() (*Object, bool) {
	s.check()
	n := s.buf.Len()
	if n == 0 {
		return nil, false
	}
	return s.buf.At(n - 1), true
}

// Push appends v, doubling the storage when full.
func (s *Stack) Push(v *Object) {
	s.check()
	s.buf.Push(v)
}

// Pop removes and returns the topmost operand. Popping an empty stack is a
// fatal underflow.
func (s *Stack) Pop() *Object {
	s.check()
	v, ok := s.buf.Pop()
	if !ok {
		fatal(ErrStackUnderflow, "pop from empty stack")
	}
	return v
}

// Truncate drops everything above the first n operands.
func (s *Stack) Truncate(n int) {
	s.check()
	s.buf.Truncate(n)
}

// Release returns the stack's storage to the allocator.
func (s *Stack) Release() {
	s.buf.Release()
}

// window returns a view over the top argc operands sharing s's storage.
func (s *Stack) window(argc int) *Stack {
	start := s.buf.Len() - argc
	return &Stack{buf: Buffer[*Object]{
		data:     s.buf.data[start:],
		alloc:    s.buf.alloc,
		initial:  s.buf.initial,
		borrowed: true,
	}}
}

// reconcile folds a window opened at start back into s and invalidates it.
// A window that stayed on the shared storage only changes s's length. A
// window that grew onto storage of its own is adopted wholesale when it
// covered the entire stack, and copied back otherwise.
func (s *Stack) reconcile(start int, w *Stack) {
	wd := w.buf.data
	switch {
	case w.buf.borrowed:
		s.buf.data = s.buf.data[:start+len(wd)]
	case start == 0:
		s.buf.Release()
		s.buf.data = wd
	default:
		s.buf.Truncate(start)
		for _, v := range wd {
			s.buf.Push(v)
		}
		w.buf.Release()
	}
	w.buf.data = nil
	w.released = true
}
