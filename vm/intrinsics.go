package vm

// ---------------------------------------------------------------------------
// Intrinsic registry
// ---------------------------------------------------------------------------

// Intrinsic is a native function callable from bytecode. args is a window
// over the caller's top operands; the intrinsic leaves its results in it.
// It must not keep args after it returns.
type Intrinsic func(in *Interpreter, args *Stack) error

type namedIntrinsic struct {
	name string
	doc  string
	fn   Intrinsic
}

// Registry maps names to intrinsics. Lookup is a linear scan in registration
// order, so when a name is registered twice the first entry wins.
type Registry struct {
	table Buffer[namedIntrinsic]
}

// NewRegistry creates an empty registry. The table is allocated on the first
// registration.
func NewRegistry(alloc Allocator) *Registry {
	return &Registry{table: NewBuffer[namedIntrinsic](alloc, DefaultCapacity)}
}

// Register adds fn under name.
func (r *Registry) Register(name string, fn Intrinsic) {
	r.RegisterDoc(name, "", fn)
}

// RegisterDoc adds fn under name with a one-line description.
func (r *Registry) RegisterDoc(name, doc string, fn Intrinsic) {
	r.table.Push(namedIntrinsic{name: name, doc: doc, fn: fn})
}

func (r *Registry) find(name string) (namedIntrinsic, bool) {
	for _, e := range r.table.Slice() {
		if e.name == name {
			return e, true
		}
	}
	return namedIntrinsic{}, false
}

// Lookup returns the first intrinsic registered under name.
func (r *Registry) Lookup(name string) (Intrinsic, bool) {
	e, ok := r.find(name)
	return e.fn, ok
}

// Doc returns the description of the first intrinsic registered under name.
func (r *Registry) Doc(name string) string {
	e, _ := r.find(name)
	return e.doc
}

// Names returns each registered name once, in registration order.
func (r *Registry) Names() []string {
	seen := make(map[string]bool, r.table.Len())
	var names []string
	for _, e := range r.table.Slice() {
		if !seen[e.name] {
			seen[e.name] = true
			names = append(names, e.name)
		}
	}
	return names
}

// Len returns the number of entries, duplicates included.
func (r *Registry) Len() int { return r.table.Len() }

// Release returns the table to the allocator.
func (r *Registry) Release() { r.table.Release() }
