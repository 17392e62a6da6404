package vm

import (
	"fmt"
	"iter"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Object: the tagged union every owl value is made of
// ---------------------------------------------------------------------------

// Type is the tag of an Object.
type Type uint8

const (
	TypeNothing Type = iota
	TypeNumber
	TypeBoolean
	TypeSymbol
	TypeString
	TypeList
	TypeArray
	TypeDict
)

var typeNames = [...]string{
	TypeNothing: "nothing",
	TypeNumber:  "number",
	TypeBoolean: "boolean",
	TypeSymbol:  "symbol",
	TypeString:  "string",
	TypeList:    "list",
	TypeArray:   "array",
	TypeDict:    "dict",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// Object is a heap value. Which payload fields are meaningful depends on Type:
//
//	Number          Number
//	Boolean         Boolean
//	Symbol, String  Text
//	List            Value (element, nil for the empty list), Next
//	Array           Items (nil slots allowed)
//	Dict            Key, Value, Next
//
// Objects are only created through a Collector, which records each one in
// its heap.
type Object struct {
	Type    Type
	Number  float64
	Boolean bool
	Text    string
	Key     *Object
	Value   *Object
	Next    *Object
	Items   []*Object

	handle Handle
	owned  bool // Text is charged to the allocator
}

var (
	objectSize  = int(unsafe.Sizeof(Object{}))
	pointerSize = int(unsafe.Sizeof((*Object)(nil)))
)

// Owned reports whether a Symbol or String owns its text buffer.
func (o *Object) Owned() bool { return o.owned }

// IsNothing reports whether o is nil or tagged Nothing.
func (o *Object) IsNothing() bool { return o == nil || o.Type == TypeNothing }

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

// NewNumber allocates a Number.
func (c *Collector) NewNumber(n float64) *Object {
	o := c.New(TypeNumber)
	o.Number = n
	return o
}

// NewBoolean allocates a Boolean.
func (c *Collector) NewBoolean(b bool) *Object {
	o := c.New(TypeBoolean)
	o.Boolean = b
	return o
}

// NewSymbol allocates a Symbol that owns a copy of text.
func (c *Collector) NewSymbol(text string) *Object {
	return c.newText(TypeSymbol, text, true)
}

// NewBorrowedSymbol allocates a Symbol that borrows text. Borrowed text is not
// charged to the allocator.
func (c *Collector) NewBorrowedSymbol(text string) *Object {
	return c.newText(TypeSymbol, text, false)
}

// NewString allocates a String that owns a copy of text.
func (c *Collector) NewString(text string) *Object {
	return c.newText(TypeString, text, true)
}

// NewBorrowedString allocates a String that borrows text.
func (c *Collector) NewBorrowedString(text string) *Object {
	return c.newText(TypeString, text, false)
}

func (c *Collector) newText(t Type, text string, owned bool) *Object {
	o := c.New(t)
	if owned {
		c.charge(o, len(text))
		text = string(append([]byte(nil), text...))
	}
	o.Text = text
	o.owned = owned
	return o
}

// NewList allocates an empty List cell.
func (c *Collector) NewList() *Object {
	return c.New(TypeList)
}

// NewListOf allocates a List holding values in order.
func (c *Collector) NewListOf(values ...*Object) *Object {
	list := c.NewList()
	for _, v := range values {
		c.Append(list, v)
	}
	return list
}

// NewArray allocates an Array with n nil slots.
func (c *Collector) NewArray(n int) *Object {
	o := c.New(TypeArray)
	c.charge(o, n*pointerSize)
	o.Items = make([]*Object, n)
	return o
}

// NewDict allocates an empty Dict.
func (c *Collector) NewDict() *Object {
	return c.New(TypeDict)
}

// ---------------------------------------------------------------------------
// Lists
// ---------------------------------------------------------------------------

// Append adds value to the end of list in place. An empty head cell takes the
// value directly; otherwise one new cell is allocated after the terminal cell.
func (c *Collector) Append(list, value *Object) {
	if list.Type != TypeList {
		fatal(ErrTypeMismatch, "append to %s", list.Type)
	}
	if list.Value == nil && list.Next == nil {
		list.Value = value
		return
	}
	tail := list
	for tail.Next != nil {
		tail = tail.Next
	}
	cell := c.NewList()
	cell.Value = value
	tail.Next = cell
}

// Each yields the elements of a list, not its cells. The sequence is finite
// and stops at the first nil Next; empty cells yield nothing.
func Each(list *Object) iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		for cell := list; cell != nil; cell = cell.Next {
			if cell.Value == nil {
				continue
			}
			if !yield(cell.Value) {
				return
			}
		}
	}
}

// Len returns the number of elements in a list.
func Len(list *Object) int {
	n := 0
	for range Each(list) {
		n++
	}
	return n
}

// Head returns the first element of a list, or nil.
func Head(list *Object) *Object {
	if list == nil || list.Type != TypeList {
		return nil
	}
	return list.Value
}

// CheckSymbol reports whether value is a Symbol whose text equals text.
func CheckSymbol(value *Object, text string) bool {
	return value != nil && value.Type == TypeSymbol && value.Text == text
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// ArrayLen returns the number of slots in an array.
func ArrayLen(array *Object) int {
	return len(array.Items)
}

// ArrayAt returns slot i of an array.
func ArrayAt(array *Object, i int) (*Object, error) {
	if array.Type != TypeArray {
		return nil, Errorf(ErrTypeMismatch, "expected array, got %s", array.Type)
	}
	if i < 0 || i >= len(array.Items) {
		return nil, Errorf(ErrIndex, "index %d, length %d", i, len(array.Items))
	}
	return array.Items[i], nil
}

// ArraySet fills slot i of an array.
func ArraySet(array *Object, i int, value *Object) error {
	if array.Type != TypeArray {
		return Errorf(ErrTypeMismatch, "expected array, got %s", array.Type)
	}
	if i < 0 || i >= len(array.Items) {
		return Errorf(ErrIndex, "index %d, length %d", i, len(array.Items))
	}
	array.Items[i] = value
	return nil
}
