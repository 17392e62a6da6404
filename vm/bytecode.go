package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

const (
	OpNOP     Opcode = 0x00 // no operation
	OpJump    Opcode = 0x01 // reserved; not executed
	OpPush    Opcode = 0x10 // push a value
	OpSyscall Opcode = 0x20 // call an intrinsic on the top argc operands
)

var opcodeNames = map[Opcode]string{
	OpNOP:     "NOP",
	OpJump:    "JUMP",
	OpPush:    "PUSH",
	OpSyscall: "SYSCALL",
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// Instruction is one decoded instruction. Value is set for OpPush; Intrinsic,
// Name and Argc for OpSyscall.
type Instruction struct {
	Op        Opcode
	Value     *Object
	Intrinsic Intrinsic
	Name      string
	Argc      int
}

// ---------------------------------------------------------------------------
// Code: a growable instruction sequence
// ---------------------------------------------------------------------------

// Code owns its instruction buffer but not the values it pushes; those belong
// to the collector that allocated them.
type Code struct {
	instrs Buffer[Instruction]
}

// NewCode creates an empty instruction sequence with the default initial
// capacity.
func NewCode(alloc Allocator) *Code {
	c := &Code{instrs: NewBuffer[Instruction](alloc, DefaultCapacity)}
	c.instrs.Reserve()
	return c
}

// Len returns the number of instructions.
func (c *Code) Len() int { return c.instrs.Len() }

// Cap returns the capacity of the instruction buffer.
func (c *Code) Cap() int { return c.instrs.Cap() }

// At returns instruction i.
func (c *Code) At(i int) Instruction { return c.instrs.At(i) }

// Instructions returns the live instructions. The slice aliases the buffer.
func (c *Code) Instructions() []Instruction { return c.instrs.Slice() }

// Emit appends an instruction.
func (c *Code) Emit(in Instruction) {
	c.instrs.Push(in)
}

// EmitNOP appends a no-op.
func (c *Code) EmitNOP() {
	c.Emit(Instruction{Op: OpNOP})
}

// EmitJump appends the reserved jump instruction.
func (c *Code) EmitJump() {
	c.Emit(Instruction{Op: OpJump})
}

// EmitPush appends a push of v.
func (c *Code) EmitPush(v *Object) {
	c.Emit(Instruction{Op: OpPush, Value: v})
}

// EmitSyscall appends a call of fn on the top argc operands.
func (c *Code) EmitSyscall(fn Intrinsic, name string, argc int) {
	c.Emit(Instruction{Op: OpSyscall, Intrinsic: fn, Name: name, Argc: argc})
}

// Values returns every value pushed by the code, in order.
func (c *Code) Values() []*Object {
	var out []*Object
	for _, in := range c.instrs.Slice() {
		if in.Op == OpPush && in.Value != nil {
			out = append(out, in.Value)
		}
	}
	return out
}

// Release returns the instruction buffer to the allocator.
func (c *Code) Release() {
	c.instrs.Release()
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// String renders a single instruction.
func (in Instruction) String() string {
	switch in.Op {
	case OpPush:
		return "PUSH " + in.Value.String()
	case OpSyscall:
		name := in.Name
		if name == "" {
			name = "<intrinsic>"
		}
		return fmt.Sprintf("SYSCALL %s argc=%d", name, in.Argc)
	default:
		return in.Op.Name()
	}
}

// Disassemble renders one instruction per line.
func (c *Code) Disassemble() string {
	var sb strings.Builder
	for _, in := range c.instrs.Slice() {
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
