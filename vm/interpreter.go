package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
)

var vmLog = commonlog.GetLogger("owl.vm")

// ---------------------------------------------------------------------------
// Interpreter: Bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes owl bytecode against an operand stack. It owns the
// stack and the intrinsic registry; the collector is shared with whoever
// built the script.
type Interpreter struct {
	Registry *Registry

	// Out receives the output of echo.
	Out io.Writer

	// Trace logs every instruction at debug level.
	Trace bool

	// Profiler, when set, counts intrinsic calls by name.
	Profiler *Profiler

	gc    *Collector
	stack *Stack
	pc    int
}

// NewInterpreter creates an interpreter over gc with the built-in intrinsics
// registered.
func NewInterpreter(gc *Collector) *Interpreter {
	alloc := gc.Allocator()
	in := &Interpreter{
		Registry: NewRegistry(alloc),
		Out:      os.Stdout,
		gc:       gc,
		stack:    NewStack(alloc),
	}
	in.registerNumberPrimitives()
	in.registerIOPrimitives()
	in.registerCollectionPrimitives()
	return in
}

// Collector returns the collector the interpreter allocates from.
func (in *Interpreter) Collector() *Collector { return in.gc }

// Stack returns the operand stack.
func (in *Interpreter) Stack() *Stack { return in.stack }

// PC returns the program counter.
func (in *Interpreter) PC() int { return in.pc }

// Execute runs code from the first instruction to the last and returns the
// top of the operand stack, or Nothing if the stack is empty. The stack is
// cleared first. Fatal conditions abort the run and come back as an error
// wrapping one of the Err kinds.
func (in *Interpreter) Execute(code *Code) (result *Object, err error) {
	defer CatchFatal(&err)

	in.stack.Truncate(0)
	n := code.Len()
	for in.pc = 0; in.pc < n; in.pc++ {
		instr := code.At(in.pc)
		if in.Trace {
			vmLog.Debugf("%04d  %-24s depth=%d", in.pc, instr, in.stack.Len())
		}
		if err := in.step(instr); err != nil {
			return nil, err
		}
	}

	if top, ok := in.stack.Top(); ok {
		return top, nil
	}
	return in.gc.Nothing(), nil
}

func (in *Interpreter) step(instr Instruction) error {
	switch instr.Op {
	case OpNOP, OpJump:
		return nil

	case OpPush:
		in.stack.Push(instr.Value)
		return nil

	case OpSyscall:
		return in.syscall(instr)

	default:
		fatal(ErrMalformedScript, "unknown opcode %s at %d", instr.Op, in.pc)
		return nil
	}
}

// syscall calls an intrinsic on a window over the top argc operands, then
// folds the window back into the stack.
func (in *Interpreter) syscall(instr Instruction) error {
	depth := in.stack.Len()
	if instr.Argc < 0 || instr.Argc > depth {
		fatal(ErrStackUnderflow, "%s wants %d operands, stack holds %d", instr, instr.Argc, depth)
	}
	if instr.Intrinsic == nil {
		fatal(ErrMalformedScript, "%s has no intrinsic", instr)
	}

	if in.Profiler != nil {
		in.Profiler.RecordCall(instr.Name)
	}

	start := depth - instr.Argc
	window := in.stack.window(instr.Argc)
	err := in.callIntrinsic(instr.Intrinsic, window)
	in.stack.reconcile(start, window)
	if err != nil {
		name := instr.Name
		if name == "" {
			name = "<intrinsic>"
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// callIntrinsic invokes fn, turning a fatal panic inside it into an error so
// the window is always reconciled.
func (in *Interpreter) callIntrinsic(fn Intrinsic, window *Stack) (err error) {
	defer CatchFatal(&err)
	return fn(in, window)
}

// Collect marks from the collector's roots, the operand stack and live, then
// sweeps.
func (in *Interpreter) Collect(live ...*Object) SweepStats {
	in.gc.Mark()
	in.gc.MarkFrom(in.stack.Items()...)
	in.gc.MarkFrom(live...)
	return in.gc.Sweep()
}

// Release returns the stack and registry storage to the allocator. The
// collector is left to its owner.
func (in *Interpreter) Release() {
	in.stack.Release()
	in.Registry.Release()
}
