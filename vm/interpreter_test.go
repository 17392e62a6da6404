package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type fixture struct {
	alloc *SystemAllocator
	gc    *Collector
	in    *Interpreter
	code  *Code
	out   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	alloc := NewSystemAllocator()
	gc := NewCollector(alloc)
	f := &fixture{
		alloc: alloc,
		gc:    gc,
		in:    NewInterpreter(gc),
		code:  NewCode(alloc),
		out:   &bytes.Buffer{},
	}
	f.in.Out = f.out
	t.Cleanup(func() {
		f.code.Release()
		f.in.Release()
		f.gc.Teardown()
	})
	return f
}

// call emits pushes of the given numbers followed by a syscall of name.
func (f *fixture) call(t *testing.T, name string, args ...float64) {
	t.Helper()
	fn, ok := f.in.Registry.Lookup(name)
	if !ok {
		t.Fatalf("intrinsic %q not registered", name)
	}
	for _, a := range args {
		f.code.EmitPush(f.gc.NewNumber(a))
	}
	f.code.EmitSyscall(fn, name, len(args))
}

// ---------------------------------------------------------------------------
// Basic execution tests
// ---------------------------------------------------------------------------

func TestExecuteEmptyCodeReturnsNothing(t *testing.T) {
	f := newFixture(t)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	if result != f.gc.Nothing() {
		t.Errorf("result = %v, want canonical Nothing", result)
	}
}

func TestExecuteReturnsTopOfStack(t *testing.T) {
	f := newFixture(t)

	f.code.EmitPush(f.gc.NewNumber(1))
	f.code.EmitNOP()
	f.code.EmitJump()
	last := f.gc.NewSymbol("last")
	f.code.EmitPush(last)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	if result != last {
		t.Errorf("result = %v, want last", result)
	}
	if f.in.PC() != f.code.Len() {
		t.Errorf("PC = %d, want %d", f.in.PC(), f.code.Len())
	}
}

func TestAddThreeNumbers(t *testing.T) {
	f := newFixture(t)
	f.call(t, "+", 1, 2, 3)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	if result.Type != TypeNumber || result.Number != 6 {
		t.Errorf("result = %v, want 6", result)
	}
	if f.in.Stack().Len() != 1 {
		t.Errorf("stack depth = %d, want 1", f.in.Stack().Len())
	}
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   string
		args []float64
		want float64
	}{
		{"sum empty", "+", nil, 0},
		{"sum", "+", []float64{1.5, 2.5}, 4},
		{"subtract", "-", []float64{10, 3, 2}, 5},
		{"negate", "-", []float64{4}, -4},
		{"product empty", "*", nil, 1},
		{"product", "*", []float64{2, 3, 4}, 24},
		{"divide", "/", []float64{12, 2, 3}, 2},
		{"reciprocal", "/", []float64{4}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.call(t, tt.op, tt.args...)
			result, err := f.in.Execute(f.code)
			if err != nil {
				t.Fatal(err)
			}
			if result.Number != tt.want {
				t.Errorf("(%s %v) = %v, want %v", tt.op, tt.args, result, tt.want)
			}
		})
	}
}

func TestDivideByZeroIsInfinite(t *testing.T) {
	f := newFixture(t)
	f.call(t, "/", 1, 0)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	if result.String() != "+Inf" {
		t.Errorf("(/ 1 0) = %v", result)
	}
}

func TestChainedCallsShareStack(t *testing.T) {
	f := newFixture(t)
	f.call(t, "+", 1, 2)
	f.call(t, "*", 3, 4)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	items := f.in.Stack().Items()
	if len(items) != 2 || items[0].Number != 3 || items[1].Number != 12 {
		t.Errorf("stack = %v", items)
	}
	if result.Number != 12 {
		t.Errorf("result = %v, want 12", result)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestStackUnderflow(t *testing.T) {
	f := newFixture(t)
	called := false
	spy := func(*Interpreter, *Stack) error {
		called = true
		return nil
	}
	f.code.EmitPush(f.gc.NewNumber(1))
	f.code.EmitSyscall(spy, "spy", 2)

	_, err := f.in.Execute(f.code)
	if !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
	if called {
		t.Error("intrinsic ran despite underflow")
	}
}

func TestTypeMismatch(t *testing.T) {
	f := newFixture(t)
	fn, _ := f.in.Registry.Lookup("+")
	f.code.EmitPush(f.gc.NewNumber(1))
	f.code.EmitPush(f.gc.NewSymbol("x"))
	f.code.EmitSyscall(fn, "+", 2)
	f.code.EmitPush(f.gc.NewNumber(99))

	result, err := f.in.Execute(f.code)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("err = %v, want ErrTypeMismatch", err)
	}
	if result != nil {
		t.Errorf("result = %v after failure", result)
	}
	if !strings.HasPrefix(err.Error(), "+: ") {
		t.Errorf("error %q does not name the intrinsic", err)
	}
	if f.in.PC() != 2 {
		t.Errorf("execution continued to pc %d", f.in.PC())
	}
}

func TestArityError(t *testing.T) {
	for _, op := range []string{"-", "/"} {
		f := newFixture(t)
		f.call(t, op)
		if _, err := f.in.Execute(f.code); !errors.Is(err, ErrArity) {
			t.Errorf("(%s) err = %v, want ErrArity", op, err)
		}
	}
}

func TestFatalInsideIntrinsicIsReported(t *testing.T) {
	f := newFixture(t)
	f.in.Registry.Register("pop-too-far", func(in *Interpreter, args *Stack) error {
		args.Pop()
		args.Pop()
		return nil
	})
	f.call(t, "pop-too-far", 1)

	if _, err := f.in.Execute(f.code); !errors.Is(err, ErrStackUnderflow) {
		t.Errorf("err = %v, want ErrStackUnderflow", err)
	}
}

// ---------------------------------------------------------------------------
// Stack windows
// ---------------------------------------------------------------------------

func TestWindowSeesOnlyItsOperands(t *testing.T) {
	f := newFixture(t)
	var seen []float64
	f.in.Registry.Register("peek", func(in *Interpreter, args *Stack) error {
		for _, v := range args.Items() {
			seen = append(seen, v.Number)
		}
		return nil
	})
	f.code.EmitPush(f.gc.NewNumber(1))
	f.call(t, "peek", 2, 3)

	if _, err := f.in.Execute(f.code); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != 2 || seen[1] != 3 {
		t.Errorf("window held %v, want [2 3]", seen)
	}
	if f.in.Stack().Len() != 3 {
		t.Errorf("untouched window changed depth to %d", f.in.Stack().Len())
	}
}

func TestWindowCanShrinkToNothing(t *testing.T) {
	f := newFixture(t)
	f.in.Registry.Register("drop", func(in *Interpreter, args *Stack) error {
		args.Truncate(0)
		return nil
	})
	f.code.EmitPush(f.gc.NewNumber(1))
	f.call(t, "drop", 2, 3)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	if f.in.Stack().Len() != 1 || result.Number != 1 {
		t.Errorf("depth = %d result = %v", f.in.Stack().Len(), result)
	}
}

func grow(n int) Intrinsic {
	return func(in *Interpreter, args *Stack) error {
		for i := 0; i < n; i++ {
			args.Push(in.Collector().NewNumber(float64(100 + i)))
		}
		return nil
	}
}

func TestFullWindowGrowthIsAdopted(t *testing.T) {
	f := newFixture(t)
	f.in.Registry.Register("grow", grow(30))
	f.call(t, "grow", 1, 2)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	s := f.in.Stack()
	if s.Len() != 32 {
		t.Fatalf("depth = %d, want 32", s.Len())
	}
	if s.Cap() != 2*DefaultCapacity {
		t.Errorf("cap = %d, want %d", s.Cap(), 2*DefaultCapacity)
	}
	if s.At(0).Number != 1 || s.At(1).Number != 2 || result.Number != 129 {
		t.Errorf("stack bottom %v %v top %v", s.At(0), s.At(1), result)
	}
}

func TestPartialWindowGrowthIsCopiedBack(t *testing.T) {
	f := newFixture(t)
	f.in.Registry.Register("grow", grow(20))
	f.code.EmitPush(f.gc.NewSymbol("a"))
	f.code.EmitPush(f.gc.NewSymbol("b"))
	f.call(t, "grow", 1)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	s := f.in.Stack()
	if s.Len() != 23 {
		t.Fatalf("depth = %d, want 23", s.Len())
	}
	if !CheckSymbol(s.At(0), "a") || !CheckSymbol(s.At(1), "b") || s.At(2).Number != 1 {
		t.Errorf("stack bottom = %v %v %v", s.At(0), s.At(1), s.At(2))
	}
	if result.Number != 119 {
		t.Errorf("result = %v, want 119", result)
	}
}

func TestRetainedWindowIsUnusable(t *testing.T) {
	f := newFixture(t)
	var kept *Stack
	f.in.Registry.Register("keep", func(in *Interpreter, args *Stack) error {
		kept = args
		return nil
	})
	f.call(t, "keep", 1)

	if _, err := f.in.Execute(f.code); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Error("using a window after its call did not panic")
		}
	}()
	kept.Len()
}

func TestStackStorageIsBalanced(t *testing.T) {
	alloc := NewSystemAllocator()
	gc := NewCollector(alloc)
	in := NewInterpreter(gc)
	code := NewCode(alloc)
	in.Registry.Register("grow", grow(40))
	fn, _ := in.Registry.Lookup("grow")
	code.EmitPush(gc.NewNumber(1))
	code.EmitPush(gc.NewNumber(2))
	code.EmitSyscall(fn, "grow", 1)
	code.EmitSyscall(fn, "grow", 0)

	if _, err := in.Execute(code); err != nil {
		t.Fatal(err)
	}
	code.Release()
	in.Release()
	gc.Teardown()
	if alloc.Live() != 0 || alloc.Count() != 0 {
		t.Errorf("live=%d count=%d after release", alloc.Live(), alloc.Count())
	}
}

// ---------------------------------------------------------------------------
// Other built-ins
// ---------------------------------------------------------------------------

func TestEcho(t *testing.T) {
	f := newFixture(t)
	fn, _ := f.in.Registry.Lookup("echo")
	f.code.EmitPush(f.gc.NewString("hi"))
	f.code.EmitPush(f.gc.NewNumber(2))
	f.code.EmitSyscall(fn, "echo", 2)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.out.String(); got != "hi 2\n" {
		t.Errorf("echo wrote %q", got)
	}
	if result.Number != 2 {
		t.Errorf("echo returned %v, want its last operand", result)
	}
}

func TestEchoPrintsTextRaw(t *testing.T) {
	f := newFixture(t)
	fn, _ := f.in.Registry.Lookup("echo")
	f.code.EmitPush(f.gc.NewSymbol("sym"))
	f.code.EmitPush(f.gc.NewString("two words"))
	f.code.EmitPush(f.gc.NewListOf(f.gc.NewString("in"), f.gc.NewBoolean(true)))
	f.code.EmitSyscall(fn, "echo", 3)

	if _, err := f.in.Execute(f.code); err != nil {
		t.Fatal(err)
	}
	// Only top-level text is unquoted; composites keep the printer's form.
	if got := f.out.String(); got != "sym two words (\"in\" #t)\n" {
		t.Errorf("echo wrote %q", got)
	}
}

func TestEchoWithoutOperands(t *testing.T) {
	f := newFixture(t)
	fn, _ := f.in.Registry.Lookup("echo")
	f.code.EmitSyscall(fn, "echo", 0)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	if result != f.gc.Nothing() || f.out.String() != "\n" {
		t.Errorf("result = %v output = %q", result, f.out.String())
	}
}

func TestListAndArray(t *testing.T) {
	f := newFixture(t)
	f.call(t, "list", 1, 2)
	f.call(t, "array", 3, 4)

	if _, err := f.in.Execute(f.code); err != nil {
		t.Fatal(err)
	}
	items := f.in.Stack().Items()
	if len(items) != 2 {
		t.Fatalf("stack = %v", items)
	}
	if got := items[0].String(); got != "(1 2)" {
		t.Errorf("list = %s", got)
	}
	if got := items[1].String(); got != "[3 4]" {
		t.Errorf("array = %s", got)
	}
}

// ---------------------------------------------------------------------------
// Registry and collection
// ---------------------------------------------------------------------------

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry(NewSystemAllocator())
	defer r.Release()

	if _, ok := r.Lookup("f"); ok {
		t.Error("lookup in empty registry succeeded")
	}
	first := func(*Interpreter, *Stack) error { return errors.New("first") }
	second := func(*Interpreter, *Stack) error { return errors.New("second") }
	r.RegisterDoc("f", "the first", first)
	r.Register("f", second)
	for i := 0; i < 2*DefaultCapacity; i++ {
		r.Register("filler", second)
	}

	fn, ok := r.Lookup("f")
	if !ok || fn(nil, nil).Error() != "first" {
		t.Error("lookup did not return the earliest registration")
	}
	if r.Len() != 2+2*DefaultCapacity {
		t.Errorf("Len = %d", r.Len())
	}
	if names := r.Names(); len(names) != 2 || names[0] != "f" || names[1] != "filler" {
		t.Errorf("Names = %v", names)
	}
	if r.Doc("f") != "the first" {
		t.Errorf("Doc = %q", r.Doc("f"))
	}
}

func TestInterpreterCollectKeepsStack(t *testing.T) {
	f := newFixture(t)
	f.call(t, "+", 1, 2)

	result, err := f.in.Execute(f.code)
	if err != nil {
		t.Fatal(err)
	}
	extra := f.gc.NewString("extra")
	garbage := f.gc.NewString("garbage")
	f.in.Collect(extra)

	if !f.gc.Contains(result) {
		t.Error("result on the stack was collected")
	}
	if !f.gc.Contains(extra) {
		t.Error("explicitly live value was collected")
	}
	if f.gc.Contains(garbage) {
		t.Error("garbage survived")
	}
}
