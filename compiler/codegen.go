package compiler

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/owl/vm"
)

var log = commonlog.GetLogger("owl.compiler")

// ---------------------------------------------------------------------------
// Codegen: Compile expression trees to bytecode
// ---------------------------------------------------------------------------

// Compiler turns a (do ...) expression tree into linear bytecode. Only calls
// of registered intrinsics produce code; any other body form is skipped.
type Compiler struct {
	alloc    vm.Allocator
	registry *vm.Registry
	skipped  []*vm.Object
}

// NewCompiler creates a compiler that resolves calls through registry and
// charges instruction buffers to alloc.
func NewCompiler(alloc vm.Allocator, registry *vm.Registry) *Compiler {
	return &Compiler{alloc: alloc, registry: registry}
}

// Skipped returns the body forms the last Compile emitted nothing for.
func (c *Compiler) Skipped() []*vm.Object {
	return c.skipped
}

// Compile emits code for script, which must be a List headed by the Symbol
// do. For each body form (name arg...) where name is a registered intrinsic,
// every arg is pushed in order and one syscall with argc equal to the number
// of args follows. Arguments are pushed as they are, never compiled.
func (c *Compiler) Compile(script *vm.Object) (code *vm.Code, err error) {
	c.skipped = nil
	out := vm.NewCode(c.alloc)
	defer func() {
		if err != nil {
			out.Release()
			code = nil
		}
	}()
	defer vm.CatchFatal(&err)

	if script == nil || script.Type != vm.TypeList || !vm.CheckSymbol(vm.Head(script), "do") {
		return nil, vm.Errorf(vm.ErrMalformedScript, "script must be a (do ...) list, got %v", script)
	}

	first := true
	for form := range vm.Each(script) {
		if first {
			first = false
			continue
		}
		if !c.compileCall(out, form) {
			log.Debugf("skipping %v: not an intrinsic call", form)
			c.skipped = append(c.skipped, form)
		}
	}
	return out, nil
}

// compileCall emits a call form and reports whether it was one.
func (c *Compiler) compileCall(code *vm.Code, form *vm.Object) bool {
	if form.Type != vm.TypeList {
		return false
	}
	head := vm.Head(form)
	if head == nil || head.Type != vm.TypeSymbol {
		return false
	}
	fn, ok := c.registry.Lookup(head.Text)
	if !ok {
		return false
	}

	argc := 0
	first := true
	for arg := range vm.Each(form) {
		if first {
			first = false
			continue
		}
		code.EmitPush(arg)
		argc++
	}
	code.EmitSyscall(fn, head.Text, argc)
	return true
}

// ---------------------------------------------------------------------------
// Convenience entry points
// ---------------------------------------------------------------------------

// Compile compiles script against the interpreter's registry.
func Compile(in *vm.Interpreter, script *vm.Object) (*vm.Code, error) {
	return NewCompiler(in.Collector().Allocator(), in.Registry).Compile(script)
}

// CompileSource reads source and compiles it. The script is rooted so the
// pushed values survive collections until the collector is torn down.
func CompileSource(in *vm.Interpreter, source string) (*vm.Code, error) {
	script, err := Read(in.Collector(), source)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	in.Collector().AddRoot(script)
	code, err := Compile(in, script)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return code, nil
}

// Eval compiles and executes script, releasing the code afterwards.
func Eval(in *vm.Interpreter, script *vm.Object) (*vm.Object, error) {
	code, err := Compile(in, script)
	if err != nil {
		return nil, err
	}
	defer code.Release()
	return in.Execute(code)
}
