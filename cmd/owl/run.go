package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/owl/compiler"
	"github.com/chazu/owl/vm"
	"github.com/chazu/owl/vm/dist"
)

var log = commonlog.GetLogger("owl.cli")

// runEnv is the state shared by script runs and the REPL.
type runEnv struct {
	in      *vm.Interpreter
	cache   *dist.Cache // nil when caching is off
	out     io.Writer
	dump    bool
	collect bool
}

// compile turns source into code, going through the image cache when one is
// open.
func (e *runEnv) compile(source string) (*vm.Code, error) {
	if e.cache == nil {
		return compiler.CompileSource(e.in, source)
	}
	code, hit, err := e.cache.CompileSource(context.Background(), e.in, source)
	if err != nil {
		return nil, err
	}
	if hit {
		log.Infof("using cached image")
	}
	return code, nil
}

// eval compiles and runs source, returning the rendered result.
func (e *runEnv) eval(source string) (string, error) {
	code, err := e.compile(source)
	if err != nil {
		return "", err
	}
	defer code.Release()

	if e.dump {
		fmt.Fprintln(e.out, "[ Bytecode ]")
		fmt.Fprint(e.out, code.Disassemble())
	}

	result, err := e.in.Execute(code)
	if err != nil {
		return "", fmt.Errorf("run: %w (at instruction %d)", err, e.in.PC())
	}
	rendered := result.String()

	if e.collect {
		stats := e.in.Collect()
		log.Debugf("collected %d objects (%d bytes), %d live", stats.Freed, stats.FreedBytes, stats.Kept)
	}
	return rendered, nil
}

// runFile evaluates the script at path and prints its result.
func (e *runEnv) runFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := e.eval(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintln(e.out, "[ Result ]")
	fmt.Fprintln(e.out, result)
	return nil
}

// printProfile prints the n most called intrinsics.
func (e *runEnv) printProfile(n int) {
	stats := e.in.Profiler.Stats()
	fmt.Fprintln(e.out, "[ Profile ]")
	fmt.Fprintf(e.out, "%d calls to %d intrinsics\n", stats.TotalInvocations, stats.Intrinsics)
	for _, p := range e.in.Profiler.Top(n) {
		fmt.Fprintf(e.out, "%8d  %s\n", p.InvocationCount, p.Name)
	}
}
