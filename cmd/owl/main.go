// owl CLI - runs owl scripts, starts the REPL or the language server
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/owl/manifest"
	"github.com/chazu/owl/server"
	"github.com/chazu/owl/vm"
	"github.com/chazu/owl/vm/dist"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (debug logging)")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	dump := flag.Bool("dump", false, "Print the bytecode before running")
	trace := flag.Bool("trace", false, "Log every executed instruction")
	profile := flag.Bool("profile", false, "Print intrinsic call counts after running")
	lspMode := flag.Bool("lsp", false, "Start language server on stdio")
	cachePath := flag.String("cache", "", "Image cache database (overrides owl.toml)")
	noCache := flag.Bool("no-cache", false, "Do not use the image cache")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: owl [options] [script.owl]\n\n")
		fmt.Fprintf(os.Stderr, "Runs an owl script, or starts the REPL when no script is given.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  owl                      # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  owl -dump hello.owl      # Show bytecode, then run\n")
		fmt.Fprintf(os.Stderr, "  owl -i init.owl          # Run init.owl, then start REPL\n")
		fmt.Fprintf(os.Stderr, "  owl -profile loop.owl    # Count intrinsic calls\n")
		fmt.Fprintf(os.Stderr, "  owl -lsp                 # Language server for editors\n")
	}
	flag.Parse()

	cwd, err := os.Getwd()
	if err != nil {
		fail(err)
	}
	m, err := manifest.FindAndLoad(cwd)
	if err != nil {
		fail(err)
	}
	if m == nil {
		m = manifest.Default(cwd)
	}

	verbosity := m.Log.Verbosity
	if *verbose && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, m.LogPath())

	in, err := newInterpreter(m)
	if err != nil {
		fail(err)
	}
	in.Trace = m.Eval.Trace || *trace
	if *profile {
		in.Profiler = vm.NewProfiler()
	}

	if *lspMode {
		if err := server.NewLSP(in).Run(); err != nil {
			fail(fmt.Errorf("language server: %w", err))
		}
		return
	}

	env := &runEnv{
		in:      in,
		out:     os.Stdout,
		dump:    m.Eval.DumpBytecode || *dump,
		collect: m.GC.Collect,
	}

	if m.Cache.Enabled || *cachePath != "" {
		if !*noCache {
			path := m.CachePath()
			if *cachePath != "" {
				path = *cachePath
			}
			cache, err := dist.OpenCache(path)
			if err != nil {
				fail(err)
			}
			defer cache.Close()
			env.cache = cache
		}
	}

	script := flag.Arg(0)
	if script == "" {
		script = m.EntryPath()
	}

	if script != "" {
		if err := env.runFile(script); err != nil {
			if in.Profiler != nil {
				env.printProfile(10)
			}
			in.Release()
			in.Collector().Teardown()
			fail(err)
		}
	}

	if *interactive || script == "" {
		if err := runREPL(env); err != nil {
			fail(err)
		}
	}

	if in.Profiler != nil {
		env.printProfile(10)
	}
	in.Release()
	in.Collector().Teardown()
}

// newInterpreter builds the collector and interpreter the manifest asks for.
func newInterpreter(m *manifest.Manifest) (in *vm.Interpreter, err error) {
	defer vm.CatchFatal(&err)

	var alloc vm.Allocator = vm.NewSystemAllocator()
	if m.GC.HeapLimit > 0 {
		alloc = vm.NewLimitAllocator(m.GC.HeapLimit)
	}
	return vm.NewInterpreter(vm.NewCollector(alloc)), nil
}

// fail prints err and exits with status 1.
func fail(err error) {
	msg := err.Error()
	if errors.Is(err, vm.ErrOutOfMemory) {
		msg += " (raise gc.heap-limit in owl.toml)"
	}
	fmt.Fprintf(os.Stderr, "owl: %s\n", msg)
	os.Exit(1)
}
