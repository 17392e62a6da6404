package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/owl/compiler"
	"github.com/chazu/owl/vm"
)

const historyFile = ".owl_history"

// prompter reads one line of input. *liner.State implements it.
type prompter interface {
	Prompt(prompt string) (string, error)
}

// runREPL starts an interactive read-eval-print loop
func runREPL(env *runEnv) error {
	fmt.Fprintln(env.out, "owl REPL (type :quit to exit, :help for commands)")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(completer(env.in.Registry))

	histPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if f, err := os.Open(histPath); err == nil {
			ln.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if histPath == "" {
			return
		}
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	return repl(env, ln, func(entry string) {
		ln.AppendHistory(strings.ReplaceAll(entry, "\n", " "))
	})
}

// repl runs the loop over p until input ends or :quit.
func repl(env *runEnv, p prompter, remember func(string)) error {
	for {
		source, err := readEntry(env.in.Collector(), p)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(env.out)
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return err
		}

		source = strings.TrimSpace(source)
		if source == "" {
			continue
		}
		remember(source)

		if strings.HasPrefix(source, ":") {
			if quit := handleREPLCommand(env, source); quit {
				return nil
			}
			continue
		}

		result, err := env.eval(source)
		if err != nil {
			fmt.Fprintf(env.out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(env.out, result)
	}
}

// readEntry reads lines until they form complete input. A line that starts
// with ':' is a command and ends the entry at once.
func readEntry(gc *vm.Collector, p prompter) (string, error) {
	var b strings.Builder
	for {
		prompt := "owl> "
		if b.Len() > 0 {
			prompt = "...> "
		}
		line, err := p.Prompt(prompt)
		if err != nil {
			if b.Len() > 0 && errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return "", err
		}

		if b.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			return line, nil
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		// Probe with the reader; only running out of input asks for more.
		if _, err := compiler.Read(gc, b.String()); errors.Is(err, compiler.ErrIncomplete) {
			continue
		}
		return b.String(), nil
	}
}

// handleREPLCommand handles REPL meta-commands and reports whether to quit.
func handleREPLCommand(env *runEnv, cmd string) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(env.out, "REPL Commands:")
		fmt.Fprintln(env.out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(env.out, "  :names            List intrinsics")
		fmt.Fprintln(env.out, "  :doc NAME         Show an intrinsic's documentation")
		fmt.Fprintln(env.out, "  :dump             Toggle bytecode printing")
		fmt.Fprintln(env.out, "  :gc               Collect garbage and show heap usage")
		fmt.Fprintln(env.out, "  :quit, :q         Exit REPL")
	case ":names":
		names := env.in.Registry.Names()
		sort.Strings(names)
		fmt.Fprintln(env.out, strings.Join(names, " "))
	case ":doc":
		if len(fields) < 2 {
			fmt.Fprintln(env.out, "usage: :doc NAME")
			break
		}
		if _, ok := env.in.Registry.Lookup(fields[1]); !ok {
			fmt.Fprintf(env.out, "no intrinsic %q\n", fields[1])
			break
		}
		doc := env.in.Registry.Doc(fields[1])
		if doc == "" {
			doc = "(undocumented)"
		}
		fmt.Fprintln(env.out, doc)
	case ":dump":
		env.dump = !env.dump
		fmt.Fprintf(env.out, "bytecode dump %s\n", onOff(env.dump))
	case ":gc":
		stats := env.in.Collect()
		fmt.Fprintf(env.out, "freed %d objects (%d bytes), %d live\n", stats.Freed, stats.FreedBytes, stats.Kept)
	case ":quit", ":q":
		return true
	default:
		fmt.Fprintf(env.out, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return false
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// completer completes the symbol at the end of the line against the
// registered intrinsic names.
func completer(reg *vm.Registry) liner.Completer {
	return func(line string) []string {
		start := strings.LastIndexAny(line, " \t([{") + 1
		prefix := line[start:]
		if prefix == "" {
			return nil
		}
		var out []string
		for _, name := range reg.Names() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, line[:start]+name)
			}
		}
		sort.Strings(out)
		return out
	}
}
