package server

import (
	"bytes"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/chazu/owl/compiler"
	"github.com/chazu/owl/vm"
)

func newTestInterpreter(t *testing.T) *vm.Interpreter {
	t.Helper()
	gc := vm.NewCollector(vm.NewSystemAllocator())
	in := vm.NewInterpreter(gc)
	in.Out = &bytes.Buffer{}
	t.Cleanup(func() {
		in.Release()
		gc.Teardown()
	})
	return in
}

// ---------------------------------------------------------------------------
// LSP text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"after paren", "(ec", protocol.Position{Line: 0, Character: 3}, "ec"},
		{"operator", "(+", protocol.Position{Line: 0, Character: 2}, "+"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "(echo 1)\n(li", protocol.Position{Line: 1, Character: 3}, "li"},
		{"after space", "(echo ar", protocol.Position{Line: 0, Character: 8}, "ar"},
		{"cursor at start", "echo", protocol.Position{Line: 0, Character: 0}, ""},
		{"line beyond document", "(echo)", protocol.Position{Line: 5, Character: 0}, ""},
		{"column beyond line", "(list", protocol.Position{Line: 0, Character: 40}, "list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPrefix(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractPrefix = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"middle of name", "(echo 1)", protocol.Position{Line: 0, Character: 3}, "echo"},
		{"operator", "(+ 1 2)", protocol.Position{Line: 0, Character: 1}, "+"},
		{"on delimiter", "(+ 1 2)", protocol.Position{Line: 0, Character: 0}, ""},
		{"string quote stops", `(echo "hi")`, protocol.Position{Line: 0, Character: 8}, "hi"},
		{"second line", "(echo)\n(list 1)", protocol.Position{Line: 1, Character: 2}, "list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractWord(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractWord = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Completion and hover
// ---------------------------------------------------------------------------

func TestCompleteFiltersByPrefix(t *testing.T) {
	in := newTestInterpreter(t)

	items := complete(in.Registry, "li")
	if len(items) != 1 || items[0].Label != "list" {
		t.Fatalf("complete(li) = %v, want [list]", items)
	}
	if items[0].Detail == nil || *items[0].Detail == "intrinsic" {
		t.Error("documented intrinsic completed without its doc")
	}

	all := complete(in.Registry, "")
	if len(all) != len(in.Registry.Names()) {
		t.Errorf("empty prefix gave %d items, want %d", len(all), len(in.Registry.Names()))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Label > all[i].Label {
			t.Errorf("items not sorted: %q before %q", all[i-1].Label, all[i].Label)
		}
	}
}

func TestCompleteUndocumentedIntrinsic(t *testing.T) {
	in := newTestInterpreter(t)
	in.Registry.Register("zap", func(*vm.Interpreter, *vm.Stack) error { return nil })

	items := complete(in.Registry, "za")
	if len(items) != 1 || *items[0].Detail != "intrinsic" {
		t.Errorf("complete(za) = %v", items)
	}
}

func TestHover(t *testing.T) {
	in := newTestInterpreter(t)

	h := hover(in.Registry, "+")
	if h == nil {
		t.Fatal("no hover for +")
	}
	content := h.Contents.(protocol.MarkupContent)
	if !strings.HasPrefix(content.Value, "**+** (intrinsic)") {
		t.Errorf("hover = %q", content.Value)
	}
	if !strings.Contains(content.Value, in.Registry.Doc("+")) {
		t.Error("hover is missing the doc string")
	}

	if hover(in.Registry, "nope") != nil {
		t.Error("hover for an unknown name")
	}
}

func TestHoverLiteral(t *testing.T) {
	in := newTestInterpreter(t)

	tests := []struct {
		word string
		want string
	}{
		{"42", "number `42`"},
		{"-1.5", "number `-1.5`"},
		{"#t", "boolean `#t`"},
	}
	for _, tt := range tests {
		h := hover(in.Registry, tt.word)
		if h == nil {
			t.Errorf("no hover for %s", tt.word)
			continue
		}
		if got := h.Contents.(protocol.MarkupContent).Value; got != tt.want {
			t.Errorf("hover(%s) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestAnalyzeCleanDocument(t *testing.T) {
	in := newTestInterpreter(t)
	if diags := analyze(in, "(echo 1)\n(+ 1 2)"); len(diags) != 0 {
		t.Errorf("diagnostics = %v, want none", diags)
	}
}

func TestAnalyzeSyntaxErrorPosition(t *testing.T) {
	in := newTestInterpreter(t)

	diags := analyze(in, "(echo 1)\n  (+ 1 2]")
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if *d.Severity != protocol.DiagnosticSeverityError {
		t.Errorf("severity = %v", *d.Severity)
	}
	// The mismatched ] is the ninth character of the second line.
	if d.Range.Start.Line != 1 || d.Range.Start.Character != 8 {
		t.Errorf("start = %+v, want line 1 character 8", d.Range.Start)
	}
}

func TestAnalyzeWarnsOnSkippedForms(t *testing.T) {
	in := newTestInterpreter(t)

	diags := analyze(in, "(echo 1) 42 (nope 2)")
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2: %v", len(diags), diags)
	}
	for _, d := range diags {
		if *d.Severity != protocol.DiagnosticSeverityWarning {
			t.Errorf("severity = %v, want warning", *d.Severity)
		}
	}
	if !strings.HasPrefix(diags[1].Message, "(nope 2)") {
		t.Errorf("message = %q", diags[1].Message)
	}
}

func TestToPosition(t *testing.T) {
	p := toPosition(compiler.Position{Line: 3, Column: 5})
	if p.Line != 2 || p.Character != 4 {
		t.Errorf("toPosition = %+v", p)
	}
	if z := toPosition(compiler.Position{}); z.Line != 0 || z.Character != 0 {
		t.Errorf("zero position = %+v", z)
	}
}
