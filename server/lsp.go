package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/owl/compiler"
	"github.com/chazu/owl/vm"
)

const lspName = "owl-lsp"

var log = commonlog.GetLogger("owl.lsp")

// LspServer bridges LSP editor features to an owl interpreter via VMWorker.
type LspServer struct {
	worker *VMWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server wrapping the given interpreter.
func NewLSP(in *vm.Interpreter) *LspServer {
	s := &LspServer{
		worker:  NewVMWorker(in),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "owl LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"("},
	}

	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(text, params.Position)
	result, err := s.worker.Do(func(in *vm.Interpreter) (any, error) {
		return complete(in.Registry, prefix), nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}

	result, err := s.worker.Do(func(in *vm.Interpreter) (any, error) {
		return hover(in.Registry, word), nil
	})
	if err != nil || result == nil {
		return nil, nil
	}
	return result.(*protocol.Hover), nil
}

// --- Registry-backed logic (called on worker goroutine) ---

func complete(reg *vm.Registry, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	for _, name := range reg.Names() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		kind := protocol.CompletionItemKindFunction
		detail := "intrinsic"
		if doc := reg.Doc(name); doc != "" {
			detail = doc
		}
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func hover(reg *vm.Registry, word string) *protocol.Hover {
	if _, ok := reg.Lookup(word); !ok {
		return hoverLiteral(word)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** (intrinsic)", word)
	if doc := reg.Doc(word); doc != "" {
		b.WriteString("\n\n---\n\n")
		b.WriteString(doc)
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// hoverLiteral describes word when it lexes as a single number or boolean.
func hoverLiteral(word string) *protocol.Hover {
	lx := compiler.NewLexer(word)
	tok := lx.NextToken()
	if lx.NextToken().Type != compiler.TokenEOF {
		return nil
	}

	var kind string
	switch tok.Type {
	case compiler.TokenNumber:
		kind = "number"
	case compiler.TokenBoolean:
		kind = "boolean"
	default:
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: fmt.Sprintf("%s `%s`", kind, tok.Literal),
		},
	}
}

// --- Diagnostics ---

// analyze reads and compiles text, returning the problems found. Syntax
// errors carry their source position; forms the compiler skips are reported
// as warnings at the top of the document.
func analyze(in *vm.Interpreter, text string) []protocol.Diagnostic {
	severity := protocol.DiagnosticSeverityError
	source := lspName

	script, err := compiler.Read(in.Collector(), text)
	if err != nil {
		var rerr *compiler.ReadError
		var at protocol.Position
		if errors.As(err, &rerr) {
			at = toPosition(rerr.Pos)
		}
		return []protocol.Diagnostic{{
			Range:    protocol.Range{Start: at, End: at},
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		}}
	}

	c := compiler.NewCompiler(in.Collector().Allocator(), in.Registry)
	code, err := c.Compile(script)
	if err != nil {
		return []protocol.Diagnostic{{
			Severity: &severity,
			Source:   &source,
			Message:  err.Error(),
		}}
	}
	code.Release()

	var diagnostics []protocol.Diagnostic
	warning := protocol.DiagnosticSeverityWarning
	for _, form := range c.Skipped() {
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Severity: &warning,
			Source:   &source,
			Message:  fmt.Sprintf("%s is not an intrinsic call and will not run", form),
		})
	}
	return diagnostics
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(func(in *vm.Interpreter) (any, error) {
		return analyze(in, text), nil
	})
	if err != nil {
		log.Warningf("analyze %s: %s", uri, err)
		return
	}

	diagnostics, _ := result.([]protocol.Diagnostic)
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Text extraction helpers ---

// toPosition converts a 1-based reader position to a 0-based LSP one.
func toPosition(pos compiler.Position) protocol.Position {
	var p protocol.Position
	if pos.Line > 0 {
		p.Line = protocol.UInteger(pos.Line - 1)
	}
	if pos.Column > 0 {
		p.Character = protocol.UInteger(pos.Column - 1)
	}
	return p
}

// isNameRune reports whether r can appear in a symbol.
func isNameRune(r rune) bool {
	if unicode.IsSpace(r) {
		return false
	}
	switch r {
	case '(', ')', '[', ']', '{', '}', '"', ';':
		return false
	}
	return true
}

// cursorLine returns the line under pos and the cursor column clamped to it.
func cursorLine(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the symbol fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	// Walk backwards from cursor to find the start of the symbol
	start := col
	for start > 0 && isNameRune(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full symbol under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := cursorLine(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isNameRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isNameRune(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
