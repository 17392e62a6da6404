package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/owl/vm"
)

// ---------------------------------------------------------------------------
// Reader: source text to expression tree
// ---------------------------------------------------------------------------

// ErrIncomplete marks a read error caused by input ending inside a form. The
// REPL uses it to ask for another line.
var ErrIncomplete = errors.New("incomplete input")

// ReadError is a syntax error at a position in the source.
type ReadError struct {
	Pos        Position
	Msg        string
	Incomplete bool
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// Unwrap lets errors.Is match vm.ErrMalformedScript, and ErrIncomplete when
// the input ended early.
func (e *ReadError) Unwrap() []error {
	if e.Incomplete {
		return []error{vm.ErrMalformedScript, ErrIncomplete}
	}
	return []error{vm.ErrMalformedScript}
}

type reader struct {
	gc    *vm.Collector
	lexer *Lexer
	cur   Token
}

// Read parses every form in source and returns them wrapped as (do form...).
// The result is not rooted; callers that collect before running it must root
// it themselves.
func Read(gc *vm.Collector, source string) (script *vm.Object, err error) {
	defer vm.CatchFatal(&err)

	r := &reader{gc: gc, lexer: NewLexer(source)}
	r.next()

	script = gc.NewListOf(gc.NewBorrowedSymbol("do"))
	for r.cur.Type != TokenEOF {
		form, err := r.form()
		if err != nil {
			return nil, err
		}
		gc.Append(script, form)
	}
	return script, nil
}

// ReadForms parses source and returns its forms without the do wrapper.
func ReadForms(gc *vm.Collector, source string) ([]*vm.Object, error) {
	script, err := Read(gc, source)
	if err != nil {
		return nil, err
	}
	var forms []*vm.Object
	for i, v := range collect(script) {
		if i > 0 {
			forms = append(forms, v)
		}
	}
	return forms, nil
}

func collect(list *vm.Object) []*vm.Object {
	var out []*vm.Object
	for v := range vm.Each(list) {
		out = append(out, v)
	}
	return out
}

func (r *reader) next() {
	r.cur = r.lexer.NextToken()
}

func (r *reader) errorf(pos Position, format string, args ...any) *ReadError {
	return &ReadError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (r *reader) incomplete(pos Position, format string, args ...any) *ReadError {
	e := r.errorf(pos, format, args...)
	e.Incomplete = true
	return e
}

// form reads one form starting at the current token.
func (r *reader) form() (*vm.Object, error) {
	tok := r.cur
	switch tok.Type {
	case TokenNumber:
		n, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, r.errorf(tok.Pos, "malformed number %s", tok.Literal)
		}
		r.next()
		return r.gc.NewNumber(n), nil

	case TokenBoolean:
		r.next()
		return r.gc.NewBoolean(strings.EqualFold(tok.Literal, "#t")), nil

	case TokenString:
		r.next()
		return r.gc.NewString(tok.Literal), nil

	case TokenSymbol:
		r.next()
		return r.gc.NewBorrowedSymbol(tok.Literal), nil

	case TokenLParen, TokenLBracket, TokenLBrace:
		return r.compound(tok)

	case TokenRParen, TokenRBracket, TokenRBrace:
		return nil, r.errorf(tok.Pos, "unexpected %s", tok.Type)

	case TokenError:
		if tok.Literal == "unterminated string" {
			return nil, r.incomplete(tok.Pos, "%s", tok.Literal)
		}
		return nil, r.errorf(tok.Pos, "%s", tok.Literal)

	default:
		return nil, r.incomplete(tok.Pos, "unexpected end of input")
	}
}

// compound reads a list, array or dict opened by open.
func (r *reader) compound(open Token) (*vm.Object, error) {
	closer := closers[open.Type]
	r.next()

	var items []*vm.Object
	for r.cur.Type != closer {
		switch r.cur.Type {
		case TokenEOF:
			return nil, r.incomplete(open.Pos, "unclosed %s", open.Type)
		case TokenRParen, TokenRBracket, TokenRBrace:
			return nil, r.errorf(r.cur.Pos, "expected %s, got %s", closer, r.cur.Type)
		}
		item, err := r.form()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	r.next()

	switch open.Type {
	case TokenLBracket:
		array := r.gc.NewArray(len(items))
		copy(array.Items, items)
		return array, nil
	case TokenLBrace:
		if len(items)%2 != 0 {
			return nil, r.errorf(open.Pos, "dict literal needs key value pairs, got %d forms", len(items))
		}
		dict := r.gc.NewDict()
		for i := 0; i < len(items); i += 2 {
			r.gc.DictPut(dict, items[i], items[i+1])
		}
		return dict, nil
	default:
		return r.gc.NewListOf(items...), nil
	}
}
