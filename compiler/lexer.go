package compiler

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for owl source text
// ---------------------------------------------------------------------------

// Lexer tokenizes owl source code.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at EOF
	line    int  // line of ch (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar advances to the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEOF() {
		switch l.ch {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			l.readChar()
		case ';':
			for !l.atEOF() && l.ch != '\n' {
				l.readChar()
			}
		default:
			return
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	pos := l.position()

	if l.atEOF() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	var single TokenType = -1
	switch l.ch {
	case '(':
		single = TokenLParen
	case ')':
		single = TokenRParen
	case '[':
		single = TokenLBracket
	case ']':
		single = TokenRBracket
	case '{':
		single = TokenLBrace
	case '}':
		single = TokenRBrace
	case '"':
		return l.readString(pos)
	}
	if single >= 0 {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: single, Literal: lit, Pos: pos}
	}

	return l.readAtom(pos)
}

// readString reads a double-quoted string with \" \\ \n \t escapes.
func (l *Lexer) readString(pos Position) Token {
	var sb strings.Builder
	l.readChar() // opening quote
	for {
		if l.atEOF() {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		switch l.ch {
		case '"':
			l.readChar()
			return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"', '\\':
				sb.WriteRune(l.ch)
			default:
				if l.atEOF() {
					return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
				}
				return Token{Type: TokenError, Literal: "unknown escape \\" + string(l.ch), Pos: l.position()}
			}
			l.readChar()
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// readAtom reads a run of non-delimiter characters and classifies it as a
// number, a boolean or a symbol.
func (l *Lexer) readAtom(pos Position) Token {
	start := l.pos
	for !l.atEOF() && !isDelimiter(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]

	switch {
	case lit == "":
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: "unexpected character " + strconv.QuoteRune(ch), Pos: pos}
	case looksNumeric(lit):
		return Token{Type: TokenNumber, Literal: lit, Pos: pos}
	case strings.EqualFold(lit, "#t"), strings.EqualFold(lit, "#f"):
		return Token{Type: TokenBoolean, Literal: lit, Pos: pos}
	case strings.HasPrefix(lit, "#"):
		return Token{Type: TokenError, Literal: "unknown literal " + lit, Pos: pos}
	}
	return Token{Type: TokenSymbol, Literal: lit, Pos: pos}
}

// looksNumeric reports whether an atom starts like a number: a digit, or a
// sign or point followed by a digit. Atoms such as + and -> stay symbols.
func looksNumeric(lit string) bool {
	i := 0
	if i < len(lit) && (lit[i] == '+' || lit[i] == '-') {
		i++
	}
	if i < len(lit) && lit[i] == '.' {
		i++
	}
	return i < len(lit) && lit[i] >= '0' && lit[i] <= '9'
}
