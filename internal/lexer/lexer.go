package lexer

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// DiagnosticCode identifies lexer diagnostic categories.
type DiagnosticCode string

// DiagnosticCode values emitted by the lexer.
const (
	DiagnosticInvalidByte         DiagnosticCode = "LEX_INVALID_BYTE"
	DiagnosticUnknownCharacter    DiagnosticCode = "LEX_UNKNOWN_CHARACTER"
	DiagnosticUnterminatedString  DiagnosticCode = "LEX_UNTERMINATED_STRING"
	DiagnosticInvalidDate         DiagnosticCode = "LEX_INVALID_DATE"
	DiagnosticInvalidTagOrLink    DiagnosticCode = "LEX_INVALID_TAG"
	DiagnosticMalformedAccountRef DiagnosticCode = "LEX_MALFORMED_ACCOUNT"
)

// Diagnostic is a lexer-level issue with source location.
type Diagnostic struct {
	Code    DiagnosticCode
	Message string
	Span    text.Span
}

// Result is the output of lexing a journal.
type Result struct {
	Tokens      []Token
	Diagnostics []Diagnostic
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Lex tokenizes src into a lossless token stream. The final token is always EOF.
func Lex(src []byte) Result {
	s := scanner{src: src, atLineStart: true}
	s.run()
	return Result{Tokens: s.tokens, Diagnostics: s.diagnostics}
}

type scanner struct {
	src         []byte
	i           int
	atLineStart bool
	indented    bool
	tokens      []Token
	diagnostics []Diagnostic
}

func (s *scanner) run() {
	for {
		leading, errTok := s.scanLeadingTrivia()
		if errTok != nil {
			errTok.Leading = leading
			s.emit(*errTok)
			continue
		}
		if s.eof() {
			s.tokens = append(s.tokens, Token{Kind: TokenEOF, Span: span(len(s.src), len(s.src)), Leading: leading})
			return
		}
		tok := s.scanToken()
		tok.Leading = leading
		s.emit(tok)
	}
}

func (s *scanner) emit(tok Token) {
	if s.atLineStart {
		if s.indented {
			tok.Flags |= TokenFlagIndented
		} else {
			tok.Flags |= TokenFlagLineStart
		}
		s.atLineStart = false
	}
	s.tokens = append(s.tokens, tok)
}

func (s *scanner) scanLeadingTrivia() ([]Trivia, *Token) {
	var out []Trivia
	if s.i == 0 && bytes.HasPrefix(s.src, utf8BOM) {
		s.i = len(utf8BOM)
		out = append(out, Trivia{Kind: TriviaBOM, Span: span(0, s.i)})
	}
	for !s.eof() {
		start := s.i
		switch b := s.src[s.i]; b {
		case ' ', '\t':
			for !s.eof() && isHorizontalSpace(s.src[s.i]) {
				s.i++
			}
			if s.atLineStart {
				s.indented = true
			}
			out = append(out, Trivia{Kind: TriviaWhitespace, Span: span(start, s.i)})
		case '\n', '\r':
			s.i++
			if b == '\r' && s.peekByte(0) == '\n' {
				s.i++
			}
			s.atLineStart, s.indented = true, false
			out = append(out, Trivia{Kind: TriviaNewline, Span: span(start, s.i)})
		case ';':
			for !s.eof() && s.src[s.i] != '\n' && s.src[s.i] != '\r' {
				s.i++
			}
			out = append(out, Trivia{Kind: TriviaComment, Span: span(start, s.i)})
		default:
			if b >= utf8.RuneSelf {
				if r, size := utf8.DecodeRune(s.src[s.i:]); r == utf8.RuneError && size == 1 {
					s.i++
					return out, s.makeErrorToken(start, s.i, DiagnosticInvalidByte, "invalid UTF-8 byte")
				}
			}
			return out, nil
		}
	}
	return out, nil
}

func (s *scanner) scanToken() Token {
	start := s.i
	b := s.src[s.i]

	switch {
	case isDigit(b):
		if tok, ok := s.scanDate(); ok {
			return tok
		}
		return s.scanNumber()
	case b == '.' && isDigit(s.peekByte(1)):
		return s.scanNumber()
	case b >= 'A' && b <= 'Z':
		return s.scanCapitalized()
	case b >= 'a' && b <= 'z':
		return s.scanLowercase()
	case b == '"':
		return s.scanString()
	case b == '#' || b == '^':
		s.i++
		for !s.eof() && isTagPart(s.src[s.i]) {
			s.i++
		}
		if s.i == start+1 {
			return *s.makeErrorToken(start, s.i, DiagnosticInvalidTagOrLink, fmt.Sprintf("empty %q reference", b))
		}
		if b == '#' {
			return Token{Kind: TokenTag, Span: span(start, s.i)}
		}
		return Token{Kind: TokenLink, Span: span(start, s.i)}
	case b >= utf8.RuneSelf:
		r, size := utf8.DecodeRune(s.src[s.i:])
		if r == utf8.RuneError && size == 1 {
			s.i++
			return *s.makeErrorToken(start, s.i, DiagnosticInvalidByte, "invalid UTF-8 byte")
		}
		s.i += size
		return *s.makeErrorToken(start, s.i, DiagnosticUnknownCharacter, fmt.Sprintf("unexpected character %q", r))
	}

	s.i++
	kind := TokenError
	switch b {
	case '(':
		kind = TokenLParen
	case ')':
		kind = TokenRParen
	case '{':
		kind = TokenLCurl
		if s.peekByte(0) == '{' {
			s.i++
			kind = TokenLDoubleCurl
		}
	case '}':
		kind = TokenRCurl
		if s.peekByte(0) == '}' {
			s.i++
			kind = TokenRDoubleCurl
		}
	case '@':
		kind = TokenAt
		if s.peekByte(0) == '@' {
			s.i++
			kind = TokenAtAt
		}
	case '+':
		kind = TokenPlus
	case '-':
		kind = TokenMinus
	case '*':
		kind = TokenStar
	case '/':
		kind = TokenSlash
	case ',':
		kind = TokenComma
	case '~':
		kind = TokenTilde
	case '!', '&', '?', '%':
		kind = TokenFlag
	}
	if kind == TokenError {
		return *s.makeErrorToken(start, s.i, DiagnosticUnknownCharacter, fmt.Sprintf("unknown character %q", b))
	}
	return Token{Kind: kind, Span: span(start, s.i)}
}

// scanDate matches YYYY[-/]M[-/]D. Out-of-range fields still yield a Date
// token, flagged as malformed.
func (s *scanner) scanDate() (Token, bool) {
	start := s.i
	j := start
	for j < len(s.src) && j-start < 4 && isDigit(s.src[j]) {
		j++
	}
	if j-start != 4 || j >= len(s.src) || (s.src[j] != '-' && s.src[j] != '/') {
		return Token{}, false
	}
	sep := s.src[j]
	month, j, ok := s.digitRun(j + 1)
	if !ok || j >= len(s.src) || s.src[j] != sep {
		return Token{}, false
	}
	day, j, ok := s.digitRun(j + 1)
	if !ok {
		return Token{}, false
	}
	s.i = j
	if !validDateField(month, 12) || !validDateField(day, 31) {
		return *s.makeErrorToken(start, s.i, DiagnosticInvalidDate, fmt.Sprintf("invalid date %q", s.src[start:s.i])), true
	}
	return Token{Kind: TokenDate, Span: span(start, s.i)}, true
}

func (s *scanner) digitRun(from int) ([]byte, int, bool) {
	j := from
	for j < len(s.src) && isDigit(s.src[j]) {
		j++
	}
	return s.src[from:j], j, j > from
}

func validDateField(digits []byte, limit int) bool {
	if len(digits) > 2 {
		return false
	}
	v := 0
	for _, d := range digits {
		v = v*10 + int(d-'0')
	}
	return v >= 1 && v <= limit
}

func (s *scanner) scanNumber() Token {
	start := s.i
	for !s.eof() && (isDigit(s.src[s.i]) || (s.src[s.i] == ',' && isDigit(s.peekByte(1)))) {
		s.i++
	}
	if s.peekByte(0) == '.' {
		s.i++
		for !s.eof() && isDigit(s.src[s.i]) {
			s.i++
		}
	}
	return Token{Kind: TokenNumber, Span: span(start, s.i)}
}

func (s *scanner) scanCapitalized() Token {
	start := s.i
	for !s.eof() && isAccountPart(s.src[s.i]) {
		s.i++
	}
	if s.peekByte(0) == ':' {
		for s.peekByte(0) == ':' {
			s.i++
			compStart := s.i
			for !s.eof() && isAccountPart(s.src[s.i]) {
				s.i++
			}
			if s.i == compStart {
				return *s.makeErrorToken(start, s.i, DiagnosticMalformedAccountRef, "empty account component")
			}
		}
		return Token{Kind: TokenAccount, Span: span(start, s.i)}
	}

	for !s.eof() && isCurrencyPart(s.src[s.i]) {
		s.i++
	}
	word := s.src[start:s.i]
	switch string(word) {
	case "TRUE", "FALSE":
		return Token{Kind: TokenBool, Span: span(start, s.i)}
	}
	if isCurrency(word) {
		return Token{Kind: TokenCurrency, Span: span(start, s.i)}
	}
	return Token{Kind: TokenIdentifier, Span: span(start, s.i)}
}

func (s *scanner) scanLowercase() Token {
	start := s.i
	for !s.eof() && isIdentPart(s.src[s.i]) {
		s.i++
	}
	if s.peekByte(0) == ':' && !isAccountPart(s.peekByte(1)) {
		s.i++
		return Token{Kind: TokenKey, Span: span(start, s.i)}
	}
	if kind, ok := keywordKinds[string(s.src[start:s.i])]; ok {
		return Token{Kind: kind, Span: span(start, s.i)}
	}
	return Token{Kind: TokenIdentifier, Span: span(start, s.i)}
}

func (s *scanner) scanString() Token {
	start := s.i
	s.i++
	for !s.eof() {
		switch s.src[s.i] {
		case '"':
			s.i++
			return Token{Kind: TokenString, Span: span(start, s.i)}
		case '\\':
			s.i += 2
			if s.i > len(s.src) {
				s.i = len(s.src)
			}
		default:
			s.i++
		}
	}
	return *s.makeErrorToken(start, s.i, DiagnosticUnterminatedString, "unterminated string literal")
}

func (s *scanner) makeErrorToken(start, end int, code DiagnosticCode, msg string) *Token {
	sp := span(start, end)
	s.diagnostics = append(s.diagnostics, Diagnostic{Code: code, Message: msg, Span: sp})
	return &Token{Kind: TokenError, Span: sp, Flags: TokenFlagMalformed}
}

func (s *scanner) eof() bool {
	return s.i >= len(s.src)
}

func (s *scanner) peekByte(delta int) byte {
	j := s.i + delta
	if j < 0 || j >= len(s.src) {
		return 0
	}
	return s.src[j]
}

func span(start, end int) text.Span {
	return text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(end)}
}

func isHorizontalSpace(b byte) bool { return b == ' ' || b == '\t' }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

func isLower(b byte) bool { return b >= 'a' && b <= 'z' }

func isIdentPart(b byte) bool {
	return isLower(b) || isUpper(b) || isDigit(b) || b == '_' || b == '-'
}

// isAccountPart accepts non-ASCII bytes so accounts may use any script.
func isAccountPart(b byte) bool {
	return isLower(b) || isUpper(b) || isDigit(b) || b == '-' || b >= utf8.RuneSelf
}

func isCurrencyPart(b byte) bool {
	return isUpper(b) || isDigit(b) || b == '\'' || b == '.' || b == '_' || b == '-' || isLower(b)
}

func isCurrency(word []byte) bool {
	if len(word) == 0 || len(word) > 24 || !isUpper(word[0]) {
		return false
	}
	last := word[len(word)-1]
	if !isUpper(last) && !isDigit(last) {
		return false
	}
	for _, b := range word {
		if isLower(b) {
			return false
		}
	}
	return true
}

func isTagPart(b byte) bool {
	return isLower(b) || isUpper(b) || isDigit(b) || b == '-' || b == '_' || b == '/' || b == '.'
}
