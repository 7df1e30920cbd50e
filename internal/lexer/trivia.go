package lexer

import (
	"fmt"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// TriviaKind identifies non-token source segments attached as leading trivia.
type TriviaKind uint8

// TriviaKind values.
const (
	TriviaWhitespace TriviaKind = iota
	TriviaNewline
	TriviaComment
	// TriviaBOM is a UTF-8 byte order mark at offset 0.
	TriviaBOM
)

func (k TriviaKind) String() string {
	switch k {
	case TriviaWhitespace:
		return "Whitespace"
	case TriviaNewline:
		return "Newline"
	case TriviaComment:
		return "Comment"
	case TriviaBOM:
		return "BOM"
	default:
		return fmt.Sprintf("TriviaKind(%d)", k)
	}
}

// Trivia is whitespace, a line break, or a ';' comment.
type Trivia struct {
	Kind TriviaKind
	Span text.Span
}

// Bytes returns the trivia bytes, or nil if Span does not fit src.
func (t Trivia) Bytes(src []byte) []byte {
	return bytesForSpan(src, t.Span)
}
