// Package lexer provides a lossless token/trivia lexer for plain-text ledger
// journals (beancount dialect).
package lexer

import (
	"fmt"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

// TokenKind identifies the syntactic category of a token.
type TokenKind uint16

// TokenKind values produced by the ledger lexer.
const (
	TokenError TokenKind = iota
	TokenEOF
	TokenDate
	TokenAccount
	TokenCurrency
	TokenNumber
	TokenString
	TokenTag
	TokenLink
	TokenKey
	TokenBool
	TokenIdentifier
	TokenFlag

	TokenKwTxn
	TokenKwOpen
	TokenKwClose
	TokenKwBalance
	TokenKwPad
	TokenKwNote
	TokenKwDocument
	TokenKwCommodity
	TokenKwPrice
	TokenKwEvent
	TokenKwQuery
	TokenKwCustom
	TokenKwOption
	TokenKwInclude
	TokenKwPlugin
	TokenKwPushtag
	TokenKwPoptag

	TokenLParen
	TokenRParen
	TokenLCurl
	TokenRCurl
	TokenLDoubleCurl
	TokenRDoubleCurl
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenComma
	TokenTilde
	TokenAt
	TokenAtAt
)

var tokenKindNames = [...]string{
	TokenError:       "Error",
	TokenEOF:         "EOF",
	TokenDate:        "Date",
	TokenAccount:     "Account",
	TokenCurrency:    "Currency",
	TokenNumber:      "Number",
	TokenString:      "String",
	TokenTag:         "Tag",
	TokenLink:        "Link",
	TokenKey:         "Key",
	TokenBool:        "Bool",
	TokenIdentifier:  "Identifier",
	TokenFlag:        "Flag",
	TokenKwTxn:       "KwTxn",
	TokenKwOpen:      "KwOpen",
	TokenKwClose:     "KwClose",
	TokenKwBalance:   "KwBalance",
	TokenKwPad:       "KwPad",
	TokenKwNote:      "KwNote",
	TokenKwDocument:  "KwDocument",
	TokenKwCommodity: "KwCommodity",
	TokenKwPrice:     "KwPrice",
	TokenKwEvent:     "KwEvent",
	TokenKwQuery:     "KwQuery",
	TokenKwCustom:    "KwCustom",
	TokenKwOption:    "KwOption",
	TokenKwInclude:   "KwInclude",
	TokenKwPlugin:    "KwPlugin",
	TokenKwPushtag:   "KwPushtag",
	TokenKwPoptag:    "KwPoptag",
	TokenLParen:      "LParen",
	TokenRParen:      "RParen",
	TokenLCurl:       "LCurl",
	TokenRCurl:       "RCurl",
	TokenLDoubleCurl: "LDoubleCurl",
	TokenRDoubleCurl: "RDoubleCurl",
	TokenPlus:        "Plus",
	TokenMinus:       "Minus",
	TokenStar:        "Star",
	TokenSlash:       "Slash",
	TokenComma:       "Comma",
	TokenTilde:       "Tilde",
	TokenAt:          "At",
	TokenAtAt:        "AtAt",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) && tokenKindNames[k] != "" {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", k)
}

// IsKeyword reports whether k is a directive keyword.
func (k TokenKind) IsKeyword() bool {
	return k >= TokenKwTxn && k <= TokenKwPoptag
}

// TokenFlags carry metadata about a token.
type TokenFlags uint8

// TokenFlags values.
const (
	TokenFlagMalformed TokenFlags = 1 << iota
	// TokenFlagLineStart marks the first token on a line with no indentation.
	TokenFlagLineStart
	// TokenFlagIndented marks the first token on an indented line.
	TokenFlagIndented
)

// Has reports whether all bits in mask are set.
func (f TokenFlags) Has(mask TokenFlags) bool {
	return f&mask == mask
}

// Token is a lexed token with its span and leading trivia.
type Token struct {
	Kind    TokenKind
	Span    text.Span
	Leading []Trivia
	Flags   TokenFlags
}

// Bytes returns the token bytes, or nil if Span does not fit src.
func (t Token) Bytes(src []byte) []byte {
	return bytesForSpan(src, t.Span)
}

// Keywords lists directive keywords in the order editors should offer them.
var Keywords = []string{
	"open", "close", "balance", "pad", "note", "document", "commodity", "price",
	"event", "query", "custom", "option", "include", "plugin", "pushtag", "poptag", "txn",
}

var keywordKinds = map[string]TokenKind{
	"txn":       TokenKwTxn,
	"open":      TokenKwOpen,
	"close":     TokenKwClose,
	"balance":   TokenKwBalance,
	"pad":       TokenKwPad,
	"note":      TokenKwNote,
	"document":  TokenKwDocument,
	"commodity": TokenKwCommodity,
	"price":     TokenKwPrice,
	"event":     TokenKwEvent,
	"query":     TokenKwQuery,
	"custom":    TokenKwCustom,
	"option":    TokenKwOption,
	"include":   TokenKwInclude,
	"plugin":    TokenKwPlugin,
	"pushtag":   TokenKwPushtag,
	"poptag":    TokenKwPoptag,
}

func bytesForSpan(src []byte, sp text.Span) []byte {
	if !sp.IsValid() || sp.End > text.ByteOffset(len(src)) {
		return nil
	}
	return src[sp.Start:sp.End]
}
