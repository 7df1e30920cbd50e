package lexer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

func TestTokenAndTriviaBytesUseRawSpans(t *testing.T) {
	t.Parallel()

	src := []byte("  USD")
	tr := Trivia{Kind: TriviaWhitespace, Span: text.Span{Start: 0, End: 2}}
	tok := Token{Kind: TokenCurrency, Span: text.Span{Start: 2, End: 5}}

	require.Equal(t, "  ", string(tr.Bytes(src)))
	require.Equal(t, "USD", string(tok.Bytes(src)))
	require.Nil(t, Token{Span: text.Span{Start: 2, End: 9}}.Bytes(src))
}

func TestLexGoldenJournal(t *testing.T) {
	t.Parallel()

	src := []byte(`option "title" "Home" ; main
2024-01-01 open Assets:Cash USD
2024-01-02 * "Cafe" #food ^r1
  Expenses:Food  4.50 USD
  Assets:Cash
`)

	res := Lex(src)
	require.Empty(t, res.Diagnostics)

	want := strings.TrimSpace(`
KwOption("option") bol lead=[]
String("\"title\"") lead=[Whitespace(" ")]
String("\"Home\"") lead=[Whitespace(" ")]
Date("2024-01-01") bol lead=[Whitespace(" "),Comment("; main"),Newline("\n")]
KwOpen("open") lead=[Whitespace(" ")]
Account("Assets:Cash") lead=[Whitespace(" ")]
Currency("USD") lead=[Whitespace(" ")]
Date("2024-01-02") bol lead=[Newline("\n")]
Star("*") lead=[Whitespace(" ")]
String("\"Cafe\"") lead=[Whitespace(" ")]
Tag("#food") lead=[Whitespace(" ")]
Link("^r1") lead=[Whitespace(" ")]
Account("Expenses:Food") indent lead=[Newline("\n"),Whitespace("  ")]
Number("4.50") lead=[Whitespace("  ")]
Currency("USD") lead=[Whitespace(" ")]
Account("Assets:Cash") indent lead=[Newline("\n"),Whitespace("  ")]
EOF("") lead=[Newline("\n")]
`)
	require.Equal(t, want, renderTokens(src, res.Tokens))
}

func TestLexAmountsAndPunctuation(t *testing.T) {
	t.Parallel()

	src := []byte("-1,234.5 (2 + .5) {{10 EUR}} @@ ~ TRUE key: HOOL.A")
	res := Lex(src)
	require.Empty(t, res.Diagnostics)

	var kinds []string
	for _, tok := range res.Tokens {
		kinds = append(kinds, tok.Kind.String())
	}
	require.Equal(t, []string{
		"Minus", "Number", "LParen", "Number", "Plus", "Number", "RParen",
		"LDoubleCurl", "Number", "Currency", "RDoubleCurl", "AtAt", "Tilde",
		"Bool", "Key", "Currency", "EOF",
	}, kinds)
}

func TestLexMalformedInputsEmitErrorTokens(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		src  []byte
		code DiagnosticCode
	}{
		"unterminated string": {src: []byte(`"abc`), code: DiagnosticUnterminatedString},
		"invalid byte":        {src: []byte{0xff}, code: DiagnosticInvalidByte},
		"three digit day":     {src: []byte("2024-01-001 open Assets:Cash"), code: DiagnosticInvalidDate},
		"month thirteen":      {src: []byte("2024-13-01"), code: DiagnosticInvalidDate},
		"empty component":     {src: []byte("Assets::Cash"), code: DiagnosticMalformedAccountRef},
		"bare hash":           {src: []byte("# x"), code: DiagnosticInvalidTagOrLink},
		"unknown character":   {src: []byte("="), code: DiagnosticUnknownCharacter},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			res := Lex(tc.src)
			require.NotEmpty(t, res.Diagnostics)
			require.Equal(t, tc.code, res.Diagnostics[0].Code)
			require.Equal(t, TokenError, res.Tokens[0].Kind)
			require.True(t, res.Tokens[0].Flags.Has(TokenFlagMalformed))
			require.Equal(t, TokenEOF, res.Tokens[len(res.Tokens)-1].Kind)
		})
	}
}

func TestLexDateThenNumberBoundary(t *testing.T) {
	t.Parallel()

	res := Lex([]byte("2024-01-1 2024"))
	require.Equal(t, TokenDate, res.Tokens[0].Kind)
	require.Equal(t, TokenNumber, res.Tokens[1].Kind)
	require.Empty(t, res.Diagnostics)
}

func TestLexNoPanicsOnMalformedSamples(t *testing.T) {
	t.Parallel()

	for _, src := range [][]byte{
		[]byte(`"`),
		[]byte(`"\`),
		[]byte("2024-"),
		[]byte("2024-01-"),
		{0xff, '{', 0xfe},
		[]byte("2024-01-01 * \"x\n  Assets:"),
	} {
		t.Run(fmt.Sprintf("%q", src), func(t *testing.T) {
			t.Parallel()
			res := Lex(src)
			require.Equal(t, TokenEOF, res.Tokens[len(res.Tokens)-1].Kind)
		})
	}
}

func renderTokens(src []byte, tokens []Token) string {
	lines := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		marker := ""
		switch {
		case tok.Flags.Has(TokenFlagLineStart):
			marker = " bol"
		case tok.Flags.Has(TokenFlagIndented):
			marker = " indent"
		}
		lines = append(lines, fmt.Sprintf("%s(%q)%s lead=%s", tok.Kind, tok.Bytes(src), marker, renderLeading(src, tok.Leading)))
	}
	return strings.Join(lines, "\n")
}

func renderLeading(src []byte, trivia []Trivia) string {
	parts := make([]string, 0, len(trivia))
	for _, tr := range trivia {
		parts = append(parts, fmt.Sprintf("%s(%q)", tr.Kind, tr.Bytes(src)))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestLexLeadingBOMIsTrivia(t *testing.T) {
	t.Parallel()

	res := Lex([]byte("\xEF\xBB\xBF2024-01-01 open Assets:Cash\n"))
	require.Empty(t, res.Diagnostics)
	first := res.Tokens[0]
	require.Equal(t, TokenDate, first.Kind)
	require.True(t, first.Flags.Has(TokenFlagLineStart))
	require.Len(t, first.Leading, 1)
	require.Equal(t, TriviaBOM, first.Leading[0].Kind)
	require.Equal(t, text.Span{Start: 0, End: 3}, first.Leading[0].Span)
}
