package lexer

import (
	"testing"

	"github.com/ledgerweaver/ledgerweaver/internal/testutil"
)

func FuzzLex(f *testing.F) {
	for _, s := range [][]byte{
		nil,
		[]byte("2024-01-01 open Assets:Cash USD\n"),
		[]byte("2024-01-02 * \"Payee\" \"Narration\"\n  Expenses:Food  (1 + 2) USD\n  Assets:Cash\n"),
		[]byte("2024-01-001 open Assets:Cash"),
		[]byte("\"unterminated\n"),
		{0xff, 0xfe, 0xfd},
	} {
		f.Add(s)
	}
	for _, sample := range testutil.LedgerSamples(f) {
		f.Add(sample.Source)
	}

	f.Fuzz(func(t *testing.T, src []byte) {
		if len(src) > 512*1024 {
			t.Skip()
		}

		res := Lex(src)
		if len(res.Tokens) == 0 || res.Tokens[len(res.Tokens)-1].Kind != TokenEOF {
			t.Fatal("token stream must end with EOF")
		}

		// Tokens plus trivia tile the input without gaps.
		cursor := 0
		for i, tok := range res.Tokens {
			for _, tr := range tok.Leading {
				if int(tr.Span.Start) != cursor {
					t.Fatalf("token[%d] trivia starts at %d, want %d", i, tr.Span.Start, cursor)
				}
				cursor = int(tr.Span.End)
			}
			if int(tok.Span.Start) != cursor || int(tok.Span.End) > len(src) || !tok.Span.IsValid() {
				t.Fatalf("token[%d] span %s does not continue at %d", i, tok.Span, cursor)
			}
			cursor = int(tok.Span.End)
		}
		if cursor != len(src) {
			t.Fatalf("stream covers %d bytes, want %d", cursor, len(src))
		}
	})
}
