package format

import (
	"context"
	"strings"
	"testing"

	"github.com/ledgerweaver/ledgerweaver/internal/text"
)

const rangeSource = "2024-01-01 open Assets:Cash\n" +
	"\n" +
	"2024-01-15 * \"Lunch\"\n" +
	"    Expenses:Food 3.50 EUR\n" +
	"  Assets:Cash -3.50 EUR\n" +
	"\n" +
	"2024-02-01   open   Assets:Bank\n"

func spanOf(t *testing.T, src, needle string) text.Span {
	t.Helper()
	i := strings.Index(src, needle)
	if i < 0 {
		t.Fatalf("%q not found", needle)
	}
	return text.Span{Start: text.ByteOffset(i), End: text.ByteOffset(i + len(needle))}
}

func TestRangeFormatsOnlyTouchedEntry(t *testing.T) {
	t.Parallel()

	src := []byte(rangeSource)
	tree := parseLedger(t, src)
	res, err := Range(context.Background(), tree, src, spanOf(t, rangeSource, "Food"), narrow)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(res.Edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(res.Edits))
	}

	wantSpan := text.Span{
		Start: spanOf(t, rangeSource, "2024-01-15").Start,
		End:   spanOf(t, rangeSource, "-3.50 EUR").End,
	}
	if res.Edits[0].Span != wantSpan {
		t.Fatalf("edit span = %s, want %s", res.Edits[0].Span, wantSpan)
	}

	out, err := text.ApplyEdits(src, res.Edits)
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	want := "2024-01-01 open Assets:Cash\n" +
		"\n" +
		"2024-01-15 * \"Lunch\"\n" +
		"  Expenses:Food          3.50 EUR\n" +
		"  Assets:Cash           -3.50 EUR\n" +
		"\n" +
		"2024-02-01   open   Assets:Bank\n"
	if string(out) != want {
		t.Fatalf("output mismatch\n--- got ---\n%s\n--- want ---\n%s", out, want)
	}
}

func TestRangeSpanningEntriesWidensToBoth(t *testing.T) {
	t.Parallel()

	src := []byte(rangeSource)
	tree := parseLedger(t, src)
	r := text.Span{
		Start: spanOf(t, rangeSource, "-3.50").Start,
		End:   spanOf(t, rangeSource, "Bank").End,
	}
	res, err := Range(context.Background(), tree, src, r, narrow)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(res.Edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(res.Edits))
	}
	got := string(res.Edits[0].NewText)
	if !strings.HasSuffix(got, "\n\n2024-02-01 open Assets:Bank") {
		t.Fatalf("unexpected replacement %q", got)
	}
	if int(res.Edits[0].Span.End) != len(src)-1 {
		t.Fatalf("edit should stop before the final newline, got %s", res.Edits[0].Span)
	}
}

func TestRangeNoEdits(t *testing.T) {
	t.Parallel()

	src := []byte(rangeSource)
	tree := parseLedger(t, src)

	blank := text.ByteOffset(strings.Index(rangeSource, "\n\n") + 1)
	res, err := Range(context.Background(), tree, src, text.Span{Start: blank, End: blank}, narrow)
	if err != nil {
		t.Fatalf("Range(blank): %v", err)
	}
	if len(res.Edits) != 0 {
		t.Fatalf("expected no edits on a blank line, got %+v", res.Edits)
	}

	res, err = Range(context.Background(), tree, src, spanOf(t, rangeSource, "Assets:Cash\n"), narrow)
	if err != nil {
		t.Fatalf("Range(formatted): %v", err)
	}
	if len(res.Edits) != 0 {
		t.Fatalf("expected no edits for formatted entry, got %+v", res.Edits)
	}
}

func TestRangeRejectsOutOfBounds(t *testing.T) {
	t.Parallel()

	src := []byte(rangeSource)
	tree := parseLedger(t, src)
	_, err := Range(context.Background(), tree, src, text.Span{Start: 0, End: text.ByteOffset(len(src) + 1)}, Options{})
	if err == nil || IsErrUnsafeToFormat(err) {
		t.Fatalf("expected bounds error, got %v", err)
	}
}

func TestRangeKeepsBOMOutsideEdit(t *testing.T) {
	t.Parallel()

	src := []byte(utf8BOM + "2024-01-01   open Assets:Cash\n")
	tree := parseLedger(t, src)
	res, err := Range(context.Background(), tree, src, text.Span{Start: 5, End: 5}, Options{})
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(res.Edits) != 1 || res.Edits[0].Span.Start != text.ByteOffset(len(utf8BOM)) {
		t.Fatalf("unexpected edits %+v", res.Edits)
	}
	if got := string(res.Edits[0].NewText); got != "2024-01-01 open Assets:Cash" {
		t.Fatalf("replacement = %q", got)
	}
}
