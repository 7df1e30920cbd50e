package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	unformatted = "2024-01-15 * \"Lunch\"\n" +
		"    Expenses:Food 3.50 EUR\n" +
		"  Assets:Cash    -3.50 EUR\n"
	formatted = "2024-01-15 * \"Lunch\"\n" +
		"  Expenses:Food          3.50 EUR\n" +
		"  Assets:Cash           -3.50 EUR\n"
)

// testArgs writes a config selecting the reference engine and returns the
// flags that load it.
func testArgs(t *testing.T, args ...string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerweaver.toml")
	cfg := "[engine]\nkind = \"reference\"\n\n[format]\ncurrency_column = 30\n\n[index]\npath = \"off\"\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return append([]string{"--config", path}, args...)
}

func writeJournal(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunRejectsInvalidFlagCombos(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		args []string
		want string
	}{
		{[]string{"--stdin", "--write"}, "--write and --stdin"},
		{[]string{"--check", "--write", "x.beancount"}, "--check and --write"},
		{[]string{}, "at least one input file"},
		{[]string{"a.beancount", "b.beancount"}, "requires --write or --check"},
	} {
		var out, errb bytes.Buffer
		code := run(context.Background(), strings.NewReader(""), &out, &errb, tc.args)
		if code != exitInternal {
			t.Fatalf("%v: exit code = %d, want %d", tc.args, code, exitInternal)
		}
		if !strings.Contains(errb.String(), tc.want) {
			t.Fatalf("%v: stderr missing %q: %q", tc.args, tc.want, errb.String())
		}
	}
}

func TestRunFormatsStdinToStdout(t *testing.T) {
	t.Parallel()

	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader(unformatted), &out, &errb, testArgs(t, "--stdin"))
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr=%q", code, exitOK, errb.String())
	}
	if out.String() != formatted {
		t.Fatalf("stdout = %q, want %q", out.String(), formatted)
	}
}

func TestRunCurrencyColumnFlagOverridesConfig(t *testing.T) {
	t.Parallel()

	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader(unformatted), &out, &errb, testArgs(t, "--stdin", "--currency-column", "40"))
	if code != exitOK {
		t.Fatalf("exit code = %d; stderr=%q", code, errb.String())
	}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n")[1:] {
		if got := strings.Index(line, "EUR"); got != 40 {
			t.Fatalf("currency at column %d in %q, want 40", got, line)
		}
	}
}

func TestRunCheckExitCodes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dirty := writeJournal(t, dir, "dirty.beancount", unformatted)
	clean := writeJournal(t, dir, "clean.beancount", formatted)

	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader(""), &out, &errb, testArgs(t, "--check", clean))
	if code != exitOK {
		t.Fatalf("clean: exit code = %d, want %d; stderr=%q", code, exitOK, errb.String())
	}

	errb.Reset()
	code = run(context.Background(), strings.NewReader(""), &out, &errb, testArgs(t, "--check", clean, dirty))
	if code != exitCheck {
		t.Fatalf("dirty: exit code = %d, want %d", code, exitCheck)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected stdout in --check: %q", out.String())
	}
	if !strings.Contains(errb.String(), "dirty.beancount needs formatting") || strings.Contains(errb.String(), "clean.beancount") {
		t.Fatalf("unexpected check report: %q", errb.String())
	}
}

func TestRunWriteUpdatesFilesInPlace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := []string{
		writeJournal(t, dir, "a.beancount", unformatted),
		writeJournal(t, dir, "b.beancount", unformatted),
	}

	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader(""), &out, &errb, testArgs(t, append([]string{"-w"}, paths...)...))
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr=%q", code, exitOK, errb.String())
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected stdout for --write: %q", out.String())
	}
	for _, path := range paths {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(got) != formatted {
			t.Fatalf("%s = %q, want %q", path, got, formatted)
		}
	}
}

func TestRunReturnsUnsafeExitCodeAndDiagnostics(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := "2024-01-01 open\n  bogus line\n"
	path := writeJournal(t, dir, "broken.beancount", src)

	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader(""), &out, &errb, testArgs(t, "-w", path))
	if code != exitUnsafe {
		t.Fatalf("exit code = %d, want %d", code, exitUnsafe)
	}
	stderr := errb.String()
	if !strings.Contains(stderr, "broken.beancount:1:") || !strings.Contains(stderr, "SYNTAX_ERROR") {
		t.Fatalf("stderr missing diagnostic header: %q", stderr)
	}
	if !strings.Contains(stderr, "^") {
		t.Fatalf("stderr missing caret indicator: %q", stderr)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != src {
		t.Fatalf("unsafe input rewritten: %q", got)
	}
}

func TestRunRangeFormatsSelectedEntry(t *testing.T) {
	t.Parallel()

	src := "2024-01-14 * \"Keep\"\n    Expenses:Food 1 EUR\n  Assets:Cash\n\n" + unformatted
	start := strings.Index(src, "Lunch")
	path := writeJournal(t, t.TempDir(), "x.beancount", src)

	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader(""), &out, &errb, testArgs(t, "--range", fmt.Sprintf("%d:%d", start, start+5), path))
	if code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr=%q", code, exitOK, errb.String())
	}
	want := "2024-01-14 * \"Keep\"\n    Expenses:Food 1 EUR\n  Assets:Cash\n\n" + formatted
	if out.String() != want {
		t.Fatalf("stdout = %q, want %q", out.String(), want)
	}
}

func TestRunDebugTreeDumpsSexp(t *testing.T) {
	t.Parallel()

	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader("2024-01-01 open Assets:Cash\n"), &out, &errb, testArgs(t, "--stdin", "--debug-tree"))
	if code != exitOK {
		t.Fatalf("exit code = %d; stderr=%q", code, errb.String())
	}
	if !strings.HasPrefix(out.String(), "(source_file (open (date) (keyword) (account)))\n") {
		t.Fatalf("debug tree output missing: %q", out.String())
	}
}

func TestRunDegradedEngineRefusesToFormat(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "ledger.wasm")
	var out, errb bytes.Buffer
	code := run(context.Background(), strings.NewReader(formatted), &out, &errb,
		testArgs(t, "--stdin", "--engine", "wasm", "--grammar", missing))
	if code != exitUnsafe {
		t.Fatalf("exit code = %d, want %d", code, exitUnsafe)
	}
	if !strings.Contains(errb.String(), "ENGINE_UNAVAILABLE") {
		t.Fatalf("stderr missing engine diagnostic: %q", errb.String())
	}
}

func TestParseRangeFlag(t *testing.T) {
	t.Parallel()

	got, err := parseRangeFlag("12:34")
	if err != nil {
		t.Fatalf("parseRangeFlag: %v", err)
	}
	if got.Start != 12 || got.End != 34 {
		t.Fatalf("range = %s, want [12,34)", got)
	}
	for _, bad := range []string{"bad", "x:1", "1:y", "5:2"} {
		if _, err := parseRangeFlag(bad); err == nil {
			t.Fatalf("parseRangeFlag(%q) succeeded, want error", bad)
		}
	}
}
