package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunWritesThenVerifiesChecksum(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.wasm")
	if err := os.WriteFile(path, []byte("\x00asm\x01\x00\x00\x00"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	if err := run([]string{"--grammar", path}, &out); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path + ".sha256")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasSuffix(string(raw), "  ledger.wasm\n") || len(strings.Fields(string(raw))[0]) != 64 {
		t.Fatalf("checksum file = %q", raw)
	}

	out.Reset()
	if err := run([]string{"--grammar", path, "--check"}, &out); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out.String(), "OK") {
		t.Fatalf("stdout = %q", out.String())
	}

	if err := os.WriteFile(path, []byte("\x00asm\x01\x00\x00\x00\x00"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := run([]string{"--grammar", path, "--check"}, &out); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("check after modification: err = %v", err)
	}
}

func TestRunRequiresGrammar(t *testing.T) {
	t.Parallel()

	if err := run(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected missing --grammar error")
	}
}
