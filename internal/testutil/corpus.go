package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Sample is a named journal fixture.
type Sample struct {
	Name   string
	Source []byte
}

// CorpusFiles returns sorted journal files under testdata/corpus/<setName>.
func CorpusFiles(setName string) ([]string, error) {
	root, err := RepoRoot()
	if err != nil {
		return nil, err
	}
	setDir := filepath.Join(root, "testdata", "corpus", setName)
	entries, err := os.ReadDir(setDir)
	if err != nil {
		return nil, fmt.Errorf("read corpus set %q: %w", setName, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != JournalExt {
			continue
		}
		out = append(out, filepath.Join(setDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// LedgerSamples loads every journal from the valid and invalid corpus sets.
func LedgerSamples(t testing.TB) []Sample {
	t.Helper()

	var out []Sample
	for _, set := range []string{"valid", "invalid"} {
		files, err := CorpusFiles(set)
		if err != nil {
			t.Fatalf("CorpusFiles(%s): %v", set, err)
		}
		for _, path := range files {
			out = append(out, Sample{
				Name:   set + "/" + strings.TrimSuffix(filepath.Base(path), JournalExt),
				Source: ReadFile(t, path),
			})
		}
	}
	return out
}
