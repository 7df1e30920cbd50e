// Package ledgergrammar locates the ledger grammar wasm artifact and its
// checksum on disk.
package ledgergrammar

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/engine/wasm"
)

const (
	// EnvPath overrides the artifact location.
	EnvPath = "LEDGERWEAVER_GRAMMAR"
	// FileName is the artifact name searched for next to the executable.
	FileName = "ledger.wasm"
	// ChecksumExt is appended to the artifact path to find its checksum file.
	ChecksumExt = ".sha256"
)

var (
	ErrNotFound        = errors.New("ledger grammar artifact not found")
	ErrMissingChecksum = errors.New("ledger grammar checksum missing")
)

// Artifact is a grammar module read from disk.
type Artifact struct {
	Path   string
	Module []byte
	SHA256 string
}

var executablePath = os.Executable

// Candidates lists the locations searched, in order.
func Candidates(explicit string) []string {
	var out []string
	if explicit != "" {
		out = append(out, explicit)
	}
	if env := os.Getenv(EnvPath); env != "" {
		out = append(out, env)
	}
	if exe, err := executablePath(); err == nil {
		dir := filepath.Dir(exe)
		out = append(out,
			filepath.Join(dir, FileName),
			filepath.Join(dir, "..", "share", "ledgerweaver", FileName),
		)
	}
	if data, ok := os.LookupEnv("XDG_DATA_HOME"); ok && data != "" {
		out = append(out, filepath.Join(data, "ledgerweaver", FileName))
	}
	return out
}

// Locate returns the first existing candidate path. An explicit path that
// does not exist is an error rather than a reason to keep searching.
func Locate(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return explicit, nil
	}
	for _, p := range Candidates("") {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", ErrNotFound
}

// Read loads the artifact at path. want, when empty, is read from the
// checksum file beside the artifact in sha256sum format.
func Read(path, want string) (Artifact, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read grammar artifact: %w", err)
	}
	if want == "" {
		raw, err := os.ReadFile(path + ChecksumExt)
		if err != nil {
			return Artifact{}, fmt.Errorf("%w: %w", ErrMissingChecksum, err)
		}
		fields := strings.Fields(string(raw))
		if len(fields) == 0 {
			return Artifact{}, fmt.Errorf("%w: %s is empty", ErrMissingChecksum, path+ChecksumExt)
		}
		want = fields[0]
	}
	return Artifact{Path: path, Module: module, SHA256: want}, nil
}

// Loader locates, reads and instantiates the grammar on first use.
func Loader(path, sha string, memoryLimitPages uint32) engine.Loader {
	return func(ctx context.Context) (engine.Engine, error) {
		found, err := Locate(path)
		if err != nil {
			return nil, err
		}
		art, err := Read(found, sha)
		if err != nil {
			return nil, err
		}
		return wasm.Load(ctx, wasm.Config{
			Name:             "ledger-wasm",
			Module:           art.Module,
			SHA256:           art.SHA256,
			MemoryLimitPages: memoryLimitPages,
		})
	}
}

func setExecutablePathForTesting(fn func() (string, error)) func() {
	prev := executablePath
	executablePath = fn
	return func() { executablePath = prev }
}
