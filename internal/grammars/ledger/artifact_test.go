package ledgergrammar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgerweaver/ledgerweaver/internal/engine"
	"github.com/ledgerweaver/ledgerweaver/internal/engine/wasm"
)

func writeArtifact(t *testing.T, dir string, module []byte, withChecksum bool) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, module, 0o600))
	if withChecksum {
		sum := sha256.Sum256(module)
		line := hex.EncodeToString(sum[:]) + "  " + FileName + "\n"
		require.NoError(t, os.WriteFile(path+ChecksumExt, []byte(line), 0o600))
	}
	return path
}

func TestReadUsesChecksumFile(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte("module"), true)
	art, err := Read(path, "")
	require.NoError(t, err)
	require.Equal(t, []byte("module"), art.Module)
	require.Len(t, art.SHA256, 64)

	art, err = Read(path, "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", art.SHA256)
}

func TestReadRequiresChecksum(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte("module"), false)
	_, err := Read(path, "")
	require.ErrorIs(t, err, ErrMissingChecksum)

	require.NoError(t, os.WriteFile(path+ChecksumExt, []byte("  \n"), 0o600))
	_, err = Read(path, "")
	require.ErrorIs(t, err, ErrMissingChecksum)
}

func TestLocateSearchOrder(t *testing.T) {
	exeDir := t.TempDir()
	envDir := t.TempDir()
	restore := setExecutablePathForTesting(func() (string, error) {
		return filepath.Join(exeDir, "ledgerls"), nil
	})
	defer restore()
	t.Setenv("XDG_DATA_HOME", "")

	t.Setenv(EnvPath, "")
	_, err := Locate("")
	require.ErrorIs(t, err, ErrNotFound)

	exePath := writeArtifact(t, exeDir, []byte("a"), true)
	got, err := Locate("")
	require.NoError(t, err)
	require.Equal(t, exePath, got)

	envPath := writeArtifact(t, envDir, []byte("b"), true)
	t.Setenv(EnvPath, envPath)
	got, err = Locate("")
	require.NoError(t, err)
	require.Equal(t, envPath, got)

	_, err = Locate(filepath.Join(envDir, "missing.wasm"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoaderFailureMakesHandleUnavailable(t *testing.T) {
	t.Parallel()

	path := writeArtifact(t, t.TempDir(), []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}, true)
	h := engine.NewHandle(Loader(path, "", 0))
	_, err := h.Engine(context.Background())
	require.ErrorIs(t, err, engine.ErrUnavailable)
	require.ErrorIs(t, err, wasm.ErrABIMismatch)

	h = engine.NewHandle(Loader(path, "0000", 0))
	_, err = h.Engine(context.Background())
	require.ErrorIs(t, err, wasm.ErrChecksumMismatch)
}
