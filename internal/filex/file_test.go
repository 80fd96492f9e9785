package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	got, err := EnsureDir("assets", 0o700)
	require.NoError(t, err)

	want, err := filepath.Abs(filepath.Join(tmp, "assets"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	fi, err := os.Stat(want)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	tmp := t.TempDir()

	first, err := EnsureDir(filepath.Join(tmp, "a", "b"), 0o700)
	require.NoError(t, err)

	second, err := EnsureDir(filepath.Join(tmp, "a", "b"), 0o700)
	require.NoError(t, err)

	require.Equal(t, first, second)
	fi, err := os.Stat(second)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "assets")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))

	_, err := EnsureDir(p, 0o700)
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestWriteAtomic(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "out.png")

	require.NoError(t, WriteAtomic(p, []byte("first"), 0o600))
	require.NoError(t, WriteAtomic(p, []byte("second"), 0o600))

	got, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))

	if runtime.GOOS != "windows" {
		fi, err := os.Stat(p)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	}

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteAtomic_MissingDir(t *testing.T) {
	err := WriteAtomic(filepath.Join(t.TempDir(), "nope", "out.png"), []byte("x"), 0o600)
	require.Error(t, err)
}

func TestWriteAtomic_RelativePath(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	require.NoError(t, WriteAtomic("rel.bin", []byte("x"), 0o600))
	require.FileExists(t, filepath.Join(tmp, "rel.bin"))
}
