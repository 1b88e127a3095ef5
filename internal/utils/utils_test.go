package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/.cloudsync", filepath.Join(home, ".cloudsync")},
		{"/tmp/a/../b", "/tmp/b"},
		{"rel/dir", filepath.Join(cwd, "rel/dir")},
		{"~user/x", filepath.Join(cwd, "~user/x")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ResolvePath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = ResolvePath("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestEnsureParentAndFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.json")
	assert.False(t, FileExists(path))

	require.NoError(t, EnsureParent(path))
	assert.DirExists(t, filepath.Dir(path))
	assert.False(t, FileExists(filepath.Dir(path)))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	assert.True(t, FileExists(path))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "delta.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "*****", MaskSecret(""))
	assert.Equal(t, "*****", MaskSecret("abcd"))
	assert.Equal(t, "SG.x*****", MaskSecret("SG.xyz-secret"))
}
