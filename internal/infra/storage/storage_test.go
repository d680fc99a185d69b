package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile_CreatesDirAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), DefaultFilePerm))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), DefaultFilePerm))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFilePerm, info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestEnsureDir_NoDirComponent(t *testing.T) {
	assert.NoError(t, EnsureDir("file.txt"))
}
