package monitors

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	ids, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLoadParsesIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitors.txt")
	require.NoError(t, os.WriteFile(path, []byte("# observers\n42\n\n  99  \n"), 0o644))

	ids, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int32{42, 99}, ids)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitors.txt")
	require.NoError(t, os.WriteFile(path, []byte("42\nnot-a-number\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
