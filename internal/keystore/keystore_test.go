package keystore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "tmdb_key.json"))

	_, err := s.Get()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set("abc123"))
	key, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)

	require.NoError(t, s.Delete())
	_, err = s.Get()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmdb_key.json")
	s := NewFileStore(path)
	require.NoError(t, s.Set("abc123"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestResolveMigratesConfigKey(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "tmdb_key.json"))

	key, err := Resolve(s, "from-env")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	// The env value is now persisted; later runs ignore a changed env.
	key, err = Resolve(s, "rotated")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}

func TestResolveWithoutAnyKey(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "tmdb_key.json"))

	_, err := Resolve(s, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
