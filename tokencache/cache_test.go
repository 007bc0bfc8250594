package tokencache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaches(t *testing.T) {
	file, err := NewFile(filepath.Join(t.TempDir(), "tokens"))
	require.NoError(t, err)

	caches := map[string]Cache{
		"memory": NewMemory(),
		"file":   file,
	}

	for name, cache := range caches {
		t.Run(name, func(t *testing.T) {
			_, err := cache.Load("primary")
			assert.ErrorIs(t, err, ErrNotFound)

			token := Token{Value: "tok-1", Subject: "user-1", SavedAt: time.Unix(1700000000, 0).UTC()}
			require.NoError(t, cache.Save("primary", token))

			got, err := cache.Load("primary")
			require.NoError(t, err)
			assert.Equal(t, token, got)

			_, err = cache.Load("federated")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, cache.Clear("primary"))
			require.NoError(t, cache.Clear("primary"))
			_, err = cache.Load("primary")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFile_PermissionsAndNames(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, cache.Save("federated", Token{Value: "id-token"}))
	info, err := os.Stat(filepath.Join(dir, "federated.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Error(t, cache.Save("../escape", Token{Value: "x"}))
	_, err = cache.Load("../escape")
	assert.Error(t, err)

	_, err = NewFile("")
	assert.Error(t, err)
}

func TestFile_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "primary.json"), []byte("{not json"), 0o600))
	_, err = cache.Load("primary")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestToken_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, Token{}.Expired(now))
	assert.False(t, Token{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	assert.True(t, Token{ExpiresAt: now}.Expired(now))
}
