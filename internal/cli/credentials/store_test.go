package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreOperations(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	store, err := NewStore()
	require.NoError(t, err)
	assert.NotNil(t, store)

	expectedPath := filepath.Join(tmpDir, DefaultConfigDir, ConfigFileName)
	assert.Equal(t, expectedPath, store.ConfigPath())

	// Empty state
	_, err = store.Token("http://localhost:5001")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, store.Servers())

	// Save a token
	require.NoError(t, store.SetToken("http://localhost:5001", "secret-token"))

	token, err := store.Token("http://localhost:5001")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	// Trailing slashes hit the same entry
	token, err = store.Token("http://localhost:5001/")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	// Second server
	require.NoError(t, store.SetToken("http://other:5001/", "other-token"))
	assert.Equal(t, []string{"http://localhost:5001", "http://other:5001"}, store.Servers())

	// Tokens survive reopening the store
	store2, err := NewStore()
	require.NoError(t, err)
	token, err = store2.Token("http://localhost:5001")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	// Credentials file is owner-only
	info, err := os.Stat(expectedPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePermissions), info.Mode().Perm())

	// Delete
	require.NoError(t, store2.DeleteToken("http://localhost:5001"))
	_, err = store2.Token("http://localhost:5001")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.ErrorIs(t, store2.DeleteToken("http://localhost:5001"), ErrNotLoggedIn)
}

func TestReadLocalToken(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	assert.Equal(t, "", ReadLocalToken())

	require.NoError(t, os.WriteFile(LocalTokenFile, []byte("local-token\n"), 0600))
	assert.Equal(t, "local-token", ReadLocalToken())
}

func TestResolveToken(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv(EnvToken, "")
	t.Chdir(t.TempDir())

	server := "http://localhost:5001"

	// Nothing configured: anonymous
	assert.Equal(t, "", ResolveToken("", server))

	// Saved credentials are the last resort
	store, err := NewStore()
	require.NoError(t, err)
	require.NoError(t, store.SetToken(server, "saved-token"))
	assert.Equal(t, "saved-token", ResolveToken("", server))

	// Local file beats saved credentials
	require.NoError(t, os.WriteFile(LocalTokenFile, []byte("file-token"), 0600))
	assert.Equal(t, "file-token", ResolveToken("", server))

	// Environment beats the file
	t.Setenv(EnvToken, "env-token")
	assert.Equal(t, "env-token", ResolveToken("", server))

	// The flag beats everything
	assert.Equal(t, "flag-token", ResolveToken("flag-token", server))
}
