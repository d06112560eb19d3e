package keyring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paths(t *testing.T) (string, string) {
	dir := t.TempDir()
	return filepath.Join(dir, "keyring"), filepath.Join(dir, "master.key")
}

func TestStore_RoundTrip(t *testing.T) {
	krPath, keyPath := paths(t)

	s, err := Open(krPath, keyPath)
	require.NoError(t, err)
	s.Store("router_user", "secret-password")
	require.NoError(t, s.Save())

	// reopen with the generated master key
	s2, err := Open(krPath, keyPath)
	require.NoError(t, err)
	v, err := s2.Retrieve("router_user")
	require.NoError(t, err)
	assert.Equal(t, "secret-password", v)
}

func TestStore_FileIsNotPlaintext(t *testing.T) {
	krPath, keyPath := paths(t)

	s, err := Open(krPath, keyPath)
	require.NoError(t, err)
	s.Store("router_user", "secret-password")
	require.NoError(t, s.Save())

	raw, err := os.ReadFile(krPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-password")
}

func TestStore_RetrieveUnknown(t *testing.T) {
	krPath, keyPath := paths(t)

	s, err := Open(krPath, keyPath)
	require.NoError(t, err)

	_, err = s.Retrieve("nope")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.Name)
}

func TestStore_Remove(t *testing.T) {
	krPath, keyPath := paths(t)

	s, err := Open(krPath, keyPath)
	require.NoError(t, err)
	s.Store("a", "1")
	s.Remove("a")
	_, err = s.Retrieve("a")
	assert.Error(t, err)
}

func TestOpen_GeneratesMasterKey(t *testing.T) {
	krPath, keyPath := paths(t)

	_, err := Open(krPath, keyPath)
	require.NoError(t, err)

	key, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.LessOrEqual(t, len(key), MaxMasterKeyLength)
}

func TestOpen_MasterKeyLengthBounds(t *testing.T) {
	krPath, keyPath := paths(t)

	require.NoError(t, os.WriteFile(keyPath, []byte(strings.Repeat("x", 255)), 0o600))
	_, err := Open(krPath, keyPath)
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(keyPath, []byte(strings.Repeat("x", 256)), 0o600))
	_, err = Open(krPath, keyPath)
	var tooLong *MasterKeyTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, 256, tooLong.Length)
	// the error names the real key file, never a temporary
	assert.Contains(t, err.Error(), keyPath)
}

func TestOpen_EmptyMasterKeyFile(t *testing.T) {
	krPath, keyPath := paths(t)

	require.NoError(t, os.WriteFile(keyPath, nil, 0o600))
	_, err := Open(krPath, keyPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), keyPath)
}

func TestOpen_WrongMasterKey(t *testing.T) {
	krPath, keyPath := paths(t)

	s, err := Open(krPath, keyPath)
	require.NoError(t, err)
	s.Store("a", "1")
	require.NoError(t, s.Save())

	require.NoError(t, os.WriteFile(keyPath, []byte("different key"), 0o600))
	_, err = Open(krPath, keyPath)
	require.Error(t, err)
	var ke *Error
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, krPath, ke.Path)
}

func TestSave_NoTemporaryResidue(t *testing.T) {
	krPath, keyPath := paths(t)

	s, err := Open(krPath, keyPath)
	require.NoError(t, err)
	s.Store("a", "1")
	require.NoError(t, s.Save())

	entries, err := os.ReadDir(filepath.Dir(krPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}
