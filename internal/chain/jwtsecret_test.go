package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadJWTSecretAcceptsWithOrWithoutPrefix(t *testing.T) {
	hex := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	var want [32]byte
	for i := range want {
		want[i] = 0xaa
	}

	withPrefix := filepath.Join(t.TempDir(), "with.hex")
	require.NoError(t, os.WriteFile(withPrefix, []byte("0x"+hex+"\n"), 0o600))
	secret, err := LoadJWTSecret(withPrefix)
	require.NoError(t, err)
	require.Equal(t, want, secret)

	withoutPrefix := filepath.Join(t.TempDir(), "without.hex")
	require.NoError(t, os.WriteFile(withoutPrefix, []byte(hex), 0o600))
	secret2, err := LoadJWTSecret(withoutPrefix)
	require.NoError(t, err)
	require.Equal(t, secret, secret2)
}

func TestLoadJWTSecretRejectsWrongLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.hex")
	require.NoError(t, os.WriteFile(path, []byte("0xaabb"), 0o600))

	_, err := LoadJWTSecret(path)
	require.Error(t, err)
}

func TestLoadJWTSecretRejectsMissingFile(t *testing.T) {
	_, err := LoadJWTSecret(filepath.Join(t.TempDir(), "nonexistent.hex"))
	require.Error(t, err)
}
