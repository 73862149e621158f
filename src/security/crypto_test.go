package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, err := GenerateKeyString()
	require.NoError(t, err)
	t.Setenv("BROKER_CREDENTIALS_KEY", key)

	encrypted, err := EncryptString("very-secret-app-key")
	require.NoError(t, err)
	require.NotEqual(t, "very-secret-app-key", encrypted)

	decrypted, err := DecryptString(encrypted)
	require.NoError(t, err)
	require.Equal(t, "very-secret-app-key", decrypted)
}

func TestEncryptProducesDistinctCiphertexts(t *testing.T) {
	key, err := GenerateKeyString()
	require.NoError(t, err)
	t.Setenv("BROKER_CREDENTIALS_KEY", key)

	first, err := EncryptString("same-plaintext")
	require.NoError(t, err)
	second, err := EncryptString("same-plaintext")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	key, err := GenerateKeyString()
	require.NoError(t, err)
	t.Setenv("BROKER_CREDENTIALS_KEY", key)

	encrypted, err := EncryptString("secret")
	require.NoError(t, err)

	other, err := GenerateKeyString()
	require.NoError(t, err)
	t.Setenv("BROKER_CREDENTIALS_KEY", other)

	_, err = DecryptString(encrypted)
	require.ErrorIs(t, err, ErrDecryptFailed)
}

func TestEncryptWithoutKey(t *testing.T) {
	t.Setenv("BROKER_CREDENTIALS_KEY", "")

	_, err := EncryptString("secret")
	require.ErrorIs(t, err, ErrNoKey)
}

func TestDecryptMalformedMessage(t *testing.T) {
	key, err := GenerateKeyString()
	require.NoError(t, err)
	t.Setenv("BROKER_CREDENTIALS_KEY", key)

	_, err = DecryptString("AAAA")
	require.ErrorIs(t, err, ErrMalformedMessage)
}
