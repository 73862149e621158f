package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// Broker credentials are kept encrypted at rest (environment, database) and
// only decrypted in memory right before a client is built.

var (
	ErrNoKey            = errors.New("BROKER_CREDENTIALS_KEY is not set")
	ErrMalformedMessage = errors.New("malformed encrypted message")
	ErrDecryptFailed    = errors.New("message could not be decrypted")
)

func loadKey() (*[32]byte, error) {
	raw := GetConfig().BrokerCRKey
	if raw == "" {
		return nil, ErrNoKey
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode credentials key: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("credentials key must be 32 bytes, got %d", len(decoded))
	}

	var key [32]byte
	copy(key[:], decoded)
	return &key, nil
}

// EncryptString seals a plaintext credential with the configured key and
// returns it base64 encoded (nonce prepended).
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// GenerateKeyString produces a fresh random key in the base64 form
// BROKER_CREDENTIALS_KEY expects.
func GenerateKeyString() (string, error) {
	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// DecryptString opens a credential produced by EncryptString.
func DecryptString(encoded string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode encrypted message: %w", err)
	}
	if len(sealed) < 24 {
		return "", ErrMalformedMessage
	}

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, key)
	if !ok {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}
