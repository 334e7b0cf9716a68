// Package crypto provides the encrypt/decrypt capability for shop access
// tokens at rest.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyLen is the required key length in bytes.
const KeyLen = chacha20poly1305.KeySize

var (
	ErrInvalidKey        = errors.New("token cipher key must be 32 bytes")
	ErrInvalidCiphertext = errors.New("invalid token ciphertext")
)

// TokenCipher seals and opens access tokens with XChaCha20-Poly1305.
// Ciphertexts are base64 encoded for storage in a text column.
type TokenCipher struct {
	key []byte
}

// NewTokenCipher creates a cipher from a raw 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != KeyLen {
		return nil, ErrInvalidKey
	}
	k := make([]byte, KeyLen)
	copy(k, key)
	return &TokenCipher{key: k}, nil
}

// NewTokenCipherFromHex creates a cipher from a hex-encoded key, the form
// the key takes in configuration.
func NewTokenCipherFromHex(hexKey string) (*TokenCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token key: %w", err)
	}
	return NewTokenCipher(key)
}

// Encrypt seals a plaintext token. A random nonce is prepended to the
// ciphertext before encoding.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	sealed = append(sealed, nonce...)
	sealed = append(sealed, aead.Seal(nil, nonce, []byte(plaintext), nil)...)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed token produced by Encrypt.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return "", ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}

	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ciphertext := sealed[chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	return string(plaintext), nil
}
