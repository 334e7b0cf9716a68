package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLen)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	sealed, err := cipher.Encrypt("shpat_abcdef0123456789")
	require.NoError(t, err)
	assert.NotEqual(t, "shpat_abcdef0123456789", sealed)

	opened, err := cipher.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "shpat_abcdef0123456789", opened)
}

func TestTokenCipher_NoncesDiffer(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	first, err := cipher.Encrypt("same-token")
	require.NoError(t, err)
	second, err := cipher.Encrypt("same-token")
	require.NoError(t, err)

	// Same plaintext never seals to the same ciphertext
	assert.NotEqual(t, first, second)
}

func TestTokenCipher_WrongKeyFails(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)
	other, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	sealed, err := cipher.Encrypt("shpat_secret")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestTokenCipher_TamperedCiphertextFails(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	sealed, err := cipher.Encrypt("shpat_secret")
	require.NoError(t, err)

	tampered := []byte(sealed)
	tampered[len(tampered)-5] ^= 1

	_, err = cipher.Decrypt(string(tampered))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestTokenCipher_RejectsGarbage(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	_, err = cipher.Decrypt("not base64 at all!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	_, err = cipher.Decrypt("c2hvcnQ=") // decodes shorter than a nonce
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestNewTokenCipher_KeyValidation(t *testing.T) {
	_, err := NewTokenCipher([]byte("too-short"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewTokenCipherFromHex("zzzz")
	assert.Error(t, err)

	_, err = NewTokenCipherFromHex(hex.EncodeToString(testKey(t)))
	assert.NoError(t, err)
}

// Feature: shopify-sync, Property: Every token survives a seal/open cycle
func TestProperty_EncryptDecryptRoundTrips(t *testing.T) {
	cipher, err := NewTokenCipher(testKey(t))
	require.NoError(t, err)

	properties := gopter.NewProperties(nil)

	properties.Property("decrypt inverts encrypt for any token", prop.ForAll(
		func(token string) bool {
			sealed, err := cipher.Encrypt(token)
			if err != nil {
				return false
			}
			opened, err := cipher.Decrypt(sealed)
			if err != nil {
				return false
			}
			return opened == token
		},
		gen.AnyString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
