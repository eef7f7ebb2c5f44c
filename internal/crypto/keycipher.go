// Package crypto seals chamber directory API keys before they are stored in the
// chambers table, using AES-256-GCM.
//
// Sealed values carry a version prefix so rows written before encryption was
// enabled (plain API keys) can still be read and are re-sealed on the next write.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// sealedPrefix marks values produced by Seal.
const sealedPrefix = "enc:v1:"

const (
	keyLen           = 32
	deriveIterations = 100000
)

// deriveSalt is a fixed domain separator for passphrase-derived keys. The
// passphrase itself is the secret.
var deriveSalt = []byte("marketplace-management/chamber-api-keys")

var (
	// ErrKeyLengthInvalid is returned when a raw key is not exactly 32 bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrEmptySecret is returned when no key material is supplied.
	ErrEmptySecret = errors.New("crypto: encryption secret is empty")
	// ErrCiphertextCorrupted is returned when a sealed value fails decoding or is too short.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when GCM authentication fails (tampering or wrong key).
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
)

// KeyCipher seals and opens directory API keys.
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher creates a cipher from a raw 32-byte key.
func NewKeyCipher(key []byte) (*KeyCipher, error) {
	if len(key) != keyLen {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &KeyCipher{aead: aead}, nil
}

// KeyCipherFromSecret accepts the ENCRYPTION_KEY value. A 32-byte secret is used
// as the key directly; anything else is treated as a passphrase and stretched
// with PBKDF2-SHA256.
func KeyCipherFromSecret(secret string) (*KeyCipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if len(secret) == keyLen {
		return NewKeyCipher([]byte(secret))
	}
	return NewKeyCipher(pbkdf2.Key([]byte(secret), deriveSalt, deriveIterations, keyLen, sha256.New))
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// Seal encrypts plaintext. The empty string seals to the empty string.
func (kc *KeyCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, kc.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := kc.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the sealed prefix are
// legacy plaintext and are returned unchanged.
func (kc *KeyCipher) Open(value string) (string, error) {
	if value == "" || !IsSealed(value) {
		return value, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrCiphertextCorrupted
	}

	n := kc.aead.NonceSize()
	if len(raw) < n {
		return "", ErrCiphertextCorrupted
	}

	plaintext, err := kc.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// GenerateKey creates a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
