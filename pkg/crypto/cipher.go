// Package crypto encrypts secrets at rest with AES-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// ErrEmptySecret is returned when a Cipher is built without key material.
var ErrEmptySecret = errors.New("crypto: empty secret")

// Cipher seals strings with a key derived from a shared secret. The nonce
// is prepended to the ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 32-byte key from secret with SHA-256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	sum := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &Cipher{aead: gcm}, nil
}

// EncryptString encrypts plaintext.
func (c *Cipher) EncryptString(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// DecryptToString reverses EncryptString.
func (c *Cipher) DecryptToString(payload []byte) (string, error) {
	n := c.aead.NonceSize()
	if len(payload) < n {
		return "", io.ErrUnexpectedEOF
	}
	plain, err := c.aead.Open(nil, payload[:n], payload[n:], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open: %w", err)
	}
	return string(plain), nil
}
