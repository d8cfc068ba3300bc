// Package crypto encrypts personal-data fields before persistence. The
// stored form is base64(nonce || tag || ciphertext) under AES-GCM with a
// 16-byte nonce, so a single opaque string round-trips through any text
// column.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	nonceSize = 16
	tagSize   = 16
)

// ErrInvalidCiphertext covers malformed base64, truncated input and
// authentication failure alike; callers cannot distinguish tampering from
// corruption and must treat the field as unknown.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Codec performs authenticated encryption under a process-wide key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives the key from the configured secret and fails fast on a
// bad key: a 64-character hex secret decodes to 32 raw bytes, anything else
// is used as raw key material and must be exactly 16, 24 or 32 bytes.
func NewCodec(secret string) (*Codec, error) {
	key, err := keyFromSecret(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

func keyFromSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("encryption secret not set")
	}
	if len(secret) == 64 {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	key := []byte(secret)
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	}
	return nil, fmt.Errorf("invalid key length %d, want 16, 24 or 32 bytes or 64 hex chars", len(key))
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Codec) Encrypt(plain string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plain), nil)
	// Seal appends the tag after the ciphertext; the stored layout keeps the
	// tag between nonce and ciphertext.
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]
	buf := make([]byte, 0, nonceSize+tagSize+len(ct))
	buf = append(buf, nonce...)
	buf = append(buf, tag...)
	buf = append(buf, ct...)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt opens a stored field. Every failure mode maps to
// ErrInvalidCiphertext.
func (c *Codec) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(data) < nonceSize+tagSize {
		return "", ErrInvalidCiphertext
	}
	nonce := data[:nonceSize]
	tag := data[nonceSize : nonceSize+tagSize]
	ct := data[nonceSize+tagSize:]
	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}
