// Package secrets seals credential key material for storage at rest.
//
// Linked-device credentials are long-term cryptographic keys; they are never
// persisted in plaintext. Sealing uses XChaCha20-Poly1305 with a random nonce
// prepended to the ciphertext, keyed by a process-level sealing key.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"linkhub/pkg/platform/sentinel"
)

// KeySize is the required sealing key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Sealer encrypts and decrypts opaque blobs with a fixed key.
type Sealer struct {
	key []byte
}

// NewSealer creates a Sealer from a base64-encoded key of KeySize bytes.
func NewSealer(encodedKey string) (*Sealer, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode sealing key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("sealing key must be %d bytes, got %d", KeySize, len(key))
	}
	return &Sealer{key: key}, nil
}

// GenerateKey creates a random sealing key, base64-encoded for config use.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate sealing key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext, binding it to the tenant via associated data so a
// blob copied between tenant rows fails to open.
func (s *Sealer) Seal(tenantID string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(tenantID)), nil
}

// Open decrypts a sealed blob. A blob that does not authenticate returns
// sentinel.ErrCorrupt so callers can fall back to re-pairing.
func (s *Sealer) Open(tenantID string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed blob too short: %w", sentinel.ErrCorrupt)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(tenantID))
	if err != nil {
		return nil, fmt.Errorf("open sealed blob: %w", sentinel.ErrCorrupt)
	}
	return plaintext, nil
}
