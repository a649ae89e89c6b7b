package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoKey means TOKEN_ENCRYPTION_KEY is absent or unusable. Deployment must be fixed;
	// no token can be stored or read until then.
	ErrNoKey = errors.New("vault: encryption key is not configured")

	// ErrIntegrity means the stored ciphertext failed authentication — it was tampered
	// with or encrypted under a different key.
	ErrIntegrity = errors.New("vault: ciphertext failed authentication")
)

// Vault encrypts OAuth tokens at rest with AES-256-GCM. Every Encrypt call uses a
// fresh random nonce, stored as a prefix of the ciphertext. The vault performs no
// I/O beyond reading crypto/rand.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) == 0 {
		return nil, ErrNoKey
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: key must be 32 bytes, got %d: %w", len(key), ErrNoKey)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init GCM: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce‖ciphertext) for storage.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (v *Vault) Decrypt(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	n := v.aead.NonceSize()
	if len(raw) <= n {
		return "", ErrIntegrity
	}
	plain, err := v.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plain), nil
}

// ReadToken reads a stored token that may predate encryption at rest. Values that
// decode as base64, are long enough to hold nonce plus GCM tag, and authenticate
// under the current key are decrypted; everything else is returned verbatim as
// legacy plaintext.
//
// The detection is a length/format heuristic and stays best-effort for the
// migration window only: a short or oddly formatted plaintext token could be
// misclassified. Once every credential row is confirmed encrypted this should be
// replaced by a hard cutover to Decrypt.
func (v *Vault) ReadToken(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(raw) <= v.aead.NonceSize()+v.aead.Overhead() {
		return value, nil
	}
	n := v.aead.NonceSize()
	plain, err := v.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		// Base64-looking legacy token that never went through Encrypt.
		return value, nil
	}
	return string(plain), nil
}
