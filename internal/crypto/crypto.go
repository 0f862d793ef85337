// Package crypto implements the passphrase-based envelope encryption used for
// every document before it reaches the local database.
//
// Envelope format: <hex 12-byte IV>|<hex AES-256-GCM ciphertext with tag>.
// The key is SHA-256 of the passphrase: no salt and no work factor. This is
// not meant to resist offline brute force; changing the derivation changes
// the stored format and needs a new envelope version.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	apperrors "github.com/sadopc/sealtrack/internal/errors"
)

const (
	// IVSize is the GCM nonce length in bytes.
	IVSize = 12

	separator = "|"
)

// Helper encrypts and decrypts strings under one passphrase. The derived key
// is computed once and cached until Wipe.
type Helper struct {
	passphrase []byte

	once sync.Once
	mu   sync.RWMutex
	key  []byte
	aead cipher.AEAD
	err  error
}

// New returns a Helper for passphrase. An empty passphrase is a configuration
// error.
func New(passphrase string) (*Helper, error) {
	if passphrase == "" {
		return nil, apperrors.Configuration("passphrase must not be empty")
	}
	return &Helper{passphrase: []byte(passphrase)}, nil
}

func (h *Helper) deriveKey() (cipher.AEAD, error) {
	h.once.Do(func() {
		sum := sha256.Sum256(h.passphrase)
		h.key = sum[:]
		block, err := aes.NewCipher(h.key)
		if err != nil {
			h.err = fmt.Errorf("import key: %w", err)
			return
		}
		h.aead, h.err = cipher.NewGCM(block)
	})

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.err != nil {
		return nil, h.err
	}
	if h.aead == nil {
		return nil, apperrors.Configuration("key material has been wiped")
	}
	return h.aead, nil
}

// Encrypt seals plaintext under a fresh random IV.
func (h *Helper) Encrypt(plaintext string) (string, error) {
	aead, err := h.deriveKey()
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	ciphertext := aead.Seal(nil, iv, []byte(plaintext), nil)
	return hex.EncodeToString(iv) + separator + hex.EncodeToString(ciphertext), nil
}

// Decrypt opens an envelope produced by Encrypt. Every failure is a
// *errors.DecryptionError.
func (h *Helper) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, separator)
	if len(parts) != 2 {
		return "", apperrors.NewDecryptionError("malformed envelope", nil)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", apperrors.NewDecryptionError("iv is not hex", err)
	}
	if len(iv) != IVSize {
		return "", apperrors.NewDecryptionError("iv has wrong length", nil)
	}
	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", apperrors.NewDecryptionError("ciphertext is not hex", err)
	}

	aead, err := h.deriveKey()
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", apperrors.NewDecryptionError("", err)
	}
	return string(plaintext), nil
}

// Wipe zeroes the passphrase and cached key. The Helper is unusable afterwards.
func (h *Helper) Wipe() {
	h.once.Do(func() {})

	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.passphrase {
		h.passphrase[i] = 0
	}
	for i := range h.key {
		h.key[i] = 0
	}
	h.key = nil
	h.aead = nil
}
