// Package secretbox seals short secrets (OAuth tokens) for storage at rest
// with XChaCha20-Poly1305 under a key derived from a configured secret.
package secretbox

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"codegen-app/internal/domain/apperr"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "codegen-app/github-token/v1"

var ErrMalformed = errors.New("secretbox: malformed ciphertext")

type Box struct {
	aead cipher.AEAD
}

// New derives the sealing key from secret. An empty secret is a
// configuration error so tokens are never stored in the clear.
func New(secret string) (*Box, error) {
	if secret == "" {
		return nil, apperr.New(apperr.KindNotConfigured, "Token encryption key is not configured")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext. aad binds the ciphertext to its owner.
func (b *Box) Seal(plaintext, aad string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), []byte(aad))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (b *Box) Open(sealed, aad string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < b.aead.NonceSize() {
		return "", ErrMalformed
	}
	nonce, ct := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	pt, err := b.aead.Open(nil, nonce, ct, []byte(aad))
	if err != nil {
		return "", ErrMalformed
	}
	return string(pt), nil
}
