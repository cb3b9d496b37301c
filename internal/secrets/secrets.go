// Package secrets encrypts provider credentials at rest. Ciphertexts are
// AES-256-GCM, prefixed "enc:v1:" so legacy plaintext rows keep working
// until they are rotated.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	encPrefix     = "enc:v1:"
	keyIterations = 600_000
	derivedKeyLen = 32
)

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

type Codec struct {
	key []byte
}

// NewCodec derives the AES key from the configured master key. The salt is
// deployment-wide, not per-secret: the derived key is cached for the
// process lifetime and rotation means re-encrypting every row anyway.
func NewCodec(masterKey, salt string) (*Codec, error) {
	if masterKey == "" {
		return nil, errors.New("NewCodec: master key is empty")
	}
	key := pbkdf2.Key([]byte(masterKey), []byte(salt), keyIterations, derivedKeyLen, sha256.New)
	return &Codec{key: key}, nil
}

func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, encPrefix)
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	gcm, err := c.gcm()
	if err != nil {
		return "", fmt.Errorf("Encrypt: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("Encrypt: nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt accepts both encrypted and plaintext values; plaintext is
// returned unchanged so partially migrated tenants keep verifying.
func (c *Codec) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, encPrefix))
	if err != nil {
		return "", fmt.Errorf("Decrypt: %w", ErrInvalidCiphertext)
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", fmt.Errorf("Decrypt: %w", err)
	}

	if len(sealed) < gcm.NonceSize() {
		return "", fmt.Errorf("Decrypt: short ciphertext: %w", ErrInvalidCiphertext)
	}

	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("Decrypt: %w", ErrInvalidCiphertext)
	}
	return string(plain), nil
}

func (c *Codec) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
