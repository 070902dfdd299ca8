// Package cryptoutils implements the crypto the escrow service needs
// outside of secret sharing itself: symmetric sealing of asset content
// under the AccessKey, ECIES wrapping of keys to an owner's public key,
// and password hashing for identity records.
package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// AccessKeySize is the length in bytes of a content encryption key.
const AccessKeySize = 32

const gcmNonceSize = 12

// SealContent encrypts plaintext with AES-256-GCM under key. The nonce is
// generated fresh and prepended to the ciphertext.
func SealContent(key, plaintext []byte) ([]byte, error) {
	if len(key) != AccessKeySize {
		return nil, fmt.Errorf("access key must be %d bytes, got %d", AccessKeySize, len(key))
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenContent decrypts a SealContent ciphertext. Fails if the key is wrong
// or the ciphertext was tampered with.
func OpenContent(key, sealed []byte) ([]byte, error) {
	if len(key) != AccessKeySize {
		return nil, fmt.Errorf("access key must be %d bytes, got %d", AccessKeySize, len(key))
	}
	if len(sealed) < gcmNonceSize {
		return nil, errors.New("sealed content too short")
	}

	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce, ciphertext := sealed[:gcmNonceSize], sealed[gcmNonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	return plaintext, nil
}

// HashPassword hashes a password for storage in a user record.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(hashed, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) == nil
}
