package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
)

// WrapForPublicKey encrypts data to the holder of the given ECDSA public
// key PEM. A fresh ephemeral key is generated per call; the shared secret
// comes from ECDH, hashed with SHA-256 into an AES-256-GCM key. Wire
// format: [ephemeral key length (2 bytes)][ephemeral key][nonce][ciphertext].
//
// Owners get the AccessKey wrapped this way at release time, so they can
// always recover their own content without satisfying the attribute policy.
func WrapForPublicKey(publicKeyPEM []byte, data []byte) ([]byte, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	ecdsaKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("not an ECDSA public key")
	}
	recipient, err := ecdsaKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported curve: %w", err)
	}

	ephemeral, err := recipient.Curve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	shared, err := ephemeral.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("ECDH agreement failed: %w", err)
	}
	sharedKey := sha256.Sum256(shared)

	aesGCM, err := newGCM(sharedKey[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := aesGCM.Seal(nil, nonce, data, nil)

	ephemeralBytes := ephemeral.PublicKey().Bytes()
	result := make([]byte, 2, 2+len(ephemeralBytes)+len(nonce)+len(ciphertext))
	binary.BigEndian.PutUint16(result[0:2], uint16(len(ephemeralBytes)))
	result = append(result, ephemeralBytes...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)
	return result, nil
}

// UnwrapWithPrivateKey decrypts a WrapForPublicKey payload with the
// corresponding EC private key PEM.
func UnwrapWithPrivateKey(privateKeyPEM []byte, wrapped []byte) ([]byte, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}
	ecKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	privateKey, err := ecKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported curve: %w", err)
	}

	if len(wrapped) < 2 {
		return nil, errors.New("wrapped data too short")
	}
	ephemeralLen := int(binary.BigEndian.Uint16(wrapped[0:2]))
	if len(wrapped) < 2+ephemeralLen+gcmNonceSize {
		return nil, errors.New("wrapped data has invalid format")
	}

	ephemeral, err := privateKey.Curve().NewPublicKey(wrapped[2 : 2+ephemeralLen])
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral public key: %w", err)
	}
	shared, err := privateKey.ECDH(ephemeral)
	if err != nil {
		return nil, fmt.Errorf("ECDH agreement failed: %w", err)
	}
	sharedKey := sha256.Sum256(shared)

	aesGCM, err := newGCM(sharedKey[:])
	if err != nil {
		return nil, err
	}
	nonceStart := 2 + ephemeralLen
	nonce := wrapped[nonceStart : nonceStart+gcmNonceSize]
	ciphertext := wrapped[nonceStart+gcmNonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(aesBlock)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
