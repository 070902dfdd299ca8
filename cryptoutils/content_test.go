package cryptoutils

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, AccessKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestSealOpenContent(t *testing.T) {
	key := randomKey(t)

	testCases := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"small", []byte("hello")},
		{"binary", bytes.Repeat([]byte{0x00, 0xff, 0x7f}, 100)},
		{"large", bytes.Repeat([]byte("asset content "), 10000)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := SealContent(key, tc.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tc.plaintext, sealed)

			opened, err := OpenContent(key, sealed)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, opened)
		})
	}
}

func TestOpenContentWrongKey(t *testing.T) {
	sealed, err := SealContent(randomKey(t), []byte("secret material"))
	require.NoError(t, err)

	_, err = OpenContent(randomKey(t), sealed)
	assert.Error(t, err)
}

func TestOpenContentTampered(t *testing.T) {
	key := randomKey(t)
	sealed, err := SealContent(key, []byte("secret material"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = OpenContent(key, sealed)
	assert.Error(t, err)
}

func TestSealContentKeySize(t *testing.T) {
	_, err := SealContent([]byte("short"), []byte("data"))
	assert.Error(t, err)

	_, err = OpenContent([]byte("short"), []byte("data"))
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hashed, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hashed)

	assert.True(t, VerifyPassword(hashed, "correct horse battery staple"))
	assert.False(t, VerifyPassword(hashed, "wrong password"))
	assert.False(t, VerifyPassword("not a bcrypt hash", "anything"))
}

func testKeyPairPEM(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privBytes, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	return privPEM, pubPEM
}

func TestWrapUnwrap(t *testing.T) {
	privPEM, pubPEM := testKeyPairPEM(t)
	accessKey := randomKey(t)

	wrapped, err := WrapForPublicKey(pubPEM, accessKey)
	require.NoError(t, err)

	unwrapped, err := UnwrapWithPrivateKey(privPEM, wrapped)
	require.NoError(t, err)
	assert.Equal(t, accessKey, unwrapped)

	// Fresh ephemeral key per call means distinct wrappings.
	again, err := WrapForPublicKey(pubPEM, accessKey)
	require.NoError(t, err)
	assert.NotEqual(t, wrapped, again)
}

func TestUnwrapWrongKey(t *testing.T) {
	_, pubPEM := testKeyPairPEM(t)
	otherPriv, _ := testKeyPairPEM(t)

	wrapped, err := WrapForPublicKey(pubPEM, []byte("escrowed key"))
	require.NoError(t, err)

	_, err = UnwrapWithPrivateKey(otherPriv, wrapped)
	assert.Error(t, err)
}

func TestUnwrapMalformed(t *testing.T) {
	privPEM, _ := testKeyPairPEM(t)

	for _, data := range [][]byte{nil, {0x01}, {0xff, 0xff, 0x00}} {
		_, err := UnwrapWithPrivateKey(privPEM, data)
		assert.Error(t, err)
	}
}
