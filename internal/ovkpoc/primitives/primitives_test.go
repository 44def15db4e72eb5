// Copyright (c) 2025 Justin Cranford

package primitives_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	ovkpocPrimitives "ovkpoc/internal/ovkpoc/primitives"
)

func TestHMACSHA256VerifyRoundTrip(t *testing.T) {
	t.Parallel()

	key := []byte("secret-key")
	data := []byte("payload")

	tag := ovkpocPrimitives.HMACSHA256(key, data)
	require.Len(t, tag, 32)
	require.True(t, ovkpocPrimitives.VerifyHMACSHA256(key, data, tag))
	require.False(t, ovkpocPrimitives.VerifyHMACSHA256(key, []byte("tampered"), tag))
}

func TestHKDFSHA256Deterministic(t *testing.T) {
	t.Parallel()

	secret := []byte("shared-secret")
	salt := []byte("salt-value")
	info := []byte("ovk-derivation")

	out1, err := ovkpocPrimitives.HKDFSHA256(secret, salt, info, 32)
	require.NoError(t, err)
	out2, err := ovkpocPrimitives.HKDFSHA256(secret, salt, info, 32)
	require.NoError(t, err)

	require.Equal(t, out1, out2)
	require.Len(t, out1, 32)
}

func TestHKDFSHA256DiffersByInfo(t *testing.T) {
	t.Parallel()

	secret := []byte("shared-secret")
	salt := []byte("salt-value")

	out1, err := ovkpocPrimitives.HKDFSHA256(secret, salt, []byte("a"), 32)
	require.NoError(t, err)
	out2, err := ovkpocPrimitives.HKDFSHA256(secret, salt, []byte("b"), 32)
	require.NoError(t, err)

	require.NotEqual(t, out1, out2)
}

func TestPBKDF2HMACSHA256Deterministic(t *testing.T) {
	t.Parallel()

	key1 := ovkpocPrimitives.PBKDF2HMACSHA256([]byte("password"), []byte("salt"), 1000, 16)
	key2 := ovkpocPrimitives.PBKDF2HMACSHA256([]byte("password"), []byte("salt"), 1000, 16)

	require.Equal(t, key1, key2)
	require.Len(t, key1, 16)
}

func TestAESGCMSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := ovkpocPrimitives.RandomBytes(16)
	require.NoError(t, err)
	iv, err := ovkpocPrimitives.RandomBytes(12)
	require.NoError(t, err)

	aad := []byte("associated-data")
	plaintext := []byte("the quick brown fox")

	ciphertext, err := ovkpocPrimitives.AESGCMSeal(key, iv, aad, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	decrypted, err := ovkpocPrimitives.AESGCMOpen(key, iv, aad, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestAESGCMOpenRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	key, err := ovkpocPrimitives.RandomBytes(16)
	require.NoError(t, err)
	iv, err := ovkpocPrimitives.RandomBytes(12)
	require.NoError(t, err)

	ciphertext, err := ovkpocPrimitives.AESGCMSeal(key, iv, nil, []byte("message"))
	require.NoError(t, err)

	ciphertext[0] ^= 0xFF

	_, err = ovkpocPrimitives.AESGCMOpen(key, iv, nil, ciphertext)
	require.Error(t, err)
}

func TestAESKWWrapUnwrapRoundTrip(t *testing.T) {
	t.Parallel()

	// RFC 3394 test vector: 128-bit KEK wrapping a 128-bit key.
	kek := []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F,
	}
	cek := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
	}
	expected := []byte{
		0x1F, 0xA6, 0x8B, 0x0A, 0x81, 0x12, 0xB4, 0x47,
		0xAE, 0xF3, 0x4B, 0xD8, 0xFB, 0x5A, 0x7B, 0x82,
		0x9D, 0x3E, 0x86, 0x23, 0x71, 0xD2, 0xCF, 0xE5,
	}

	wrapped, err := ovkpocPrimitives.AESKWWrap(kek, cek)
	require.NoError(t, err)
	require.True(t, bytes.Equal(expected, wrapped))

	unwrapped, err := ovkpocPrimitives.AESKWUnwrap(kek, wrapped)
	require.NoError(t, err)
	require.Equal(t, cek, unwrapped)
}

func TestAESKWUnwrapRejectsCorruptedInput(t *testing.T) {
	t.Parallel()

	kek, err := ovkpocPrimitives.RandomBytes(16)
	require.NoError(t, err)
	cek, err := ovkpocPrimitives.RandomBytes(16)
	require.NoError(t, err)

	wrapped, err := ovkpocPrimitives.AESKWWrap(kek, cek)
	require.NoError(t, err)

	wrapped[0] ^= 0xFF

	_, err = ovkpocPrimitives.AESKWUnwrap(kek, wrapped)
	require.Error(t, err)
}

func TestAESKWWrapRejectsNonMultipleOf8(t *testing.T) {
	t.Parallel()

	kek, err := ovkpocPrimitives.RandomBytes(16)
	require.NoError(t, err)

	_, err = ovkpocPrimitives.AESKWWrap(kek, []byte{1, 2, 3})
	require.Error(t, err)
}
