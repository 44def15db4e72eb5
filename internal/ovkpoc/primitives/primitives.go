// Copyright (c) 2025 Justin Cranford

// Package primitives wraps the raw cryptographic building blocks used
// throughout OVK (spec section 4.3): hashing, HMAC, HKDF, PBKDF2,
// AES-GCM, and AES key wrap. Every primitive that has a maintained
// third-party implementation in this module's dependency set uses it;
// RFC 3394 AES key wrap is the one exception (see AESKWWrap doc comment).
package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	ovkpocApperr "ovkpoc/internal/ovkpoc/apperr"
)

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	digest := sha256.Sum256(data)

	return digest[:]
}

// HMACSHA256 computes an HMAC-SHA256 tag over data keyed by key.
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)

	return mac.Sum(nil)
}

// VerifyHMACSHA256 constant-time compares tag against HMACSHA256(key, data).
func VerifyHMACSHA256(key, data, tag []byte) bool {
	return hmac.Equal(HMACSHA256(key, data), tag)
}

// HKDFSHA256 extracts-and-expands an HKDF-SHA256 output of outLen bytes
// from secret, salt, and info (spec section 4.5.2's OVK derivation).
func HKDFSHA256(secret, salt, info []byte, outLen int) ([]byte, error) {
	prk := hkdf.Extract(sha256.New, secret, salt)

	out := make([]byte, outLen)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, fmt.Errorf("HKDF-SHA256 expand: %w", err)
	}

	return out, nil
}

// PBKDF2HMACSHA256 derives a keyLen-byte key from password and salt using
// HMAC-SHA256 and the given iteration count (the PbesEnvelope's PBES2
// key-derivation step).
func PBKDF2HMACSHA256(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate random bytes: %w", err)
	}

	return b, nil
}

// AESGCMSeal encrypts plaintext with AES-GCM under key and iv, binding aad.
func AESGCMSeal(key, iv, aad, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	return gcm.Seal(nil, iv, plaintext, aad), nil
}

// AESGCMOpen decrypts and authenticates an AES-GCM ciphertext (which must
// include its trailing tag, as produced by AESGCMSeal).
func AESGCMOpen(key, iv, aad, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("AES-GCM open: %w", ovkpocApperr.ErrDecrypt)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new AES-GCM: %w", err)
	}

	return gcm, nil
}

// defaultIV is the RFC 3394 default initial value prepended to the key
// material before wrapping.
var defaultIV = [8]byte{0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6, 0xA6}

// AESKWWrap wraps cek (whose length must be a multiple of 8 bytes) under
// kek per RFC 3394. jwx/v3's jwe package implements AES key wrap
// internally for its own PBES2 content-encryption-key wrapping but does
// not expose it as a standalone function, and no other dependency in this
// module's stack does either, so this is a direct, from-the-RFC
// implementation rather than a library call — the one hand-rolled
// primitive in this package.
func AESKWWrap(kek, cek []byte) ([]byte, error) {
	if len(cek) == 0 || len(cek)%8 != 0 {
		return nil, fmt.Errorf("AES key wrap: %w", ovkpocApperr.ErrFormat)
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("AES key wrap: new cipher: %w", err)
	}

	n := len(cek) / 8
	r := make([][8]byte, n)

	for i := range n {
		copy(r[i][:], cek[i*8:(i+1)*8])
	}

	a := defaultIV

	buf := make([]byte, 16)

	for j := range 6 {
		for i := range n {
			copy(buf[:8], a[:])
			copy(buf[8:], r[i][:])
			block.Encrypt(buf, buf)

			t := uint64(n*j + i + 1)

			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)

			for k := range 8 {
				a[k] = buf[k] ^ tb[k]
			}

			copy(r[i][:], buf[8:])
		}
	}

	out := make([]byte, 8+len(cek))
	copy(out[:8], a[:])

	for i := range n {
		copy(out[8+i*8:8+(i+1)*8], r[i][:])
	}

	return out, nil
}

// AESKWUnwrap reverses AESKWWrap and validates the recovered default IV,
// failing closed (ErrDecrypt) on any mismatch.
func AESKWUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 16 || len(wrapped)%8 != 0 {
		return nil, fmt.Errorf("AES key unwrap: %w", ovkpocApperr.ErrFormat)
	}

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("AES key unwrap: new cipher: %w", err)
	}

	n := len(wrapped)/8 - 1
	r := make([][8]byte, n)

	for i := range n {
		copy(r[i][:], wrapped[8+i*8:8+(i+1)*8])
	}

	var a [8]byte

	copy(a[:], wrapped[:8])

	buf := make([]byte, 16)

	for j := 5; j >= 0; j-- {
		for i := n - 1; i >= 0; i-- {
			t := uint64(n*j + i + 1)

			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)

			var xored [8]byte
			for k := range 8 {
				xored[k] = a[k] ^ tb[k]
			}

			copy(buf[:8], xored[:])
			copy(buf[8:], r[i][:])
			block.Decrypt(buf, buf)
			copy(a[:], buf[:8])
			copy(r[i][:], buf[8:])
		}
	}

	if !hmac.Equal(a[:], defaultIV[:]) {
		return nil, fmt.Errorf("AES key unwrap: %w", ovkpocApperr.ErrDecrypt)
	}

	out := make([]byte, n*8)
	for i := range n {
		copy(out[i*8:(i+1)*8], r[i][:])
	}

	return out, nil
}
