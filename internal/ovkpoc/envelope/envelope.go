// Copyright (c) 2025 Justin Cranford

// Package envelope implements PbesEnvelope (spec section 4.4): a
// compact, 5-segment, dotted password-based JWE used to protect the
// seed-negotiation payload under a user-chosen password shared
// out-of-band. It is built directly from primitives (PBKDF2, AES-KW,
// AES-GCM) rather than through jwx/v3/jwe, to pin the PoC's
// deliberately low iteration count exactly rather than go through a
// generic PBES2 option surface.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	ovkpocApperr "ovkpoc/internal/ovkpoc/apperr"
	ovkpocMagic "ovkpoc/internal/ovkpoc/magic"
	ovkpocPrimitives "ovkpoc/internal/ovkpoc/primitives"
)

// header is the PbesEnvelope's JOSE-style protected header.
type header struct {
	Alg string `json:"alg"`
	Enc string `json:"enc"`
	P2C int    `json:"p2c"`
	P2S string `json:"p2s"`
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ovkpocApperr.ErrFormat, err)
	}

	return b, nil
}

// Seal encrypts msg under password, returning the 5-segment compact
// serialization header_b64u.ek_b64u.iv_b64u.ct_b64u.tag_b64u.
func Seal(password, msg []byte) (string, error) {
	p2s, err := ovkpocPrimitives.RandomBytes(ovkpocMagic.PBES2SaltSizeBytes)
	if err != nil {
		return "", err
	}

	hdr := header{
		Alg: ovkpocMagic.PBES2Alg,
		Enc: ovkpocMagic.A128GCMEnc,
		P2C: ovkpocMagic.PBES2IterationCount,
		P2S: b64(p2s),
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return "", fmt.Errorf("marshal PbesEnvelope header: %w", err)
	}

	hdrB64 := b64(hdrJSON)

	kek := deriveKEK(password, hdr.Alg, p2s, hdr.P2C)

	cek, err := ovkpocPrimitives.RandomBytes(ovkpocMagic.AESGCMKeySizeBytes)
	if err != nil {
		return "", err
	}

	ek, err := ovkpocPrimitives.AESKWWrap(kek, cek)
	if err != nil {
		return "", fmt.Errorf("wrap PbesEnvelope CEK: %w", err)
	}

	iv, err := ovkpocPrimitives.RandomBytes(ovkpocMagic.AESGCMIVSizeBytes)
	if err != nil {
		return "", err
	}

	sealed, err := ovkpocPrimitives.AESGCMSeal(cek, iv, []byte(hdrB64), msg)
	if err != nil {
		return "", fmt.Errorf("seal PbesEnvelope content: %w", err)
	}

	tagStart := len(sealed) - ovkpocMagic.AESGCMTagSizeBytes
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		hdrB64,
		b64(ek),
		b64(iv),
		b64(ciphertext),
		b64(tag),
	}, "."), nil
}

// Open decrypts a PbesEnvelope compact serialization, failing with
// ErrFormat on structural issues and ErrDecrypt on any decryption or
// authentication failure.
func Open(password []byte, compact string) ([]byte, error) {
	segments := strings.Split(compact, ".")
	if len(segments) != ovkpocMagic.PbesEnvelopeSegmentCount {
		return nil, fmt.Errorf("PbesEnvelope: %w", ovkpocApperr.ErrFormat)
	}

	hdrB64, ekB64, ivB64, ctB64, tagB64 := segments[0], segments[1], segments[2], segments[3], segments[4]

	hdrJSON, err := unb64(hdrB64)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope header: %w", err)
	}

	var hdr header
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, fmt.Errorf("PbesEnvelope header: %w: %w", ovkpocApperr.ErrFormat, err)
	}

	if hdr.Alg != ovkpocMagic.PBES2Alg || hdr.Enc != ovkpocMagic.A128GCMEnc || hdr.P2C <= 0 {
		return nil, fmt.Errorf("PbesEnvelope header: %w", ovkpocApperr.ErrFormat)
	}

	p2s, err := unb64(hdr.P2S)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope header: %w", err)
	}

	ek, err := unb64(ekB64)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope ek: %w", err)
	}

	iv, err := unb64(ivB64)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope iv: %w", err)
	}

	ciphertext, err := unb64(ctB64)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope ciphertext: %w", err)
	}

	tag, err := unb64(tagB64)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope tag: %w", err)
	}

	kek := deriveKEK(password, hdr.Alg, p2s, hdr.P2C)

	cek, err := ovkpocPrimitives.AESKWUnwrap(kek, ek)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope: %w", ovkpocApperr.ErrDecrypt)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)

	msg, err := ovkpocPrimitives.AESGCMOpen(cek, iv, []byte(hdrB64), sealed)
	if err != nil {
		return nil, fmt.Errorf("PbesEnvelope: %w", ovkpocApperr.ErrDecrypt)
	}

	return msg, nil
}

// deriveKEK implements spec section 4.4's KEK derivation salt:
// UTF8(alg) || 0x00 || base64url_decode(p2s).
func deriveKEK(password []byte, alg string, p2s []byte, iterations int) []byte {
	salt := make([]byte, 0, len(alg)+1+len(p2s))
	salt = append(salt, []byte(alg)...)
	salt = append(salt, 0x00)
	salt = append(salt, p2s...)

	return ovkpocPrimitives.PBKDF2HMACSHA256(password, salt, iterations, ovkpocMagic.AESKWKeySizeBytes)
}
