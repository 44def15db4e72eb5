// Copyright (c) 2025 Justin Cranford

// Package ec wraps P-256 (secp256r1) key generation, ECDH, and ECDSA
// sign/verify over Go's constant-time crypto/ecdh and crypto/ecdsa
// implementations (spec section 4.2: "production implementations SHOULD
// use a constant-time curve library" — the standard library already is
// one, so nothing here hand-rolls double-and-add scalar multiplication).
package ec

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	ovkpocApperr "ovkpoc/internal/ovkpoc/apperr"
	ovkpocMagic "ovkpoc/internal/ovkpoc/magic"
)

// curve is the sole curve this protocol ever uses.
func curve() elliptic.Curve { return elliptic.P256() }

// GenerateECDSAKeyPair generates a fresh P-256 ECDSA key pair, used for
// credential keys, attestation keys, and any OVK that the caller wants as
// an ecdsa.PrivateKey directly (as opposed to one derived from a seed via
// NewECDSAPrivateKeyFromScalar).
func GenerateECDSAKeyPair() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(curve(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ECDSA P-256 key pair: %w", err)
	}

	return priv, nil
}

// GenerateECDHKeyPair generates a fresh P-256 ECDH key pair for one step
// of the multi-party Seed negotiation ceremony.
func GenerateECDHKeyPair() (*ecdh.PrivateKey, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ECDH P-256 key pair: %w", err)
	}

	return priv, nil
}

// ParseECDHPublicKey reconstructs a P-256 ECDH public key from its 32-byte
// big-endian X and Y coordinates (the uncompressed SEC1 point
// 0x04 || X || Y). Rejects anything not on the curve, including the point
// at infinity.
func ParseECDHPublicKey(x, y []byte) (*ecdh.PublicKey, error) {
	if len(x) != ovkpocMagic.ECCoordinateSizeBytes || len(y) != ovkpocMagic.ECCoordinateSizeBytes {
		return nil, fmt.Errorf("parse ECDH public key: %w", ovkpocApperr.ErrFormat)
	}

	uncompressed := make([]byte, 0, 1+2*ovkpocMagic.ECCoordinateSizeBytes)
	uncompressed = append(uncompressed, 0x04)
	uncompressed = append(uncompressed, x...)
	uncompressed = append(uncompressed, y...)

	pub, err := ecdh.P256().NewPublicKey(uncompressed)
	if err != nil {
		return nil, fmt.Errorf("parse ECDH public key: %w", err)
	}

	return pub, nil
}

// NewECDHPrivateKeyFromScalar builds a P-256 ECDH private key whose scalar
// is exactly d. The Seed ring negotiation does not use it: each hop there
// passes on the full shared point rather than a key derived from its X
// coordinate.
func NewECDHPrivateKeyFromScalar(d []byte) (*ecdh.PrivateKey, error) {
	priv, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, fmt.Errorf("derive ECDH key from scalar: %w", err)
	}

	return priv, nil
}

// ECDHPublicKeyXY extracts the 32-byte big-endian X and Y coordinates from
// an ECDH public key's uncompressed SEC1 encoding.
func ECDHPublicKeyXY(pub *ecdh.PublicKey) (x, y []byte) {
	raw := pub.Bytes() // 0x04 || X || Y
	x = raw[1 : 1+ovkpocMagic.ECCoordinateSizeBytes]
	y = raw[1+ovkpocMagic.ECCoordinateSizeBytes:]

	return x, y
}

// ComputeDH performs one Diffie-Hellman step and returns the shared
// secret: for NIST curves, crypto/ecdh.ECDH returns the X coordinate of
// the shared point encoded as 32 big-endian bytes, exactly as spec section
// 4.2 requires. The point-at-infinity case is rejected by the standard
// library itself.
func ComputeDH(priv *ecdh.PrivateKey, pub *ecdh.PublicKey) ([]byte, error) {
	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("compute ECDH: %w", err)
	}

	return secret, nil
}

// NewECDSAPrivateKeyFromScalar builds a P-256 ECDSA private key whose
// scalar is exactly d (the HKDF output used to derive an OVK, spec section
// 4.5.2). d must be a valid scalar in [1, n-1]; this is validated via
// crypto/ecdh, which rejects zero and out-of-range scalars, before the
// corresponding public point is derived and an *ecdsa.PrivateKey is
// assembled around it.
func NewECDSAPrivateKeyFromScalar(d []byte) (*ecdsa.PrivateKey, error) {
	ecdhPriv, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, fmt.Errorf("derive OVK scalar: %w", err)
	}

	pubBytes := ecdhPriv.PublicKey().Bytes() // 0x04 || X || Y
	if len(pubBytes) != 1+2*ovkpocMagic.ECCoordinateSizeBytes {
		return nil, fmt.Errorf("derive OVK scalar: %w", ovkpocApperr.ErrFormat)
	}

	x := new(big.Int).SetBytes(pubBytes[1 : 1+ovkpocMagic.ECCoordinateSizeBytes])
	y := new(big.Int).SetBytes(pubBytes[1+ovkpocMagic.ECCoordinateSizeBytes:])

	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: curve(), X: x, Y: y},
		D:         new(big.Int).SetBytes(d),
	}, nil
}

// ValidatePublicKey rejects any (X, Y) pair not on the P-256 curve,
// including the point at infinity (which never satisfies the curve
// equation for P-256's nonzero b coefficient).
func ValidatePublicKey(x, y *big.Int) error {
	if !curve().IsOnCurve(x, y) {
		return fmt.Errorf("validate EC public key: %w", ovkpocApperr.ErrFormat)
	}

	return nil
}

// Sign computes an ECDSA signature over SHA-256(msg), returning the fixed
// 64-byte r||s encoding (spec section 4.3: "IEEE P1363 r||s fixed-width").
func Sign(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)

	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ECDSA sign: %w", err)
	}

	sig := make([]byte, ovkpocMagic.ECDSASignatureSizeBytes)
	r.FillBytes(sig[:ovkpocMagic.ECCoordinateSizeBytes])
	s.FillBytes(sig[ovkpocMagic.ECCoordinateSizeBytes:])

	return sig, nil
}

// Verify checks a fixed r||s ECDSA signature over SHA-256(msg).
func Verify(pub *ecdsa.PublicKey, msg, sig []byte) bool {
	if len(sig) != ovkpocMagic.ECDSASignatureSizeBytes {
		return false
	}

	digest := sha256.Sum256(msg)
	r := new(big.Int).SetBytes(sig[:ovkpocMagic.ECCoordinateSizeBytes])
	s := new(big.Int).SetBytes(sig[ovkpocMagic.ECCoordinateSizeBytes:])

	return ecdsa.Verify(pub, digest[:], r, s)
}
