// Copyright (c) 2025 Justin Cranford

// Package jwkcodec encodes and decodes P-256 EC keys as canonical JWKs and
// computes the RFC 7638 thumbprint used as their "kid" (spec section 4.1).
// Coordinate encoding is exact (32-byte, left-padded) application code;
// the thumbprint itself is delegated to github.com/lestrrat-go/jwx/v3,
// which implements RFC 7638 canonicalization for EC keys natively.
package jwkcodec

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"math/big"

	joseJwk "github.com/lestrrat-go/jwx/v3/jwk"

	ovkpocApperr "ovkpoc/internal/ovkpoc/apperr"
	ovkpocMagic "ovkpoc/internal/ovkpoc/magic"
)

// ECPublicJWK is the exact wire representation of an EC public key
// (spec section 3: {kty,crv,x,y,kid?}).
type ECPublicJWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
	Kid string `json:"kid,omitempty"`
}

// ECPrivateJWK adds the private scalar d to ECPublicJWK.
type ECPrivateJWK struct {
	ECPublicJWK

	D string `json:"d"`
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64url decode: %w: %w", ovkpocApperr.ErrFormat, err)
	}

	return b, nil
}

// Thumbprint computes the RFC 7638 "kid" for a P-256 public key by
// importing it into a jwx JWK and asking the library for its SHA-256
// thumbprint (jwx canonicalizes the {crv,kty,x,y} member set internally).
func Thumbprint(pub *ecdsa.PublicKey) (string, error) {
	key, err := joseJwk.Import(pub)
	if err != nil {
		return "", fmt.Errorf("import EC public key into JWK: %w", err)
	}

	digest, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("compute JWK thumbprint: %w", err)
	}

	return b64(digest), nil
}

// EncodePublic renders pub as a canonical EC public JWK with a computed kid.
func EncodePublic(pub *ecdsa.PublicKey) (*ECPublicJWK, error) {
	if pub == nil {
		return nil, fmt.Errorf("encode public JWK: %w", ovkpocApperr.ErrFormat)
	}

	kid, err := Thumbprint(pub)
	if err != nil {
		return nil, err
	}

	xb := make([]byte, ovkpocMagic.ECCoordinateSizeBytes)
	yb := make([]byte, ovkpocMagic.ECCoordinateSizeBytes)
	pub.X.FillBytes(xb)
	pub.Y.FillBytes(yb)

	return &ECPublicJWK{
		Kty: ovkpocMagic.ECPublicJWKKty,
		Crv: ovkpocMagic.ECPublicJWKCrv,
		X:   b64(xb),
		Y:   b64(yb),
		Kid: kid,
	}, nil
}

// DecodePublic parses and validates a canonical EC public JWK, rejecting
// anything off-curve (including the point at infinity) or mis-shaped.
func DecodePublic(j *ECPublicJWK) (*ecdsa.PublicKey, error) {
	if j == nil || j.Kty != ovkpocMagic.ECPublicJWKKty || j.Crv != ovkpocMagic.ECPublicJWKCrv {
		return nil, fmt.Errorf("decode public JWK: %w", ovkpocApperr.ErrFormat)
	}

	xb, err := unb64(j.X)
	if err != nil {
		return nil, err
	}

	yb, err := unb64(j.Y)
	if err != nil {
		return nil, err
	}

	if len(xb) != ovkpocMagic.ECCoordinateSizeBytes || len(yb) != ovkpocMagic.ECCoordinateSizeBytes {
		return nil, fmt.Errorf("decode public JWK: %w", ovkpocApperr.ErrFormat)
	}

	x := new(big.Int).SetBytes(xb)
	y := new(big.Int).SetBytes(yb)

	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, fmt.Errorf("decode public JWK: point not on curve: %w", ovkpocApperr.ErrFormat)
	}

	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// EncodePrivate renders priv (and its public half) as a canonical EC
// private JWK.
func EncodePrivate(priv *ecdsa.PrivateKey) (*ECPrivateJWK, error) {
	if priv == nil {
		return nil, fmt.Errorf("encode private JWK: %w", ovkpocApperr.ErrFormat)
	}

	pub, err := EncodePublic(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	db := make([]byte, ovkpocMagic.ECCoordinateSizeBytes)
	priv.D.FillBytes(db)

	return &ECPrivateJWK{ECPublicJWK: *pub, D: b64(db)}, nil
}

// DecodePrivate parses a canonical EC private JWK into an *ecdsa.PrivateKey,
// validating the public half lies on the curve.
func DecodePrivate(j *ECPrivateJWK) (*ecdsa.PrivateKey, error) {
	if j == nil {
		return nil, fmt.Errorf("decode private JWK: %w", ovkpocApperr.ErrFormat)
	}

	pub, err := DecodePublic(&j.ECPublicJWK)
	if err != nil {
		return nil, err
	}

	db, err := unb64(j.D)
	if err != nil {
		return nil, err
	}

	if len(db) != ovkpocMagic.ECCoordinateSizeBytes {
		return nil, fmt.Errorf("decode private JWK: %w", ovkpocApperr.ErrFormat)
	}

	return &ecdsa.PrivateKey{PublicKey: *pub, D: new(big.Int).SetBytes(db)}, nil
}

// EqualPublic compares two public JWKs pointwise by {kid, crv, x, y}
// (spec section 4.1).
func EqualPublic(a, b *ECPublicJWK) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.Kid == b.Kid && a.Crv == b.Crv && a.X == b.X && a.Y == b.Y
}
