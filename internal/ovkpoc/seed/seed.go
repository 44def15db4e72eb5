// Copyright (c) 2025 Justin Cranford

// Package seed implements the multi-party Diffie-Hellman ring
// negotiation and per-service OVK (ownership verification key)
// operations (spec section 4.5). A Seed accumulates one shared 32-byte
// secret per completed negotiation round; OVKs are derived from the
// most recent one, with the previous secret kept alive only while a
// rotation is in progress.
package seed

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"sort"
	"sync"

	ovkpocApperr "ovkpoc/internal/ovkpoc/apperr"
	ovkpocCanonicaljson "ovkpoc/internal/ovkpoc/canonicaljson"
	ovkpocEc "ovkpoc/internal/ovkpoc/ec"
	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
	ovkpocMagic "ovkpoc/internal/ovkpoc/magic"
	ovkpocPrimitives "ovkpoc/internal/ovkpoc/primitives"

	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
)

// Meta identifies one participant's fixed position in a ring
// negotiation; it must not change across calls to Negotiate for a given
// negotiation round.
type Meta struct {
	ID        string
	PartnerID string
	DevNum    int
}

type ephemeralState struct {
	sk   *ecdh.PrivateKey
	meta Meta
}

// Seed holds the ordered list of shared secrets a device has negotiated
// with its peers, and the ephemeral state of any negotiation currently
// in flight. The zero value is a Seed with no secrets.
type Seed struct {
	mu        sync.Mutex
	secrets   [][]byte
	ephemeral *ephemeralState
}

// New returns an empty Seed.
func New() *Seed {
	return &Seed{}
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ovkpocApperr.ErrFormat, err)
	}

	return b, nil
}

func encodeEphemeralPublic(pub *ecdh.PublicKey) *ovkpocJwkcodec.ECPublicJWK {
	x, y := ovkpocEc.ECDHPublicKeyXY(pub)

	return &ovkpocJwkcodec.ECPublicJWK{
		Kty: ovkpocMagic.ECPublicJWKKty,
		Crv: ovkpocMagic.ECPublicJWKCrv,
		X:   b64(x),
		Y:   b64(y),
	}
}

func decodeEphemeralPublic(j *ovkpocJwkcodec.ECPublicJWK) (*ecdh.PublicKey, error) {
	x, err := unb64(j.X)
	if err != nil {
		return nil, err
	}

	y, err := unb64(j.Y)
	if err != nil {
		return nil, err
	}

	return ovkpocEc.ParseECDHPublicKey(x, y)
}

// Negotiate runs one step of the ring negotiation protocol (spec section
// 4.5.1). mine is the caller's previously accumulated "mine" map
// (keys already produced by this device in earlier rounds); partner is
// whatever the partner device has sent this round. update indicates
// whether this negotiation is producing the device's first seed (false)
// or an additional rotation seed (true).
func (s *Seed) Negotiate(
	meta Meta,
	mine map[int]*ovkpocJwkcodec.ECPublicJWK,
	partner map[int]*ovkpocJwkcodec.ECPublicJWK,
	update bool,
) (bool, map[int]*ovkpocJwkcodec.ECPublicJWK, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if update && len(s.secrets) == 0 {
		return false, nil, fmt.Errorf("negotiate: %w", ovkpocApperr.ErrInvalidState)
	}

	if !update && len(s.secrets) != 0 {
		return false, nil, fmt.Errorf("negotiate: %w", ovkpocApperr.ErrInvalidState)
	}

	if s.ephemeral != nil && s.ephemeral.meta != meta {
		return false, nil, fmt.Errorf("negotiate: %w", ovkpocApperr.ErrMetaMismatch)
	}

	if s.ephemeral == nil {
		sk, err := ovkpocEc.GenerateECDHKeyPair()
		if err != nil {
			return false, nil, fmt.Errorf("negotiate: generate ephemeral key: %w", err)
		}

		s.ephemeral = &ephemeralState{sk: sk, meta: meta}
	}

	epkOut := map[int]*ovkpocJwkcodec.ECPublicJWK{0: encodeEphemeralPublic(s.ephemeral.sk.PublicKey())}

	appendedSeed := false

	steps := make([]int, 0, len(partner))
	for c := range partner {
		steps = append(steps, c)
	}

	sort.Ints(steps)

	for _, c := range steps {
		pk := partner[c]

		partnerPub, err := decodeEphemeralPublic(pk)
		if err != nil {
			return false, nil, fmt.Errorf("negotiate: %w", err)
		}

		switch {
		case c < meta.DevNum-2:
			if _, exists := mine[c+1]; exists {
				continue
			}

			// The next hop is the full shared point sk*pk, so every device's
			// final X coordinate covers the same product of ring keys.
			px, py := ovkpocEc.ECDHPublicKeyXY(partnerPub)
			sx, sy := elliptic.P256().ScalarMult(new(big.Int).SetBytes(px), new(big.Int).SetBytes(py), s.ephemeral.sk.Bytes())

			sharedPoint, err := ovkpocEc.ParseECDHPublicKey(
				sx.FillBytes(make([]byte, ovkpocMagic.ECCoordinateSizeBytes)),
				sy.FillBytes(make([]byte, ovkpocMagic.ECCoordinateSizeBytes)),
			)
			if err != nil {
				return false, nil, fmt.Errorf("negotiate: %w", err)
			}

			epkOut[c+1] = encodeEphemeralPublic(sharedPoint)
		case c == meta.DevNum-2:
			shared, err := ovkpocEc.ComputeDH(s.ephemeral.sk, partnerPub)
			if err != nil {
				return false, nil, fmt.Errorf("negotiate: %w", err)
			}

			s.secrets = append(s.secrets, shared)
			appendedSeed = true
		}
	}

	covered := map[int]struct{}{}
	for c := range epkOut {
		covered[c] = struct{}{}
	}

	for c := range mine {
		covered[c] = struct{}{}
	}

	if appendedSeed {
		covered[meta.DevNum-1] = struct{}{}
	}

	completion := len(covered) == meta.DevNum
	if completion {
		s.ephemeral = nil
	}

	return completion, epkOut, nil
}

func (s *Seed) last() ([]byte, error) {
	if len(s.secrets) == 0 {
		return nil, fmt.Errorf("seed operation: %w", ovkpocApperr.ErrNoSeed)
	}

	return s.secrets[len(s.secrets)-1], nil
}

// DeriveOVK derives the ECDSA key pair for the given per-service salt r
// from the most recently negotiated secret (spec section 4.5.2).
func (s *Seed) DeriveOVK(r []byte) (*ecdsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deriveOVKLocked(r)
}

func (s *Seed) deriveOVKLocked(r []byte) (*ecdsa.PrivateKey, error) {
	secret, err := s.last()
	if err != nil {
		return nil, err
	}

	d, err := ovkpocPrimitives.HKDFSHA256(secret, r, nil, ovkpocMagic.HKDFOVKOutputBits/8)
	if err != nil {
		return nil, fmt.Errorf("derive OVK: %w", err)
	}

	priv, err := ovkpocEc.NewECDSAPrivateKeyFromScalar(d)
	if err != nil {
		return nil, fmt.Errorf("derive OVK: %w", err)
	}

	return priv, nil
}

// MacOVK computes HMAC(OVK.d, r||UTF8(svc)) over the OVK derived from r.
func (s *Seed) MacOVK(r []byte, svc string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ovk, err := s.deriveOVKLocked(r)
	if err != nil {
		return nil, err
	}

	return ovkpocPrimitives.HMACSHA256(ovk.D.Bytes(), append(append([]byte{}, r...), []byte(svc)...)), nil
}

// VerifyOVK constant-time checks mac against MacOVK(r, svc).
func (s *Seed) VerifyOVK(r []byte, svc string, mac []byte) (bool, error) {
	expected, err := s.MacOVK(r, svc)
	if err != nil {
		return false, err
	}

	return hmac.Equal(expected, mac), nil
}

// SignOVK ECDSA-signs msg under the OVK derived from r.
func (s *Seed) SignOVK(r []byte, msg []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ovk, err := s.deriveOVKLocked(r)
	if err != nil {
		return nil, err
	}

	return ovkpocEc.Sign(ovk, msg)
}

// IsUpdating reports whether a rotation is in progress: more than one
// negotiated secret is held (spec section 4.5.3).
func (s *Seed) IsUpdating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.secrets) > 1
}

// Update signs the next OVK's canonical JSON under the previous seed's
// OVK, as part of a rotation handshake.
func (s *Seed) Update(prevR []byte, nextOVKPub *ovkpocJwkcodec.ECPublicJWK) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.secrets) < 2 {
		return nil, fmt.Errorf("update: %w", ovkpocApperr.ErrNotUpdating)
	}

	prevSecret := s.secrets[len(s.secrets)-2]

	d, err := ovkpocPrimitives.HKDFSHA256(prevSecret, prevR, nil, ovkpocMagic.HKDFOVKOutputBits/8)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	prevOVK, err := ovkpocEc.NewECDSAPrivateKeyFromScalar(d)
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}

	return ovkpocEc.Sign(prevOVK, ovkpocCanonicaljson.ECPublicJWK(nextOVKPub))
}

// DiscardPrevious drops every negotiated secret except the most recent
// one, committing a rotation once the device has external confirmation
// that its peers adopted the new OVK (spec section 4.5.3: "the device
// decides when to discard the previous seed").
func (s *Seed) DiscardPrevious() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.secrets) > 1 {
		s.secrets = s.secrets[len(s.secrets)-1:]
	}
}

// SecretCount returns the number of negotiated secrets currently held.
func (s *Seed) SecretCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.secrets)
}
