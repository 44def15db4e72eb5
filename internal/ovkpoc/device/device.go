// Copyright (c) 2025 Justin Cranford

// Package device implements the Device orchestration layer (spec section
// 4.6): one Seed, one long-lived attestation key, a credential store, and
// the password-wrapped transport for Seed negotiation messages.
package device

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	ovkpocApperr "ovkpoc/internal/ovkpoc/apperr"
	ovkpocCanonicaljson "ovkpoc/internal/ovkpoc/canonicaljson"
	ovkpocEc "ovkpoc/internal/ovkpoc/ec"
	ovkpocEnvelope "ovkpoc/internal/ovkpoc/envelope"
	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
	ovkpocMagic "ovkpoc/internal/ovkpoc/magic"
	ovkpocPrimitives "ovkpoc/internal/ovkpoc/primitives"
	ovkpocSeed "ovkpoc/internal/ovkpoc/seed"
	ovkpocWire "ovkpoc/internal/ovkpoc/wire"
)

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ovkpocApperr.ErrFormat, err)
	}

	return b, nil
}

// negotiationState is the Device-owned bookkeeping that Seed itself does
// not retain across negotiation rounds: the fixed ring metadata, the
// negotiation password, and the accumulated mine/partner epk maps (spec
// section 4.6.1).
type negotiationState struct {
	pw        []byte
	devID     string
	partnerID string
	devNum    int
	updating  bool
	mine      map[int]*ovkpocJwkcodec.ECPublicJWK
	partner   map[int]*ovkpocJwkcodec.ECPublicJWK
}

// Device owns one Seed, one attestation key, and a credential store.
type Device struct {
	mu           sync.Mutex
	seed         *ovkpocSeed.Seed
	attestation  *ecdsa.PrivateKey
	credentials  []*ecdsa.PrivateKey
	negotiation  *negotiationState
}

// New creates a Device with a fresh attestation key and an empty Seed.
func New() (*Device, error) {
	attestation, err := ovkpocEc.GenerateECDSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("new device: %w", err)
	}

	return &Device{
		seed:        ovkpocSeed.New(),
		attestation: attestation,
	}, nil
}

// Seed returns the device's Seed for test and orchestration use.
func (d *Device) Seed() *ovkpocSeed.Seed { return d.seed }

type epkWire map[string]*ovkpocJwkcodec.ECPublicJWK

func toEpkWire(m map[int]*ovkpocJwkcodec.ECPublicJWK) epkWire {
	out := make(epkWire, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}

	return out
}

func fromEpkWire(m epkWire) (map[int]*ovkpocJwkcodec.ECPublicJWK, error) {
	out := make(map[int]*ovkpocJwkcodec.ECPublicJWK, len(m))

	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("negotiation message: %w", ovkpocApperr.ErrFormat)
		}

		out[i] = v
	}

	return out, nil
}

// InitSeedNegotiation resets this device's negotiation bookkeeping and
// produces the first password-wrapped negotiation message (spec section
// 4.6.1).
func (d *Device) InitSeedNegotiation(pw []byte, devID, partnerID string, devNum int, updating bool) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.negotiation = &negotiationState{
		pw:        pw,
		devID:     devID,
		partnerID: partnerID,
		devNum:    devNum,
		updating:  updating,
		mine:      map[int]*ovkpocJwkcodec.ECPublicJWK{},
		partner:   map[int]*ovkpocJwkcodec.ECPublicJWK{},
	}

	meta := ovkpocSeed.Meta{ID: devID, PartnerID: partnerID, DevNum: devNum}

	_, epkOut, err := d.seed.Negotiate(meta, nil, nil, updating)
	if err != nil {
		return "", fmt.Errorf("init seed negotiation: %w", err)
	}

	for k, v := range epkOut {
		d.negotiation.mine[k] = v
	}

	return d.sealNegotiationMessage(devID, d.negotiation.mine)
}

func (d *Device) sealNegotiationMessage(senderID string, epk map[int]*ovkpocJwkcodec.ECPublicJWK) (string, error) {
	epkJSON, err := json.Marshal(toEpkWire(epk))
	if err != nil {
		return "", fmt.Errorf("seal negotiation message: %w", err)
	}

	payload := []byte(senderID + "." + string(epkJSON))

	compact, err := ovkpocEnvelope.Seal(d.negotiation.pw, payload)
	if err != nil {
		return "", fmt.Errorf("seal negotiation message: %w", err)
	}

	return compact, nil
}

// SeedNegotiating decrypts an incoming negotiation message, advances the
// Seed ring protocol by one step, and returns whether negotiation is
// complete along with the next outbound ciphertext (spec section 4.6.1).
func (d *Device) SeedNegotiating(ciphertext string) (bool, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.negotiation == nil {
		return false, "", fmt.Errorf("seed negotiating: %w", ovkpocApperr.ErrInvalidState)
	}

	plaintext, err := ovkpocEnvelope.Open(d.negotiation.pw, ciphertext)
	if err != nil {
		return false, "", fmt.Errorf("seed negotiating: %w", ovkpocApperr.ErrDecrypt)
	}

	senderID, epkJSON, found := strings.Cut(string(plaintext), ".")
	if !found {
		return false, "", fmt.Errorf("seed negotiating: %w", ovkpocApperr.ErrFormat)
	}

	var wireEpk epkWire
	if err := json.Unmarshal([]byte(epkJSON), &wireEpk); err != nil {
		return false, "", fmt.Errorf("seed negotiating: %w: %w", ovkpocApperr.ErrFormat, err)
	}

	incoming, err := fromEpkWire(wireEpk)
	if err != nil {
		return false, "", err
	}

	if senderID == d.negotiation.partnerID {
		for k, v := range incoming {
			d.negotiation.partner[k] = v
		}
	}

	meta := ovkpocSeed.Meta{
		ID:        d.negotiation.devID,
		PartnerID: d.negotiation.partnerID,
		DevNum:    d.negotiation.devNum,
	}

	completion, epkOut, err := d.seed.Negotiate(meta, d.negotiation.mine, d.negotiation.partner, d.negotiation.updating)
	if err != nil {
		return false, "", fmt.Errorf("seed negotiating: %w", err)
	}

	for k, v := range epkOut {
		d.negotiation.mine[k] = v
	}

	next, err := d.sealNegotiationMessage(d.negotiation.devID, d.negotiation.mine)
	if err != nil {
		return false, "", err
	}

	if completion {
		d.negotiation = nil
	}

	return completion, next, nil
}

// RegisterResult is Device.Register's output: a fresh credential bundle
// plus either a brand-new OVKM (initial registration) or a signature
// binding the credential to the caller's already-trusted OVK (seamless
// registration).
type RegisterResult struct {
	Cred    ovkpocWire.CredentialBundle
	OVKM    *ovkpocWire.OVKM
	SigB64U string
}

// Register creates a fresh credential and attests it, optionally binding
// it to an existing OVKM (spec section 4.6.2).
func (d *Device) Register(svcID string, challenge []byte, existing *ovkpocWire.OVKM) (*RegisterResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	credPriv, err := ovkpocEc.GenerateECDSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	d.credentials = append(d.credentials, credPriv)

	credJWK, err := ovkpocJwkcodec.EncodePublic(&credPriv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	attsMsg := append(append([]byte{}, challenge...), ovkpocCanonicaljson.ECPublicJWK(credJWK)...)

	attsSig, err := ovkpocEc.Sign(d.attestation, attsMsg)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	attsKeyJWK, err := ovkpocJwkcodec.EncodePublic(&d.attestation.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	bundle := ovkpocWire.CredentialBundle{
		JWK: credJWK,
		Atts: ovkpocWire.Attestation{
			SigB64U: b64(attsSig),
			Key:     attsKeyJWK,
		},
	}

	if existing == nil {
		r, err := ovkpocPrimitives.RandomBytes(ovkpocMagic.OVKSaltSizeBytes)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}

		ovkPriv, err := d.seed.DeriveOVK(r)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}

		ovkJWK, err := ovkpocJwkcodec.EncodePublic(&ovkPriv.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}

		mac, err := d.seed.MacOVK(r, svcID)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}

		return &RegisterResult{
			Cred: bundle,
			OVKM: &ovkpocWire.OVKM{OVKJWK: ovkJWK, RB64U: b64(r), MACB64U: b64(mac)},
		}, nil
	}

	r, err := unb64(existing.RB64U)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	mac, err := unb64(existing.MACB64U)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	ok, err := d.seed.VerifyOVK(r, svcID, mac)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("register: %w", ovkpocApperr.ErrOvkVerifyFailed)
	}

	ovkSig, err := d.seed.SignOVK(r, ovkpocCanonicaljson.ECPublicJWK(credJWK))
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	return &RegisterResult{Cred: bundle, SigB64U: b64(ovkSig)}, nil
}

// AuthnResult is Device.Authn's output.
type AuthnResult struct {
	CredJWK  *ovkpocJwkcodec.ECPublicJWK
	SigB64U  string
	Updating *ovkpocWire.Updating
}

// Authn signs the service challenge under a matching stored credential,
// and, while a rotation is in progress, advances the migration handshake
// (spec section 4.6.3).
func (d *Device) Authn(svcID string, challenge []byte, svcCreds []*ovkpocJwkcodec.ECPublicJWK, current *ovkpocWire.OVKM) (*AuthnResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	credPriv, credJWK, err := d.findMatchingCredential(svcCreds)
	if err != nil {
		return nil, err
	}

	sig, err := ovkpocEc.Sign(credPriv, challenge)
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	result := &AuthnResult{CredJWK: credJWK, SigB64U: b64(sig)}

	if !d.seed.IsUpdating() {
		return result, nil
	}

	if current == nil {
		return result, nil
	}

	currentR, err := unb64(current.RB64U)
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	for _, candidate := range current.Next {
		candR, err := unb64(candidate.RB64U)
		if err != nil {
			continue
		}

		candMAC, err := unb64(candidate.MACB64U)
		if err != nil {
			continue
		}

		ok, err := d.seed.VerifyOVK(candR, svcID, candMAC)
		if err == nil && ok {
			updateSig, err := d.seed.Update(currentR, candidate.OVKJWK)
			if err != nil {
				return nil, fmt.Errorf("authn: %w", err)
			}

			result.Updating = &ovkpocWire.Updating{UpdateB64U: b64(updateSig), OVKM: candidate}

			return result, nil
		}
	}

	r, err := ovkpocPrimitives.RandomBytes(ovkpocMagic.OVKSaltSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	ovkPriv, err := d.seed.DeriveOVK(r)
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	ovkJWK, err := ovkpocJwkcodec.EncodePublic(&ovkPriv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	mac, err := d.seed.MacOVK(r, svcID)
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	updateSig, err := d.seed.Update(currentR, ovkJWK)
	if err != nil {
		return nil, fmt.Errorf("authn: %w", err)
	}

	result.Updating = &ovkpocWire.Updating{
		UpdateB64U: b64(updateSig),
		OVKM:       ovkpocWire.OVKM{OVKJWK: ovkJWK, RB64U: b64(r), MACB64U: b64(mac)},
	}

	return result, nil
}

func (d *Device) findMatchingCredential(svcCreds []*ovkpocJwkcodec.ECPublicJWK) (*ecdsa.PrivateKey, *ovkpocJwkcodec.ECPublicJWK, error) {
	for _, credPriv := range d.credentials {
		jwk, err := ovkpocJwkcodec.EncodePublic(&credPriv.PublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("authn: %w", err)
		}

		for _, want := range svcCreds {
			if ovkpocJwkcodec.EqualPublic(jwk, want) {
				return credPriv, jwk, nil
			}
		}
	}

	return nil, nil, fmt.Errorf("authn: %w", ovkpocApperr.ErrNoMatchingCredential)
}
