// Copyright (c) 2025 Justin Cranford

package service

import (
	"encoding/base64"
	"fmt"
	"sync"

	ovkpocApperr "ovkpoc/internal/ovkpoc/apperr"
	ovkpocCanonicaljson "ovkpoc/internal/ovkpoc/canonicaljson"
	ovkpocClock "ovkpoc/internal/ovkpoc/clock"
	ovkpocEc "ovkpoc/internal/ovkpoc/ec"
	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
	ovkpocMagic "ovkpoc/internal/ovkpoc/magic"
	ovkpocPrimitives "ovkpoc/internal/ovkpoc/primitives"
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

// Service holds per-user credential and challenge state and serializes
// operations per username while allowing cross-user operations to
// proceed in parallel (spec section 5).
type Service struct {
	clock ovkpocClock.Clock

	mapMu      sync.Mutex
	users      map[string]*CredManager
	challenges map[string][][]byte
	userLocks  sync.Map
}

// New returns an empty Service backed by clock (use clock.System{} in
// production, a clock.Virtual in tests).
func New(clock ovkpocClock.Clock) *Service {
	return &Service{
		clock:      clock,
		users:      map[string]*CredManager{},
		challenges: map[string][][]byte{},
	}
}

func (s *Service) lockUser(username string) func() {
	actual, _ := s.userLocks.LoadOrStore(username, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()

	return mu.Unlock
}

// StartAuthn issues a fresh challenge for username (spec section 4.7.1).
func (s *Service) StartAuthn(username string) (*ovkpocWire.StartAuthnResponse, error) {
	unlock := s.lockUser(username)
	defer unlock()

	challenge, err := ovkpocPrimitives.RandomBytes(ovkpocMagic.ChallengeSizeBytes)
	if err != nil {
		return nil, err
	}

	s.mapMu.Lock()
	s.challenges[username] = append(s.challenges[username], challenge)
	cm := s.users[username]
	s.mapMu.Unlock()

	resp := &ovkpocWire.StartAuthnResponse{ChallengeB64U: b64(challenge)}

	if cm == nil {
		return resp, nil
	}

	creds, ovkm := cm.GetCreds(s.clock)

	credJWKs := make([]*ovkpocJwkcodec.ECPublicJWK, 0, len(creds))
	for _, c := range creds {
		credJWKs = append(credJWKs, c.CredJWK)
	}

	resp.Creds = credJWKs
	resp.OVKM = &ovkm

	return resp, nil
}

func (s *Service) popChallenge(username string) ([]byte, bool) {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	stack := s.challenges[username]
	if len(stack) == 0 {
		return nil, false
	}

	challenge := stack[len(stack)-1]
	s.challenges[username] = stack[:len(stack)-1]

	return challenge, true
}

// Register binds a new or additional credential to username (spec
// section 4.7.2). Every internal failure kind collapses to false at this
// public boundary; register below keeps the distinct apperr cause so
// tests can pinpoint it with errors.Is (spec section 7).
func (s *Service) Register(req ovkpocWire.RegistrationRequest) bool {
	return s.register(req) == nil
}

func (s *Service) register(req ovkpocWire.RegistrationRequest) error {
	unlock := s.lockUser(req.Username)
	defer unlock()

	challenge, ok := s.popChallenge(req.Username)
	if !ok {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrNoChallenge)
	}

	attsKey, err := ovkpocJwkcodec.DecodePublic(req.Cred.Atts.Key)
	if err != nil {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrBadAttestation)
	}

	attsSig, err := unb64(req.Cred.Atts.SigB64U)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	attsMsg := append(append([]byte{}, challenge...), ovkpocCanonicaljson.ECPublicJWK(req.Cred.JWK)...)
	if !ovkpocEc.Verify(attsKey, attsMsg, attsSig) {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrBadAttestation)
	}

	s.mapMu.Lock()
	cm := s.users[req.Username]
	s.mapMu.Unlock()

	if cm == nil {
		if !req.OVKM.IsOVKM() {
			return fmt.Errorf("register: %w", ovkpocApperr.ErrFormat)
		}

		s.mapMu.Lock()
		s.users[req.Username] = NewCredManager(req.Cred.JWK, *req.OVKM.OVKM)
		s.mapMu.Unlock()

		return nil
	}

	if req.OVKM.IsOVKM() {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrDoubleInit)
	}

	if cm.IsUpdating(s.clock) {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrRegistrationLocked)
	}

	trustedOVK, err := ovkpocJwkcodec.DecodePublic(cm.ovkm.OVKJWK)
	if err != nil {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrFormat)
	}

	sig, err := unb64(req.OVKM.SigB64U)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	if !ovkpocEc.Verify(trustedOVK, ovkpocCanonicaljson.ECPublicJWK(req.Cred.JWK), sig) {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrBadOvkSignature)
	}

	if !cm.Add(req.Cred.JWK) {
		return fmt.Errorf("register: %w", ovkpocApperr.ErrRegistrationLocked)
	}

	return nil
}

// Authn verifies a signed challenge response and, if an update piggybacks
// on the request, advances the OVK migration (spec section 4.7.3).
func (s *Service) Authn(req ovkpocWire.AuthnRequest) bool {
	return s.authn(req) == nil
}

func (s *Service) authn(req ovkpocWire.AuthnRequest) error {
	unlock := s.lockUser(req.Username)
	defer unlock()

	if req.Updating != nil {
		if err := s.updateLocked(req.Username, req.CredJWK, req.Updating.UpdateB64U, req.Updating.OVKM); err != nil {
			return fmt.Errorf("authn: %w", err)
		}
	}

	challenge, ok := s.popChallenge(req.Username)
	if !ok {
		return fmt.Errorf("authn: %w", ovkpocApperr.ErrNoChallenge)
	}

	s.mapMu.Lock()
	cm := s.users[req.Username]
	s.mapMu.Unlock()

	if cm == nil {
		return fmt.Errorf("authn: %w", ovkpocApperr.ErrUnknownUser)
	}

	if !cm.FindCredential(req.CredJWK) {
		return fmt.Errorf("authn: %w", ovkpocApperr.ErrNoMatchingCredential)
	}

	sig, err := unb64(req.SigB64U)
	if err != nil {
		return fmt.Errorf("authn: %w", err)
	}

	credPub, err := ovkpocJwkcodec.DecodePublic(req.CredJWK)
	if err != nil {
		return fmt.Errorf("authn: %w", ovkpocApperr.ErrFormat)
	}

	if !ovkpocEc.Verify(credPub, challenge, sig) {
		return fmt.Errorf("authn: %w", ovkpocApperr.ErrNoMatchingCredential)
	}

	return nil
}

// updateLocked implements spec section 4.7.4; callers must already hold
// the per-username lock.
func (s *Service) updateLocked(username string, credJWK *ovkpocJwkcodec.ECPublicJWK, updateSigB64U string, nextOVKM ovkpocWire.OVKM) error {
	s.mapMu.Lock()
	cm := s.users[username]
	s.mapMu.Unlock()

	if cm == nil {
		return fmt.Errorf("update: %w", ovkpocApperr.ErrUnknownUser)
	}

	trustedOVK, err := ovkpocJwkcodec.DecodePublic(cm.ovkm.OVKJWK)
	if err != nil {
		return fmt.Errorf("update: %w", ovkpocApperr.ErrFormat)
	}

	updateSig, err := unb64(updateSigB64U)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if !ovkpocEc.Verify(trustedOVK, ovkpocCanonicaljson.ECPublicJWK(nextOVKM.OVKJWK), updateSig) {
		return fmt.Errorf("update: %w", ovkpocApperr.ErrBadOvkSignature)
	}

	r, err := unb64(nextOVKM.RB64U)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	mac, err := unb64(nextOVKM.MACB64U)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if !cm.AddUpdating(credJWK, nextOVKM.OVKJWK, r, mac, s.clock.Now()) {
		return fmt.Errorf("update: %w", ovkpocApperr.ErrNoMatchingCredential)
	}

	return nil
}

// Delete unconditionally drops username's CredManager and challenge
// stack (spec section 4.7.6).
func (s *Service) Delete(username string) {
	unlock := s.lockUser(username)
	defer unlock()

	s.mapMu.Lock()
	delete(s.users, username)
	delete(s.challenges, username)
	s.mapMu.Unlock()
}

