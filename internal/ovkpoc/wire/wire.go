// Copyright (c) 2025 Justin Cranford

// Package wire defines the exact JSON message shapes exchanged between
// Device and Service (spec section 6). Field names and base64url
// encodings are normative; nothing here reorders or renames a member.
package wire

import ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"

// OVKM is the per-service OVK binding a device negotiates and a Service
// stores: the OVK public key plus the salt and MAC that prove a device
// holding the right Seed derived it.
type OVKM struct {
	OVKJWK *ovkpocJwkcodec.ECPublicJWK `json:"ovk_jwk"`
	RB64U  string                      `json:"r_b64u"`
	MACB64U string                     `json:"mac_b64u"`
	Next   []OVKM                      `json:"next,omitempty"`
}

// Attestation is the attestation signature accompanying a freshly
// generated credential during registration.
type Attestation struct {
	SigB64U string                      `json:"sig_b64u"`
	Key     *ovkpocJwkcodec.ECPublicJWK `json:"key"`
}

// CredentialBundle pairs a credential public key with its attestation.
type CredentialBundle struct {
	JWK  *ovkpocJwkcodec.ECPublicJWK `json:"jwk"`
	Atts Attestation                 `json:"atts"`
}

// RegistrationOVKMOrSig is the registration request's polymorphic third
// field: either a fresh OVKM (initial registration) or a signature over
// the credential JWK under an already-trusted OVK (seamless
// registration, i.e. a second-or-later device for the same user).
type RegistrationOVKMOrSig struct {
	OVKM    *OVKM  `json:"ovkm,omitempty"`
	SigB64U string `json:"sig_b64u,omitempty"`
}

// IsOVKM reports whether this registration payload carries a fresh OVKM
// rather than a signature.
func (r RegistrationOVKMOrSig) IsOVKM() bool { return r.OVKM != nil }

// StartAuthnRequest begins a challenge/response cycle for username.
type StartAuthnRequest struct {
	Username string `json:"username"`
}

// StartAuthnResponse carries a fresh challenge, plus the user's known
// credentials and current OVKM once the user is registered.
type StartAuthnResponse struct {
	ChallengeB64U string                        `json:"challenge_b64u"`
	Creds         []*ovkpocJwkcodec.ECPublicJWK `json:"creds,omitempty"`
	OVKM          *OVKM                         `json:"ovkm,omitempty"`
}

// RegistrationRequest binds a new or additional credential to a user.
type RegistrationRequest struct {
	Username string                 `json:"username"`
	Cred     CredentialBundle       `json:"cred"`
	OVKM     RegistrationOVKMOrSig  `json:"ovkm"`
}

// Updating carries a rotation-in-progress signature and the candidate
// OVKM it vouches for, piggybacked on an AuthnRequest.
type Updating struct {
	UpdateB64U string `json:"update_b64u"`
	OVKM       OVKM   `json:"ovkm"`
}

// AuthnRequest answers a challenge with a signature under a known
// credential, optionally advancing an in-progress OVK migration.
type AuthnRequest struct {
	Username string                      `json:"username"`
	CredJWK  *ovkpocJwkcodec.ECPublicJWK `json:"cred_jwk"`
	SigB64U  string                      `json:"sig_b64u"`
	Updating *Updating                   `json:"updating,omitempty"`
}
