// Copyright (c) 2025 Justin Cranford

// Package magic centralizes the numeric and string constants scattered
// through the protocol description, so no package carries a bare literal
// whose meaning isn't named at its declaration site.
package magic

import "time"

const (
	// ECCoordinateSizeBytes is the fixed-width encoding length of a P-256
	// field element (and of an OVK HKDF output / HMAC-SHA256 tag).
	ECCoordinateSizeBytes = 32

	// ECDSASignatureSizeBytes is the fixed-width r||s ECDSA signature
	// length for P-256 (two 32-byte big-endian integers).
	ECDSASignatureSizeBytes = 2 * ECCoordinateSizeBytes

	// OVKSaltSizeBytes is the length of the per-service OVK salt r.
	OVKSaltSizeBytes = 16

	// ChallengeSizeBytes is the length of a Service-issued authentication
	// challenge.
	ChallengeSizeBytes = 32

	// HKDFOVKOutputBits is the HKDF-SHA256 output length requested when
	// deriving an OVK private scalar.
	HKDFOVKOutputBits = 256

	// PBES2IterationCount is the PBKDF2 iteration count used by the
	// PbesEnvelope's PBES2-HS256+A128KW key derivation (p2c header field).
	PBES2IterationCount = 1000

	// PBES2SaltSizeBytes is the length of the random PBES2 salt input
	// (p2s header field, prior to the alg-prefix/null-byte concatenation).
	PBES2SaltSizeBytes = 16

	// AESKWKeySizeBytes is the AES-128 key-wrapping key size used by
	// PBES2-HS256+A128KW.
	AESKWKeySizeBytes = 16

	// AESGCMKeySizeBytes is the A128GCM content-encryption key size.
	AESGCMKeySizeBytes = 16

	// AESGCMIVSizeBytes is the 96-bit GCM nonce size.
	AESGCMIVSizeBytes = 12

	// AESGCMTagSizeBytes is the 128-bit GCM authentication tag size.
	AESGCMTagSizeBytes = 16

	// PbesEnvelopeSegmentCount is the number of dot-separated base64url
	// segments in a compact PbesEnvelope: header, encrypted key, iv,
	// ciphertext, tag.
	PbesEnvelopeSegmentCount = 5

	// MigrationWindow is the duration during which OVK migration update
	// messages are collected before CredManager falls back to the
	// most-bindings-wins timeout resolution rule.
	MigrationWindow = 3 * time.Minute

	// ECPublicJWKKty and ECPublicJWKCrv are the fixed JWK type/curve
	// values this protocol ever produces; every OVK, credential, and
	// attestation key is P-256.
	ECPublicJWKKty = "EC"
	ECPublicJWKCrv = "P-256"

	// PBES2Alg and A128GCMEnc are the JOSE algorithm identifiers in the
	// PbesEnvelope header.
	PBES2Alg   = "PBES2-HS256+A128KW"
	A128GCMEnc = "A128GCM"
)
