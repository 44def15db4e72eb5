// Copyright (c) 2025 Justin Cranford

// Package apperr defines the typed error kinds raised by the ovkpoc
// protocol state machines. Every Seed/Device/Service failure is one of the
// sentinel errors below, wrapped with context via fmt.Errorf("...: %w", ...)
// so callers can pinpoint the cause with errors.Is while the Service
// boundary still collapses everything to a bool.
package apperr

import "errors"

var (
	// ErrInvalidState is raised by Seed.Negotiate when the update flag is
	// inconsistent with the number of seeds already held.
	ErrInvalidState = errors.New("invalid state")
	// ErrMetaMismatch is raised by Seed.Negotiate when the negotiation
	// metadata changes across rounds of the same ceremony.
	ErrMetaMismatch = errors.New("negotiation metadata mismatch")
	// ErrNotUpdating is raised by Seed.Update when fewer than two seeds
	// are held.
	ErrNotUpdating = errors.New("seed is not mid-rotation")
	// ErrNoSeed is raised by OVK derivation/MAC/sign operations when
	// negotiation has not completed.
	ErrNoSeed = errors.New("no seed available")
	// ErrDecrypt is raised by the PbesEnvelope on any decryption failure.
	ErrDecrypt = errors.New("envelope decryption failed")
	// ErrFormat is raised on malformed envelopes or negotiation payloads.
	ErrFormat = errors.New("malformed payload")
	// ErrOvkVerifyFailed is raised by Device.Register (seamless path) when
	// the supplied OVKM does not validate under the device's seed.
	ErrOvkVerifyFailed = errors.New("ovk verification failed")
	// ErrNoMatchingCredential is raised by Device.Authn when the device
	// holds no credential private key matching the service's list.
	ErrNoMatchingCredential = errors.New("no matching credential")
	// ErrBadAttestation is raised by Service.Register when attestation
	// signature verification fails.
	ErrBadAttestation = errors.New("bad attestation signature")
	// ErrBadOvkSignature is raised by Service.Register/Update when a
	// signature under the trusted OVK fails to verify.
	ErrBadOvkSignature = errors.New("bad ovk signature")
	// ErrNoChallenge is raised when no pending challenge exists for a user.
	ErrNoChallenge = errors.New("no pending challenge")
	// ErrUnknownUser is raised when a username has no CredManager entry.
	ErrUnknownUser = errors.New("unknown user")
	// ErrDoubleInit is raised when an OVKM is supplied for a user that
	// already exists.
	ErrDoubleInit = errors.New("user already initialized")
	// ErrRegistrationLocked is raised when registration is attempted while
	// the user's CredManager is mid-migration.
	ErrRegistrationLocked = errors.New("registration locked during migration")
)

// all is the registry IsAppErr consults; keep in sync with the vars above.
var all = []error{
	ErrInvalidState,
	ErrMetaMismatch,
	ErrNotUpdating,
	ErrNoSeed,
	ErrDecrypt,
	ErrFormat,
	ErrOvkVerifyFailed,
	ErrNoMatchingCredential,
	ErrBadAttestation,
	ErrBadOvkSignature,
	ErrNoChallenge,
	ErrUnknownUser,
	ErrDoubleInit,
	ErrRegistrationLocked,
}

// IsAppErr reports whether target wraps one of the sentinel errors defined
// in this package.
func IsAppErr(target error) bool {
	if target == nil {
		return false
	}

	for _, e := range all {
		if errors.Is(target, e) {
			return true
		}
	}

	return false
}
