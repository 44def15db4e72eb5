// Copyright (c) 2025 Justin Cranford

// Package service implements the Service and CredManager components
// (spec section 4.7): challenge issuance, registration and
// authentication dispatch, and the per-user OVK migration state
// machine with its quorum and timeout resolution rules.
package service

import (
	"encoding/base64"
	"time"

	ovkpocClock "ovkpoc/internal/ovkpoc/clock"
	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
	ovkpocMagic "ovkpoc/internal/ovkpoc/magic"
	ovkpocWire "ovkpoc/internal/ovkpoc/wire"
)

// CredEntry binds one credential public key to the OVK it currently
// trusts, which may lag behind CredManager.ovkm during a migration.
type CredEntry struct {
	CredJWK *ovkpocJwkcodec.ECPublicJWK
	OVKJWK  *ovkpocJwkcodec.ECPublicJWK
}

type candidate struct {
	ovkm        ovkpocWire.OVKM
	firstSeenAt time.Time
}

type migration struct {
	candidates []candidate
	startAt    time.Time
}

// CredManager holds one user's credential set, trusted OVKM, and any
// in-progress migration (spec section 4.7.5).
type CredManager struct {
	creds []CredEntry
	ovkm  ovkpocWire.OVKM
	next  *migration
}

// NewCredManager initializes a CredManager with the first registered
// credential bound to ovkm.
func NewCredManager(cred *ovkpocJwkcodec.ECPublicJWK, ovkm ovkpocWire.OVKM) *CredManager {
	return &CredManager{
		creds: []CredEntry{{CredJWK: cred, OVKJWK: ovkm.OVKJWK}},
		ovkm:  ovkm,
	}
}

// Add binds a new credential to the currently trusted OVK. Fails if a
// migration is in progress.
func (cm *CredManager) Add(cred *ovkpocJwkcodec.ECPublicJWK) bool {
	if cm.next != nil {
		return false
	}

	cm.creds = append(cm.creds, CredEntry{CredJWK: cred, OVKJWK: cm.ovkm.OVKJWK})

	return true
}

// FindCredential reports whether cred is bound in this CredManager.
func (cm *CredManager) FindCredential(cred *ovkpocJwkcodec.ECPublicJWK) bool {
	for _, entry := range cm.creds {
		if ovkpocJwkcodec.EqualPublic(entry.CredJWK, cred) {
			return true
		}
	}

	return false
}

func (cm *CredManager) credIndex(cred *ovkpocJwkcodec.ECPublicJWK) int {
	for i, entry := range cm.creds {
		if ovkpocJwkcodec.EqualPublic(entry.CredJWK, cred) {
			return i
		}
	}

	return -1
}

// AddUpdating records one device's vote for nextOVK as the new trusted
// OVK, rebinding cred to it, and commits immediately on strict majority
// (spec section 4.7.5).
func (cm *CredManager) AddUpdating(cred *ovkpocJwkcodec.ECPublicJWK, nextOVK *ovkpocJwkcodec.ECPublicJWK, r, mac []byte, now time.Time) bool {
	i := cm.credIndex(cred)
	if i < 0 {
		return false
	}

	cm.creds[i].OVKJWK = nextOVK

	if cm.next == nil {
		cm.next = &migration{startAt: now}
	}

	found := false

	for _, c := range cm.next.candidates {
		if ovkpocJwkcodec.EqualPublic(c.ovkm.OVKJWK, nextOVK) {
			found = true

			break
		}
	}

	if !found {
		cm.next.candidates = append(cm.next.candidates, candidate{
			ovkm:        ovkpocWire.OVKM{OVKJWK: nextOVK, RB64U: wireB64(r), MACB64U: wireB64(mac)},
			firstSeenAt: now,
		})
	}

	total := len(cm.creds)
	nextCount := 0

	for _, entry := range cm.creds {
		if ovkpocJwkcodec.EqualPublic(entry.OVKJWK, nextOVK) {
			nextCount++
		}
	}

	if nextCount > total/2 {
		cm.commit(nextOVK)
	}

	return true
}

func (cm *CredManager) commit(chosenOVK *ovkpocJwkcodec.ECPublicJWK) {
	if !ovkpocJwkcodec.EqualPublic(chosenOVK, cm.ovkm.OVKJWK) {
		for _, c := range cm.next.candidates {
			if ovkpocJwkcodec.EqualPublic(c.ovkm.OVKJWK, chosenOVK) {
				cm.ovkm = c.ovkm

				break
			}
		}
	}

	retained := cm.creds[:0]

	for _, entry := range cm.creds {
		if ovkpocJwkcodec.EqualPublic(entry.OVKJWK, chosenOVK) {
			retained = append(retained, entry)
		}
	}

	cm.creds = retained
	cm.next = nil
}

// IsUpdating reports whether a migration is in progress, resolving a
// timed-out migration (by largest-count vote, ties broken by earliest
// first-seen) as a side effect of the check (spec section 4.7.5, 9).
func (cm *CredManager) IsUpdating(clock ovkpocClock.Clock) bool {
	if cm.next == nil {
		return false
	}

	if clock.Now().Sub(cm.next.startAt) <= ovkpocMagic.MigrationWindow {
		return true
	}

	cm.resolveTimeout()

	return false
}

// resolveTimeout picks the candidate OVK with the most credential
// bindings, ties broken by earliest first-seen (spec section 4.7.5, 9).
// Only recorded candidates compete; the untouched original OVK is never
// re-adopted as a "winner" once at least one candidate exists, matching
// the worked timeout scenario in spec section 8 where a credential left
// on the original OVK is pruned rather than causing the original to win
// a three-way count tie (decision recorded in the grounding ledger).
func (cm *CredManager) resolveTimeout() {
	counts := map[string]int{}
	for _, entry := range cm.creds {
		counts[entry.OVKJWK.Kid]++
	}

	best := cm.next.candidates[0]
	bestCount := counts[best.ovkm.OVKJWK.Kid]

	for _, c := range cm.next.candidates[1:] {
		count := counts[c.ovkm.OVKJWK.Kid]

		if count > bestCount || (count == bestCount && c.firstSeenAt.Before(best.firstSeenAt)) {
			best, bestCount = c, count
		}
	}

	cm.commit(best.ovkm.OVKJWK)
}

// GetCreds returns the CredManager's current visible state: credential
// bindings, trusted OVKM, and candidate OVKMs if a migration is still
// in progress (timing fields stripped per spec section 4.7.5).
func (cm *CredManager) GetCreds(clock ovkpocClock.Clock) ([]CredEntry, ovkpocWire.OVKM) {
	updating := cm.IsUpdating(clock)

	ovkm := cm.ovkm
	if updating {
		next := make([]ovkpocWire.OVKM, 0, len(cm.next.candidates))
		for _, c := range cm.next.candidates {
			next = append(next, ovkpocWire.OVKM{OVKJWK: c.ovkm.OVKJWK, RB64U: c.ovkm.RB64U, MACB64U: c.ovkm.MACB64U})
		}

		ovkm.Next = next
	}

	return cm.creds, ovkm
}

func wireB64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
