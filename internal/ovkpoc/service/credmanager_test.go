// Copyright (c) 2025 Justin Cranford

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ovkpocClock "ovkpoc/internal/ovkpoc/clock"
	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
	ovkpocWire "ovkpoc/internal/ovkpoc/wire"
)

func jwk(label string) *ovkpocJwkcodec.ECPublicJWK {
	return &ovkpocJwkcodec.ECPublicJWK{Kty: "EC", Crv: "P-256", X: label + "-x", Y: label + "-y", Kid: label}
}

func wireOVKM(ovk *ovkpocJwkcodec.ECPublicJWK) ovkpocWire.OVKM {
	return ovkpocWire.OVKM{OVKJWK: ovk, RB64U: "r", MACB64U: "mac"}
}

// TestMigrationQuorumCommit is spec section 8 scenario 5: three
// credentials bound to OVK1; once a strict majority (2 of 3) vote for
// OVK2, the Service commits immediately and drops the holdout.
func TestMigrationQuorumCommit(t *testing.T) {
	t.Parallel()

	ovk1, ovk2 := jwk("ovk1"), jwk("ovk2")
	credA, credB, credC := jwk("credA"), jwk("credB"), jwk("credC")

	cm := NewCredManager(credA, wireOVKM(ovk1))
	require.True(t, cm.Add(credB))
	require.True(t, cm.Add(credC))

	clock := ovkpocClock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	require.True(t, cm.AddUpdating(credA, ovk2, []byte("r2"), []byte("mac2"), clock.Now()))
	require.True(t, cm.IsUpdating(clock)) // migration started, single vote is not yet a majority.

	require.True(t, cm.AddUpdating(credB, ovk2, []byte("r2"), []byte("mac2"), clock.Now()))

	require.Equal(t, "ovk2", cm.ovkm.OVKJWK.Kid)
	require.Len(t, cm.creds, 2)

	for _, entry := range cm.creds {
		require.Equal(t, "ovk2", entry.OVKJWK.Kid)
	}
}

// TestMigrationTimeoutResolution is spec section 8 scenario 6.
func TestMigrationTimeoutResolution(t *testing.T) {
	t.Parallel()

	ovk1, ovk2, ovk3 := jwk("ovk1"), jwk("ovk2"), jwk("ovk3")
	credA, credB, credC := jwk("credA"), jwk("credB"), jwk("credC")

	cm := NewCredManager(credA, wireOVKM(ovk1))
	require.True(t, cm.Add(credB))
	require.True(t, cm.Add(credC))

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := ovkpocClock.NewVirtual(start)

	require.True(t, cm.AddUpdating(credA, ovk2, []byte("r2"), []byte("mac2"), clock.Now()))

	clock.Advance(time.Minute)
	require.True(t, cm.AddUpdating(credB, ovk3, []byte("r3"), []byte("mac3"), clock.Now()))

	require.True(t, cm.IsUpdating(clock)) // still within the 3-minute window.

	clock.Advance(4 * time.Minute)

	require.False(t, cm.IsUpdating(clock)) // timeout resolution fires here.
	require.Equal(t, "ovk2", cm.ovkm.OVKJWK.Kid)
	require.Len(t, cm.creds, 1)
	require.Equal(t, "credA", cm.creds[0].CredJWK.Kid)
}

func TestAddFailsDuringMigration(t *testing.T) {
	t.Parallel()

	ovk1, ovk2 := jwk("ovk1"), jwk("ovk2")
	credA, credB := jwk("credA"), jwk("credB")

	cm := NewCredManager(credA, wireOVKM(ovk1))

	clock := ovkpocClock.NewVirtual(time.Now())
	require.True(t, cm.AddUpdating(credA, ovk2, []byte("r"), []byte("mac"), clock.Now()))

	require.False(t, cm.Add(credB))
}

func TestAddUpdatingFailsForUnknownCredential(t *testing.T) {
	t.Parallel()

	ovk1, ovk2 := jwk("ovk1"), jwk("ovk2")
	credA, credZ := jwk("credA"), jwk("credZ")

	cm := NewCredManager(credA, wireOVKM(ovk1))

	require.False(t, cm.AddUpdating(credZ, ovk2, []byte("r"), []byte("mac"), time.Now()))
}
