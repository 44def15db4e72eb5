// Copyright (c) 2025 Justin Cranford

package service_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ovkpocClock "ovkpoc/internal/ovkpoc/clock"
	ovkpocDevice "ovkpoc/internal/ovkpoc/device"
	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
	ovkpocSeed "ovkpoc/internal/ovkpoc/seed"
	ovkpocService "ovkpoc/internal/ovkpoc/service"
	ovkpocWire "ovkpoc/internal/ovkpoc/wire"
)

func newDevice(t *testing.T) *ovkpocDevice.Device {
	t.Helper()

	d, err := ovkpocDevice.New()
	require.NoError(t, err)

	return d
}

func shareSeed(t *testing.T, a, b *ovkpocDevice.Device) {
	t.Helper()

	metaA := ovkpocSeed.Meta{ID: "devA", PartnerID: "devB", DevNum: 2}
	metaB := ovkpocSeed.Meta{ID: "devB", PartnerID: "devA", DevNum: 2}

	mineA := map[int]*ovkpocJwkcodec.ECPublicJWK{}
	mineB := map[int]*ovkpocJwkcodec.ECPublicJWK{}
	partnerA := map[int]*ovkpocJwkcodec.ECPublicJWK{}
	partnerB := map[int]*ovkpocJwkcodec.ECPublicJWK{}

	completeA, completeB := false, false

	for round := 0; round < 6 && !(completeA && completeB); round++ {
		if !completeA {
			c, out, err := a.Seed().Negotiate(metaA, mineA, partnerA, false)
			require.NoError(t, err)

			for k, v := range out {
				mineA[k] = v
				partnerB[k] = v
			}

			completeA = c
		}

		if !completeB {
			c, out, err := b.Seed().Negotiate(metaB, mineB, partnerB, false)
			require.NoError(t, err)

			for k, v := range out {
				mineB[k] = v
				partnerA[k] = v
			}

			completeB = c
		}
	}

	require.True(t, completeA)
	require.True(t, completeB)
}

func toRegistrationRequest(username string, r *ovkpocDevice.RegisterResult) ovkpocWire.RegistrationRequest {
	return ovkpocWire.RegistrationRequest{
		Username: username,
		Cred:     r.Cred,
		OVKM:     ovkpocWire.RegistrationOVKMOrSig{OVKM: r.OVKM, SigB64U: r.SigB64U},
	}
}

func toAuthnRequest(username string, r *ovkpocDevice.AuthnResult) ovkpocWire.AuthnRequest {
	return ovkpocWire.AuthnRequest{
		Username: username,
		CredJWK:  r.CredJWK,
		SigB64U:  r.SigB64U,
		Updating: r.Updating,
	}
}

// TestSingleDeviceRegistrationAndLogin is spec section 8 scenario 1.
func TestSingleDeviceRegistrationAndLogin(t *testing.T) {
	t.Parallel()

	a := newDevice(t)
	b := newDevice(t)
	shareSeed(t, a, b)

	svc := ovkpocService.New(ovkpocClock.System{})
	username := "alice"

	startResp, err := svc.StartAuthn(username)
	require.NoError(t, err)
	require.Nil(t, startResp.OVKM)

	challenge, err := decodeB64(startResp.ChallengeB64U)
	require.NoError(t, err)

	reg, err := a.Register("svc1", challenge, nil)
	require.NoError(t, err)

	require.True(t, svc.Register(toRegistrationRequest(username, reg)))

	startResp2, err := svc.StartAuthn(username)
	require.NoError(t, err)
	require.Len(t, startResp2.Creds, 1)

	loginChallenge, err := decodeB64(startResp2.ChallengeB64U)
	require.NoError(t, err)

	authnRes, err := a.Authn("svc1", loginChallenge, startResp2.Creds, startResp2.OVKM)
	require.NoError(t, err)

	require.True(t, svc.Authn(toAuthnRequest(username, authnRes)))
}

// TestTwoDeviceSeamlessRegistration is spec section 8 scenario 2.
func TestTwoDeviceSeamlessRegistration(t *testing.T) {
	t.Parallel()

	a := newDevice(t)
	b := newDevice(t)
	shareSeed(t, a, b)

	svc := ovkpocService.New(ovkpocClock.System{})
	username := "bob"

	startResp, err := svc.StartAuthn(username)
	require.NoError(t, err)

	challengeA, err := decodeB64(startResp.ChallengeB64U)
	require.NoError(t, err)

	regA, err := a.Register("svc1", challengeA, nil)
	require.NoError(t, err)
	require.True(t, svc.Register(toRegistrationRequest(username, regA)))

	startForB, err := svc.StartAuthn(username)
	require.NoError(t, err)
	require.NotNil(t, startForB.OVKM)

	challengeB, err := decodeB64(startForB.ChallengeB64U)
	require.NoError(t, err)

	regB, err := b.Register("svc1", challengeB, startForB.OVKM)
	require.NoError(t, err)
	require.Empty(t, regB.OVKM)

	require.True(t, svc.Register(toRegistrationRequest(username, regB)))
}

// TestRegisterFailsWithoutPendingChallenge exercises the NoChallenge kind
// collapsing to false at the Service boundary.
func TestRegisterFailsWithoutPendingChallenge(t *testing.T) {
	t.Parallel()

	a := newDevice(t)
	b := newDevice(t)
	shareSeed(t, a, b)

	svc := ovkpocService.New(ovkpocClock.System{})

	reg, err := a.Register("svc1", make([]byte, 32), nil)
	require.NoError(t, err)

	require.False(t, svc.Register(toRegistrationRequest("nobody-asked", reg)))
}

func TestTwoDeviceMigrationQuorumThroughService(t *testing.T) {
	t.Parallel()

	clock := ovkpocClock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := ovkpocService.New(clock)
	username := "carol"

	a := newDevice(t)
	b := newDevice(t)
	shareSeed(t, a, b)

	startResp, err := svc.StartAuthn(username)
	require.NoError(t, err)

	challengeA, err := decodeB64(startResp.ChallengeB64U)
	require.NoError(t, err)

	regA, err := a.Register("svc1", challengeA, nil)
	require.NoError(t, err)
	require.True(t, svc.Register(toRegistrationRequest(username, regA)))

	startForB, err := svc.StartAuthn(username)
	require.NoError(t, err)

	challengeB, err := decodeB64(startForB.ChallengeB64U)
	require.NoError(t, err)

	regB, err := b.Register("svc1", challengeB, startForB.OVKM)
	require.NoError(t, err)
	require.True(t, svc.Register(toRegistrationRequest(username, regB)))

	// Rotate the seed: both devices negotiate a second, additional secret.
	rotate(t, a, b)

	startForA, err := svc.StartAuthn(username)
	require.NoError(t, err)

	loginChallengeA, err := decodeB64(startForA.ChallengeB64U)
	require.NoError(t, err)

	authnA, err := a.Authn("svc1", loginChallengeA, startForA.Creds, startForA.OVKM)
	require.NoError(t, err)
	require.NotNil(t, authnA.Updating)
	require.True(t, svc.Authn(toAuthnRequest(username, authnA)))

	startForB2, err := svc.StartAuthn(username)
	require.NoError(t, err)
	require.NotNil(t, startForB2.OVKM)
	require.NotEmpty(t, startForB2.OVKM.Next)

	loginChallengeB, err := decodeB64(startForB2.ChallengeB64U)
	require.NoError(t, err)

	authnB, err := b.Authn("svc1", loginChallengeB, startForB2.Creds, startForB2.OVKM)
	require.NoError(t, err)
	require.NotNil(t, authnB.Updating)
	require.True(t, svc.Authn(toAuthnRequest(username, authnB)))

	finalStart, err := svc.StartAuthn(username)
	require.NoError(t, err)
	require.Empty(t, finalStart.OVKM.Next)
	require.Len(t, finalStart.Creds, 2)
}

func rotate(t *testing.T, a, b *ovkpocDevice.Device) {
	t.Helper()

	metaA := ovkpocSeed.Meta{ID: "devA", PartnerID: "devB", DevNum: 2}
	metaB := ovkpocSeed.Meta{ID: "devB", PartnerID: "devA", DevNum: 2}

	mineA := map[int]*ovkpocJwkcodec.ECPublicJWK{}
	mineB := map[int]*ovkpocJwkcodec.ECPublicJWK{}
	partnerA := map[int]*ovkpocJwkcodec.ECPublicJWK{}
	partnerB := map[int]*ovkpocJwkcodec.ECPublicJWK{}

	completeA, completeB := false, false

	for round := 0; round < 6 && !(completeA && completeB); round++ {
		if !completeA {
			c, out, err := a.Seed().Negotiate(metaA, mineA, partnerA, true)
			require.NoError(t, err)

			for k, v := range out {
				mineA[k] = v
				partnerB[k] = v
			}

			completeA = c
		}

		if !completeB {
			c, out, err := b.Seed().Negotiate(metaB, mineB, partnerB, true)
			require.NoError(t, err)

			for k, v := range out {
				mineB[k] = v
				partnerA[k] = v
			}

			completeB = c
		}
	}

	require.True(t, completeA)
	require.True(t, completeB)
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
