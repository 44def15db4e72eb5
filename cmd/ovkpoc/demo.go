// Copyright (c) 2025 Justin Cranford

package main

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	ovkpocClock "ovkpoc/internal/ovkpoc/clock"
	ovkpocConfig "ovkpoc/internal/ovkpoc/config"
	ovkpocDevice "ovkpoc/internal/ovkpoc/device"
	ovkpocService "ovkpoc/internal/ovkpoc/service"
	ovkpocWire "ovkpoc/internal/ovkpoc/wire"
)

const demoServiceID = "ovkpoc-demo"
const demoUsername = "demo-user"

func runDemo(logger *slog.Logger, cfg *ovkpocConfig.Settings) error {
	logger.Info("loaded configuration",
		"migration_window", cfg.MigrationWindow,
		"pbes2_iteration_count", cfg.PBES2IterationCount,
	)

	devices := make([]*ovkpocDevice.Device, cfg.NumDevices)

	for i := range devices {
		d, err := ovkpocDevice.New()
		if err != nil {
			return fmt.Errorf("create device %d: %w", i, err)
		}

		devices[i] = d
	}

	logger.Info("negotiating shared seed", "devices", len(devices))

	if err := negotiateRing(devices, []byte("demo-out-of-band-password"), false); err != nil {
		return fmt.Errorf("seed negotiation: %w", err)
	}

	logger.Info("seed negotiation complete", "secret_count", devices[0].Seed().SecretCount())

	svc := ovkpocService.New(ovkpocClock.System{})

	if err := registerAll(logger, svc, devices); err != nil {
		return err
	}

	if err := loginAs(logger, svc, devices[0], "device-0 post-registration login"); err != nil {
		return err
	}

	logger.Info("rotating seed to trigger an OVK migration")

	if err := negotiateRing(devices, []byte("demo-rotation-password"), true); err != nil {
		return fmt.Errorf("seed rotation: %w", err)
	}

	// Every device votes for the same candidate OVK, so the migration
	// commits on vote len(devices)/2+1; credentials that have not voted by
	// then are pruned by the service and can no longer log in.
	for i := 0; i < len(devices)/2+1; i++ {
		if err := loginAs(logger, svc, devices[i], fmt.Sprintf("device-%d migration vote", i)); err != nil {
			return err
		}
	}

	logger.Info("demo complete")

	return nil
}

// negotiateRing drives every device's Seed.Negotiate ring protocol to
// completion by relaying each device's password-wrapped negotiation
// message to its successor, matching the device-to-device transport
// described in spec section 4.6.1.
func negotiateRing(devices []*ovkpocDevice.Device, pw []byte, updating bool) error {
	n := len(devices)

	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
	}

	devID := func(i int) string { return ids[i] }

	outbound := make([]string, n)

	for i, d := range devices {
		msg, err := d.InitSeedNegotiation(pw, devID(i), devID((i-1+n)%n), n, updating)
		if err != nil {
			return fmt.Errorf("init device %d: %w", i, err)
		}

		outbound[i] = msg
	}

	complete := make([]bool, n)

	for round := 0; round < 3*n; round++ {
		done := true

		next := make([]string, n)

		for i, d := range devices {
			if complete[i] {
				next[i] = outbound[i]

				continue
			}

			incoming := outbound[(i-1+n)%n]

			c, out, err := d.SeedNegotiating(incoming)
			if err != nil {
				return fmt.Errorf("negotiate device %d round %d: %w", i, round, err)
			}

			next[i] = out
			complete[i] = c
			done = done && c
		}

		outbound = next

		if done {
			return nil
		}
	}

	return fmt.Errorf("seed negotiation did not converge after %d rounds", 3*n)
}

func registerAll(logger *slog.Logger, svc *ovkpocService.Service, devices []*ovkpocDevice.Device) error {
	startResp, err := svc.StartAuthn(demoUsername)
	if err != nil {
		return fmt.Errorf("start registration challenge: %w", err)
	}

	challenge, err := decodeChallenge(startResp.ChallengeB64U)
	if err != nil {
		return err
	}

	reg, err := devices[0].Register(demoServiceID, challenge, nil)
	if err != nil {
		return fmt.Errorf("device 0 register: %w", err)
	}

	if !svc.Register(ovkpocWire.RegistrationRequest{
		Username: demoUsername,
		Cred:     reg.Cred,
		OVKM:     ovkpocWire.RegistrationOVKMOrSig{OVKM: reg.OVKM},
	}) {
		return fmt.Errorf("service rejected device 0 registration")
	}

	logger.Info("device registered", "device", 0, "initial", true)

	for i := 1; i < len(devices); i++ {
		start, err := svc.StartAuthn(demoUsername)
		if err != nil {
			return fmt.Errorf("start registration challenge for device %d: %w", i, err)
		}

		challenge, err := decodeChallenge(start.ChallengeB64U)
		if err != nil {
			return err
		}

		reg, err := devices[i].Register(demoServiceID, challenge, start.OVKM)
		if err != nil {
			return fmt.Errorf("device %d register: %w", i, err)
		}

		if !svc.Register(ovkpocWire.RegistrationRequest{
			Username: demoUsername,
			Cred:     reg.Cred,
			OVKM:     ovkpocWire.RegistrationOVKMOrSig{SigB64U: reg.SigB64U},
		}) {
			return fmt.Errorf("service rejected device %d seamless registration", i)
		}

		logger.Info("device registered", "device", i, "initial", false)
	}

	return nil
}

func loginAs(logger *slog.Logger, svc *ovkpocService.Service, d *ovkpocDevice.Device, label string) error {
	start, err := svc.StartAuthn(demoUsername)
	if err != nil {
		return fmt.Errorf("%s: start challenge: %w", label, err)
	}

	challenge, err := decodeChallenge(start.ChallengeB64U)
	if err != nil {
		return err
	}

	authn, err := d.Authn(demoServiceID, challenge, start.Creds, start.OVKM)
	if err != nil {
		return fmt.Errorf("%s: device authn: %w", label, err)
	}

	req := ovkpocWire.AuthnRequest{Username: demoUsername, CredJWK: authn.CredJWK, SigB64U: authn.SigB64U, Updating: authn.Updating}

	if !svc.Authn(req) {
		return fmt.Errorf("%s: service rejected authentication", label)
	}

	logger.Info("login succeeded", "label", label, "emitted_update", authn.Updating != nil)

	return nil
}

func decodeChallenge(challengeB64U string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(challengeB64U)
	if err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}

	return b, nil
}
