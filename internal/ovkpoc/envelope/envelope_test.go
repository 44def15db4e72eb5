// Copyright (c) 2025 Justin Cranford

package envelope_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	ovkpocEnvelope "ovkpoc/internal/ovkpoc/envelope"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	password := []byte("correct horse battery staple")
	msg := []byte(`{"hello":"world"}`)

	compact, err := ovkpocEnvelope.Seal(password, msg)
	require.NoError(t, err)
	require.Len(t, strings.Split(compact, "."), 5)

	decrypted, err := ovkpocEnvelope.Open(password, compact)
	require.NoError(t, err)
	require.Equal(t, msg, decrypted)
}

func TestOpenRejectsWrongPassword(t *testing.T) {
	t.Parallel()

	compact, err := ovkpocEnvelope.Seal([]byte("right-password"), []byte("secret payload"))
	require.NoError(t, err)

	_, err = ovkpocEnvelope.Open([]byte("wrong-password"), compact)
	require.Error(t, err)
}

func TestOpenRejectsWrongSegmentCount(t *testing.T) {
	t.Parallel()

	_, err := ovkpocEnvelope.Open([]byte("password"), "a.b.c")
	require.Error(t, err)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	password := []byte("password")

	compact, err := ovkpocEnvelope.Seal(password, []byte("payload"))
	require.NoError(t, err)

	segments := strings.Split(compact, ".")
	segments[3] = segments[3] + "AA"
	tampered := strings.Join(segments, ".")

	_, err = ovkpocEnvelope.Open(password, tampered)
	require.Error(t, err)
}

func TestSealProducesDistinctCiphertextsForSamePayload(t *testing.T) {
	t.Parallel()

	password := []byte("password")
	msg := []byte("payload")

	compact1, err := ovkpocEnvelope.Seal(password, msg)
	require.NoError(t, err)
	compact2, err := ovkpocEnvelope.Seal(password, msg)
	require.NoError(t, err)

	require.NotEqual(t, compact1, compact2)
}
