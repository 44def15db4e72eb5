// Copyright (c) 2025 Justin Cranford

package canonicaljson_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	ovkpocCanonicaljson "ovkpoc/internal/ovkpoc/canonicaljson"
	ovkpocEc "ovkpoc/internal/ovkpoc/ec"
	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
)

func TestECPublicJWKFixedFieldOrder(t *testing.T) {
	t.Parallel()

	priv, err := ovkpocEc.GenerateECDSAKeyPair()
	require.NoError(t, err)

	j, err := ovkpocJwkcodec.EncodePublic(&priv.PublicKey)
	require.NoError(t, err)

	out := ovkpocCanonicaljson.ECPublicJWK(j)
	expected := `{"crv":"P-256","kty":"EC","x":"` + j.X + `","y":"` + j.Y + `"}`
	require.Equal(t, expected, string(out))
}

func TestECPublicJWKDeterministic(t *testing.T) {
	t.Parallel()

	priv, err := ovkpocEc.GenerateECDSAKeyPair()
	require.NoError(t, err)

	j, err := ovkpocJwkcodec.EncodePublic(&priv.PublicKey)
	require.NoError(t, err)

	require.Equal(t, ovkpocCanonicaljson.ECPublicJWK(j), ovkpocCanonicaljson.ECPublicJWK(j))
}
