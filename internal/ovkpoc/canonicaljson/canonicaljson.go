// Copyright (c) 2025 Justin Cranford

// Package canonicaljson renders the fixed-field-order JSON byte strings
// that Seed and Service sign and hash over (spec section 4.1: JWK
// thumbprint and signed-payload inputs must use a stable member order,
// not Go's default struct/map JSON order).
package canonicaljson

import (
	"bytes"
	"fmt"

	ovkpocJwkcodec "ovkpoc/internal/ovkpoc/jwkcodec"
)

// ECPublicJWK renders pub in the fixed {crv,kty,x,y} member order required
// wherever a public JWK is hashed or signed over as a byte string, as
// opposed to merely transported (transport uses the struct's own json
// tags and may include kid).
func ECPublicJWK(pub *ovkpocJwkcodec.ECPublicJWK) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, `{"crv":%q,"kty":%q,"x":%q,"y":%q}`, pub.Crv, pub.Kty, pub.X, pub.Y)

	return buf.Bytes()
}
