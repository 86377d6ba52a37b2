package proof

import "github.com/lestrrat-go/jwx/v2/jwa"

// algorithm maps a JOSE alg header to its jwa constant. Unknown values pass
// through so jws.Verify reports them.
func algorithm(alg string) jwa.SignatureAlgorithm {
	switch alg {
	case jwa.EdDSA.String():
		return jwa.EdDSA
	case jwa.ES256.String():
		return jwa.ES256
	case jwa.ES384.String():
		return jwa.ES384
	case jwa.ES512.String():
		return jwa.ES512
	case jwa.RS256.String():
		return jwa.RS256
	default:
		return jwa.SignatureAlgorithm(alg)
	}
}
