package signer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockbase-labs/oid4vc-suite/internal/didkey"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	keyPair, err := didkey.Generate()
	require.NoError(t, err)
	s, err := New(keyPair)
	require.NoError(t, err)
	return s
}

// verifyAndDecode checks the token's signature against the signer's own key
// and returns its payload.
func verifyAndDecode(t *testing.T, s *Signer, compact string) map[string]any {
	t.Helper()
	pub, err := jwk.FromRaw(s.keyPair.PublicKey)
	require.NoError(t, err)

	payload, err := jws.Verify([]byte(compact), jws.WithKey(jwa.EdDSA, pub))
	require.NoError(t, err)

	var claims map[string]any
	require.NoError(t, json.Unmarshal(payload, &claims))
	return claims
}

func TestKeyID(t *testing.T) {
	s := newTestSigner(t)
	assert.Equal(t, s.DID()+"#signingKey", s.KeyID())
}

func TestSIOP(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.SIOP(SiopClaims{Audience: "https://verifier.example.com", Nonce: "n-1"})
	require.NoError(t, err)

	claims := verifyAndDecode(t, s, token)
	assert.Equal(t, "https://self-issued.me", claims["iss"])
	assert.Equal(t, "https://verifier.example.com", claims["aud"])
	assert.Equal(t, "n-1", claims["nonce"])
	assert.Equal(t, s.DID(), claims["did"])
	assert.NotEmpty(t, claims["sub"], "sub must be the key thumbprint")
	assert.NotEqual(t, s.DID(), claims["sub"])

	subJWK, ok := claims["sub_jwk"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sig", subJWK["use"])
	assert.Equal(t, "EdDSA", subJWK["alg"])
	assert.Equal(t, "signingKey", subJWK["kid"])

	message, err := jws.Parse([]byte(token))
	require.NoError(t, err)
	assert.Equal(t, s.KeyID(), message.Signatures()[0].ProtectedHeaders().KeyID())
}

func TestSIOPV2SubjectIsDID(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.SIOPV2(SiopClaims{State: "s-1"})
	require.NoError(t, err)

	claims := verifyAndDecode(t, s, token)
	assert.Equal(t, "https://self-issued.me/v2/openid-vc", claims["iss"])
	assert.Equal(t, s.DID(), claims["sub"])
	assert.Equal(t, "s-1", claims["state"])
}

func TestExpiryIsThirtyMinutes(t *testing.T) {
	s := newTestSigner(t)
	fixed := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	token, err := s.SIOP(SiopClaims{})
	require.NoError(t, err)

	claims := verifyAndDecode(t, s, token)
	assert.Equal(t, float64(fixed.Unix()), claims["iat"])
	assert.Equal(t, float64(fixed.Add(30*time.Minute).Unix()), claims["exp"])
}

func TestJTIUniquePerCall(t *testing.T) {
	s := newTestSigner(t)

	first, err := s.SIOP(SiopClaims{})
	require.NoError(t, err)
	second, err := s.SIOP(SiopClaims{})
	require.NoError(t, err)

	assert.NotEqual(t,
		verifyAndDecode(t, s, first)["jti"],
		verifyAndDecode(t, s, second)["jti"])
}

func TestProof(t *testing.T) {
	s := newTestSigner(t)

	token, err := s.Proof("https://issuer.example.com", "c-nonce")
	require.NoError(t, err)

	claims := verifyAndDecode(t, s, token)
	assert.Equal(t, s.DID(), claims["iss"])
	assert.Equal(t, "https://issuer.example.com", claims["aud"])
	assert.Equal(t, "c-nonce", claims["nonce"])
}

func TestCreateVPJWT(t *testing.T) {
	s := newTestSigner(t)

	vc := map[string]any{"type": []string{"VerifiableCredential"}}
	raw, err := s.CreateVP(oid4vc.FormatJWTVPJSON, VPOptions{
		VCs:         []any{vc},
		VerifierDID: "did:key:z6MkVerifier",
		Nonce:       "n-2",
	})
	require.NoError(t, err)

	var compact string
	require.NoError(t, json.Unmarshal(raw, &compact))

	claims := verifyAndDecode(t, s, compact)
	assert.Equal(t, s.DID(), claims["iss"])
	assert.Equal(t, "did:key:z6MkVerifier", claims["aud"])
	assert.Equal(t, "n-2", claims["nonce"])

	vp, ok := claims["vp"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, vp["@context"], "https://www.w3.org/2018/credentials/v1")
	assert.Contains(t, vp["type"], "VerifiablePresentation")
	require.Len(t, vp["verifiableCredential"], 1)
}

func TestCreateVPUnsupportedFormat(t *testing.T) {
	s := newTestSigner(t)

	_, err := s.CreateVP("mso_mdoc", VPOptions{})
	assert.Error(t, err)
}
