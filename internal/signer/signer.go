// Package signer implements the wallet's DID-bound signing: self-issued ID
// tokens (SIOP and SIOP v2) and verifiable presentations.
package signer

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/blockbase-labs/oid4vc-suite/internal/didkey"
	"github.com/blockbase-labs/oid4vc-suite/internal/jsonld"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
)

const (
	// KeyFragment is the fragment of the signing key's DID URL.
	KeyFragment = "signingKey"

	// Validity is the lifetime of every signed artifact.
	Validity = 30 * time.Minute

	issSelfIssued   = "https://self-issued.me"
	issSelfIssuedV2 = "https://self-issued.me/v2/openid-vc"

	credentialsContextV1 = "https://www.w3.org/2018/credentials/v1"
)

// Signer holds a wallet key pair and its derived DID.
type Signer struct {
	keyPair    *didkey.KeyPair
	privateJWK jwk.Key
	publicJWK  jwk.Key
	canon      *jsonld.Canonicalizer

	// now is replaceable in tests.
	now func() time.Time
}

// New wraps a generated key pair.
func New(keyPair *didkey.KeyPair) (*Signer, error) {
	privateJWK, err := jwk.FromRaw(keyPair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("building private JWK: %w", err)
	}
	publicJWK, err := jwk.FromRaw(keyPair.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("building public JWK: %w", err)
	}
	return &Signer{
		keyPair:    keyPair,
		privateJWK: privateJWK,
		publicJWK:  publicJWK,
		canon:      jsonld.NewCanonicalizer(),
		now:        time.Now,
	}, nil
}

// DID returns the wallet's DID.
func (s *Signer) DID() string {
	return s.keyPair.DID.String()
}

// KeyID returns the DID URL of the signing key.
func (s *Signer) KeyID() string {
	return s.DID() + "#" + KeyFragment
}

// SiopClaims are the caller-supplied claims of a self-issued ID token.
type SiopClaims struct {
	Audience               string
	Nonce                  string
	State                  string
	Contract               string
	VC                     string
	Attestations           any
	PresentationSubmission *oid4vc.SubmissionDescriptor
}

// SIOP builds a self-issued ID token: iss is the self-issued authority, sub is
// the RFC 7638 thumbprint of the public key, sub_jwk carries the key itself.
func (s *Signer) SIOP(claims SiopClaims) (string, error) {
	thumbprint, err := s.publicJWK.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("computing key thumbprint: %w", err)
	}

	subJWK, err := s.publicJWKMap()
	if err != nil {
		return "", err
	}

	payload := s.basePayload()
	payload["iss"] = issSelfIssued
	payload["sub"] = base64.RawURLEncoding.EncodeToString(thumbprint)
	payload["sub_jwk"] = subJWK
	payload["did"] = s.DID()
	applySiopClaims(payload, claims)

	return s.sign(payload)
}

// SIOPV2 builds a SIOP v2 ID token: iss is the v2 authority and sub is the DID
// itself rather than a key thumbprint.
func (s *Signer) SIOPV2(claims SiopClaims) (string, error) {
	payload := s.basePayload()
	payload["iss"] = issSelfIssuedV2
	payload["sub"] = s.DID()
	applySiopClaims(payload, claims)

	return s.sign(payload)
}

// Proof builds the proof-of-possession JWT submitted with a credential
// request. The audience is the issuer; the nonce, when present, binds the
// proof to the issuer's challenge.
func (s *Signer) Proof(audience, nonce string) (string, error) {
	payload := s.basePayload()
	payload["iss"] = s.DID()
	payload["aud"] = audience
	if nonce != "" {
		payload["nonce"] = nonce
	}
	return s.sign(payload)
}

// VPOptions carries the inputs of a verifiable presentation.
type VPOptions struct {
	VCs         []any
	VerifierDID string
	Nonce       string
}

// CreateVP builds a verifiable presentation in the requested format. For
// jwt_vp_json the result is a JSON string holding a compact JWT; for ldp_vp a
// JSON-LD presentation carrying a JsonWebSignature2020-style proof.
func (s *Signer) CreateVP(format string, opts VPOptions) (json.RawMessage, error) {
	switch format {
	case oid4vc.FormatJWTVPJSON:
		payload := s.basePayload()
		payload["nbf"] = s.now().Unix()
		payload["iss"] = s.DID()
		payload["aud"] = opts.VerifierDID
		if opts.Nonce != "" {
			payload["nonce"] = opts.Nonce
		}
		payload["vp"] = map[string]any{
			"@context":             []string{credentialsContextV1},
			"type":                 []string{"VerifiablePresentation"},
			"verifiableCredential": opts.VCs,
		}
		token, err := s.sign(payload)
		if err != nil {
			return nil, err
		}
		return json.Marshal(token)

	case oid4vc.FormatLDPVP:
		return s.createLDPresentation(opts)

	default:
		return nil, fmt.Errorf("unsupported presentation format %q", format)
	}
}

func (s *Signer) createLDPresentation(opts VPOptions) (json.RawMessage, error) {
	vp := map[string]any{
		"@context":             []string{credentialsContextV1},
		"type":                 []string{"VerifiablePresentation"},
		"holder":               s.DID(),
		"verifiableCredential": opts.VCs,
	}

	quads, err := s.canon.Canonicalize(vp)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing presentation: %w", err)
	}
	digest := sha256.Sum256(quads)

	headers := jws.NewHeaders()
	_ = headers.Set(jws.KeyIDKey, s.KeyID())
	signature, err := jws.Sign(digest[:], jws.WithKey(jwa.EdDSA, s.privateJWK, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return nil, fmt.Errorf("signing presentation digest: %w", err)
	}

	proof := map[string]any{
		"type":               "JsonWebSignature2020",
		"created":            s.now().UTC().Format(time.RFC3339),
		"verificationMethod": s.KeyID(),
		"proofPurpose":       "authentication",
		"jws":                string(signature),
	}
	if opts.Nonce != "" {
		proof["challenge"] = opts.Nonce
	}
	if opts.VerifierDID != "" {
		proof["domain"] = opts.VerifierDID
	}
	vp["proof"] = proof

	return json.Marshal(vp)
}

func (s *Signer) basePayload() map[string]any {
	now := s.now()
	return map[string]any{
		"iat": now.Unix(),
		"exp": now.Add(Validity).Unix(),
		"jti": uuid.NewString(),
	}
}

func applySiopClaims(payload map[string]any, claims SiopClaims) {
	if claims.Audience != "" {
		payload["aud"] = claims.Audience
	}
	if claims.Nonce != "" {
		payload["nonce"] = claims.Nonce
	}
	if claims.State != "" {
		payload["state"] = claims.State
	}
	if claims.Contract != "" {
		payload["contract"] = claims.Contract
	}
	if claims.VC != "" {
		payload["vc"] = claims.VC
	}
	if claims.Attestations != nil {
		payload["attestations"] = claims.Attestations
	}
	if claims.PresentationSubmission != nil {
		payload["presentation_submission"] = claims.PresentationSubmission
	}
}

func (s *Signer) sign(payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}

	headers := jws.NewHeaders()
	_ = headers.Set(jws.TypeKey, "JWT")
	_ = headers.Set(jws.KeyIDKey, s.KeyID())

	signed, err := jws.Sign(body, jws.WithKey(jwa.EdDSA, s.privateJWK, jws.WithProtectedHeaders(headers)))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(signed), nil
}

func (s *Signer) publicJWKMap() (map[string]any, error) {
	raw, err := json.Marshal(s.publicJWK)
	if err != nil {
		return nil, fmt.Errorf("encoding public JWK: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["key_ops"] = []string{"verify"}
	m["use"] = "sig"
	m["alg"] = jwa.EdDSA.String()
	m["kid"] = KeyFragment
	return m, nil
}
