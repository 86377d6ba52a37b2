package verifier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/nuts-foundation/go-did/did"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/cache"
	"github.com/blockbase-labs/oid4vc-suite/internal/didkey"
	"github.com/blockbase-labs/oid4vc-suite/internal/jsonld"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/internal/proof"
)

// Result carries the validated identity of a submission.
type Result struct {
	// HolderDID is the presenter's DID when a vp_token was verified.
	HolderDID string
}

// SubmissionValidator validates direct_post submissions: the state must name a
// live challenge, the signed nonce must match it, and the vp_token signature
// must verify against the holder DID's key material. Verification is
// mandatory for every submission that carries a vp_token.
type SubmissionValidator struct {
	store    cache.Store
	proofs   *proof.Validator
	resolver didkey.Resolver
	canon    *jsonld.Canonicalizer
	logger   *zap.Logger
}

// NewSubmissionValidator creates a SubmissionValidator.
func NewSubmissionValidator(store cache.Store, proofs *proof.Validator, resolver didkey.Resolver, logger *zap.Logger) *SubmissionValidator {
	return &SubmissionValidator{
		store:    store,
		proofs:   proofs,
		resolver: resolver,
		canon:    jsonld.NewCanonicalizer(),
		logger:   logger.Named("submission"),
	}
}

// Validate checks a presentation submission against its stored challenge.
func (v *SubmissionValidator) Validate(ctx context.Context, submission *oid4vc.PresentationSubmission) (*Result, error) {
	if submission.State == "" {
		return nil, fmt.Errorf("%w: state is missing", oid4vc.ErrMalformedRequest)
	}

	value, err := v.store.Get(ctx, stateKeyPrefix+submission.State)
	if err != nil {
		if err == cache.ErrNotFound {
			return nil, fmt.Errorf("%w: no challenge for state", oid4vc.ErrStateNotFound)
		}
		return nil, err
	}
	var stored challenge
	if err := json.Unmarshal(value, &stored); err != nil {
		return nil, err
	}

	if submission.IDToken != "" {
		if err := v.checkIDTokenNonce(submission.IDToken, stored.Nonce); err != nil {
			return nil, err
		}
	}

	if len(submission.VPToken) == 0 {
		if submission.IDToken == "" {
			return nil, fmt.Errorf("%w: submission carries neither vp_token nor id_token", oid4vc.ErrMalformedRequest)
		}
		return &Result{}, nil
	}

	return v.verifyVPToken(ctx, submission.VPToken, stored.Nonce)
}

// checkIDTokenNonce decodes the ID token payload and compares its nonce claim
// with the stored challenge.
func (v *SubmissionValidator) checkIDTokenNonce(idToken, nonce string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return fmt.Errorf("%w: id_token is not a signed token: %v", oid4vc.ErrMalformedRequest, err)
	}
	got, _ := claims["nonce"].(string)
	if got != nonce {
		return fmt.Errorf("%w: id_token nonce does not match challenge", oid4vc.ErrNonceMismatch)
	}
	return nil
}

// verifyVPToken dispatches on the token representation: a JSON string holds a
// compact JWT presentation, a JSON object a linked-data presentation.
func (v *SubmissionValidator) verifyVPToken(ctx context.Context, token json.RawMessage, nonce string) (*Result, error) {
	trimmed := bytes.TrimSpace(token)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '"':
		var compact string
		if err := json.Unmarshal(trimmed, &compact); err != nil {
			return nil, fmt.Errorf("%w: vp_token: %v", oid4vc.ErrMalformedRequest, err)
		}
		return v.verifyJWTPresentation(ctx, compact, nonce)
	case len(trimmed) > 0 && trimmed[0] == '{':
		return v.verifyLDPresentation(ctx, trimmed, nonce)
	default:
		return nil, fmt.Errorf("%w: vp_token has unknown representation", oid4vc.ErrMalformedRequest)
	}
}

func (v *SubmissionValidator) verifyJWTPresentation(ctx context.Context, compact, nonce string) (*Result, error) {
	result, err := v.proofs.Validate(ctx, compact)
	if err != nil {
		return nil, err
	}
	if nonce != "" {
		got, _ := result.Claims["nonce"].(string)
		if got != nonce {
			return nil, fmt.Errorf("%w: vp_token nonce does not match challenge", oid4vc.ErrNonceMismatch)
		}
	}
	return &Result{HolderDID: result.HolderDID}, nil
}

// verifyLDPresentation verifies a JsonWebSignature2020-style proof: the
// presentation without its proof is canonicalized, hashed, and the digest is
// checked against the proof's JWS using the verification method's resolved
// keys.
func (v *SubmissionValidator) verifyLDPresentation(ctx context.Context, raw []byte, nonce string) (*Result, error) {
	var vp map[string]any
	if err := json.Unmarshal(raw, &vp); err != nil {
		return nil, fmt.Errorf("%w: vp_token: %v", oid4vc.ErrMalformedRequest, err)
	}

	proofValue, ok := vp["proof"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: presentation has no proof", oid4vc.ErrMalformedProof)
	}
	signature, _ := proofValue["jws"].(string)
	verificationMethod, _ := proofValue["verificationMethod"].(string)
	if signature == "" || verificationMethod == "" {
		return nil, fmt.Errorf("%w: proof lacks jws or verificationMethod", oid4vc.ErrMalformedProof)
	}
	if nonce != "" {
		gotChallenge, _ := proofValue["challenge"].(string)
		if gotChallenge != nonce {
			return nil, fmt.Errorf("%w: proof challenge does not match nonce", oid4vc.ErrNonceMismatch)
		}
	}

	holderDID := strings.SplitN(verificationMethod, "#", 2)[0]
	holder, err := did.ParseDID(holderDID)
	if err != nil {
		return nil, fmt.Errorf("%w: verificationMethod is not a DID URL: %v", oid4vc.ErrMalformedProof, err)
	}
	document, err := v.resolver.Resolve(ctx, *holder)
	if err != nil {
		v.logger.Warn("DID resolution failed", zap.String("did", holderDID), zap.Error(err))
		return nil, fmt.Errorf("%w: resolving %s: %v", oid4vc.ErrProofVerification, holderDID, err)
	}

	delete(vp, "proof")
	quads, err := v.canon.Canonicalize(vp)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing presentation: %w", err)
	}
	digest := sha256.Sum256(quads)

	message, err := jws.Parse([]byte(signature))
	if err != nil || len(message.Signatures()) == 0 {
		return nil, fmt.Errorf("%w: proof jws does not parse", oid4vc.ErrMalformedProof)
	}
	alg := message.Signatures()[0].ProtectedHeaders().Algorithm()

	keys := didkey.VerificationKeys(document)
	var lastErr error
	for _, key := range keys {
		payload, err := jws.Verify([]byte(signature), jws.WithKey(jwa.SignatureAlgorithm(alg.String()), key))
		if err != nil {
			lastErr = err
			continue
		}
		if !bytes.Equal(payload, digest[:]) {
			lastErr = fmt.Errorf("signed digest does not match presentation")
			continue
		}
		return &Result{HolderDID: holderDID}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("DID document has no verification keys")
	}
	return nil, fmt.Errorf("%w: %v", oid4vc.ErrProofVerification, lastErr)
}
