// Package proof validates holder proof-of-possession JWTs: the kid of the
// protected header names a DID-bound key, the DID is resolved, and the
// signature is verified against the resolved key material. Verification is
// mandatory; there is no bypass.
package proof

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/nuts-foundation/go-did/did"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/didkey"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
)

// Result is the validated identity of a proof.
type Result struct {
	// HolderDID is the DID portion of the kid, before the '#' delimiter.
	HolderDID string

	// KeyID is the full kid DID URL.
	KeyID string

	// Claims is the verified payload.
	Claims map[string]any
}

// Validator verifies proof-of-possession JWTs.
type Validator struct {
	resolver didkey.Resolver
	logger   *zap.Logger
}

// NewValidator creates a Validator backed by the given DID resolver.
func NewValidator(resolver didkey.Resolver, logger *zap.Logger) *Validator {
	return &Validator{
		resolver: resolver,
		logger:   logger.Named("proof"),
	}
}

// Validate decodes the compact JWT, resolves the holder DID named by its kid
// and verifies the signature. It returns ErrMalformedProof when the token
// cannot be decoded or carries no kid, and ErrProofVerification when the
// signature does not verify against any of the DID's keys.
func (v *Validator) Validate(ctx context.Context, compact string) (*Result, error) {
	message, err := jws.Parse([]byte(compact))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oid4vc.ErrMalformedProof, err)
	}
	if len(message.Signatures()) == 0 {
		return nil, fmt.Errorf("%w: no signature", oid4vc.ErrMalformedProof)
	}

	headers := message.Signatures()[0].ProtectedHeaders()
	keyID := headers.KeyID()
	if keyID == "" {
		return nil, fmt.Errorf("%w: kid is missing", oid4vc.ErrMalformedProof)
	}

	holderDID := strings.SplitN(keyID, "#", 2)[0]
	holder, err := did.ParseDID(holderDID)
	if err != nil {
		return nil, fmt.Errorf("%w: kid is not a DID URL: %v", oid4vc.ErrMalformedProof, err)
	}

	document, err := v.resolver.Resolve(ctx, *holder)
	if err != nil {
		v.logger.Warn("DID resolution failed", zap.String("did", holderDID), zap.Error(err))
		return nil, fmt.Errorf("%w: resolving %s: %v", oid4vc.ErrProofVerification, holderDID, err)
	}

	payload, err := verifyWithDocument(compact, headers.Algorithm().String(), document)
	if err != nil {
		return nil, err
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload is not JSON: %v", oid4vc.ErrMalformedProof, err)
	}

	return &Result{
		HolderDID: holderDID,
		KeyID:     keyID,
		Claims:    claims,
	}, nil
}

func verifyWithDocument(compact, alg string, document *did.Document) ([]byte, error) {
	keys := didkey.VerificationKeys(document)
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: DID document has no verification keys", oid4vc.ErrProofVerification)
	}

	var lastErr error
	for _, key := range keys {
		payload, err := jws.Verify([]byte(compact), jws.WithKey(algorithm(alg), key))
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", oid4vc.ErrProofVerification, lastErr)
}
