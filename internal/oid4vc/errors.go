package oid4vc

import (
	"errors"
	"net/http"
)

// Protocol failure modes. Every failure is terminal for its request; the
// holder restarts the corresponding flow from the QR scan.
var (
	// ErrMalformedRequest signals a missing or invalid required field.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrGrantNotFound signals an unknown, expired or already consumed grant.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrStateNotFound signals an unknown or expired presentation state.
	ErrStateNotFound = errors.New("state not found")

	// ErrUpstreamToken signals a failed upstream token exchange.
	ErrUpstreamToken = errors.New("upstream token exchange failed")

	// ErrUpstreamUnavailable signals a timed-out or unreachable collaborator.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrSigningFailed signals that the signing backend returned no credential.
	ErrSigningFailed = errors.New("credential signing failed")

	// ErrMalformedProof signals an undecodable proof or a proof without a kid.
	ErrMalformedProof = errors.New("malformed proof")

	// ErrProofVerification signals a proof signature that does not verify
	// against the holder DID's key material.
	ErrProofVerification = errors.New("proof verification failed")

	// ErrNonceMismatch signals a submission whose signed nonce does not match
	// the nonce stored for its state.
	ErrNonceMismatch = errors.New("nonce mismatch")

	// ErrUnsupportedBackend signals a backend type outside the configured set.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrTemplateNotFound signals a credential template id that is not in the
	// issuer's supported-credentials list.
	ErrTemplateNotFound = errors.New("credential template not found")
)

// HTTPStatus maps a protocol error to its HTTP status code. Unrecognized
// errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMalformedRequest),
		errors.Is(err, ErrNonceMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrGrantNotFound),
		errors.Is(err, ErrStateNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrMalformedProof),
		errors.Is(err, ErrProofVerification):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUpstreamToken),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrSigningFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
