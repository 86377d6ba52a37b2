// Package issuer implements the credential issuer: offer generation, metadata
// building, token exchange and credential issuance against a pluggable signing
// backend.
package issuer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

// backendTimeout bounds every outbound call to a signing backend.
const backendTimeout = 15 * time.Second

// Backend is the signing backend capability. The backend is a template source
// and a signer; it is never the endpoint authority, so its descriptor's
// endpoint fields are always overridden by the metadata builder.
type Backend interface {
	// Type returns the backend selector.
	Type() string

	// Format returns the credential format this backend signs.
	Format() string

	// Descriptor fetches the backend's issuer descriptor, normalized into the
	// canonical schema. credentialID selects the manifest for backends that
	// publish per-credential manifests.
	Descriptor(ctx context.Context, credentialID string) (*oid4vc.IssuerMetadata, error)

	// Sign signs the credential template and returns the credential payload, a
	// JSON-LD object or a compact JWT string depending on Format.
	Sign(ctx context.Context, template *oid4vc.CredentialTemplate) (json.RawMessage, error)
}

// NewBackend builds the configured signing backend. Returns
// ErrUnsupportedBackend for a backend type outside the configured set.
func NewBackend(cfg *config.IssuerConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMattr:
		return NewMattrBackend(&cfg.Mattr, logger), nil
	case config.BackendEntra:
		return NewEntraBackend(&cfg.Entra, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", oid4vc.ErrUnsupportedBackend, cfg.Backend)
	}
}

func newBackendClient() *http.Client {
	return &http.Client{Timeout: backendTimeout}
}
