package issuer

import (
	"context"
	"strings"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

// MetadataBuilder normalizes a backend descriptor into the issuer metadata
// served from the well-known endpoint. The backend is a template source only:
// endpoint fields and the issuer identity always point at this deployment's
// own base URL.
type MetadataBuilder struct {
	backend        Backend
	baseURL        string
	credentialID   string
	credentialType string
	flow           string
}

// NewMetadataBuilder creates a MetadataBuilder.
func NewMetadataBuilder(backend Backend, cfg *config.IssuerConfig) *MetadataBuilder {
	return &MetadataBuilder{
		backend:        backend,
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		credentialID:   cfg.CredentialID,
		credentialType: cfg.CredentialType,
		flow:           cfg.Flow,
	}
}

// Build fetches the backend descriptor and applies the deployment overrides.
// Built fresh per call; the result is never cached or persisted.
func (b *MetadataBuilder) Build(ctx context.Context) (*oid4vc.IssuerMetadata, error) {
	metadata, err := b.backend.Descriptor(ctx, b.credentialID)
	if err != nil {
		return nil, err
	}

	metadata.Issuer = b.baseURL
	metadata.CredentialIssuer = b.baseURL
	metadata.AuthorizationEndpoint = b.baseURL + "/authorize"
	metadata.TokenEndpoint = b.baseURL + "/token"
	metadata.CredentialEndpoint = b.baseURL + "/credential"
	metadata.ScopesSupported = []string{oid4vc.Scope(b.backend.Format(), b.credentialType)}
	metadata.GrantTypesSupported = []string{grantType(b.flow)}

	return metadata, nil
}

// grantType maps the configured flow selector to its grant type identifier.
func grantType(flow string) string {
	if flow == config.FlowPreAuthorizedCode {
		return oid4vc.GrantPreAuthorizedCode
	}
	return oid4vc.GrantAuthorizationCode
}
