package issuer

import (
	"context"
	"encoding/json"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

// stubBackend is a Backend test double.
type stubBackend struct {
	descriptor    *oid4vc.IssuerMetadata
	descriptorErr error
	signed        json.RawMessage
	signErr       error
	lastTemplate  *oid4vc.CredentialTemplate
}

func (s *stubBackend) Type() string   { return config.BackendMattr }
func (s *stubBackend) Format() string { return oid4vc.FormatLDPVC }

func (s *stubBackend) Descriptor(_ context.Context, _ string) (*oid4vc.IssuerMetadata, error) {
	if s.descriptorErr != nil {
		return nil, s.descriptorErr
	}
	// Return a copy so builder overrides never leak between calls.
	descriptor := *s.descriptor
	return &descriptor, nil
}

func (s *stubBackend) Sign(_ context.Context, template *oid4vc.CredentialTemplate) (json.RawMessage, error) {
	s.lastTemplate = template
	if s.signErr != nil {
		return nil, s.signErr
	}
	return s.signed, nil
}

func demoDescriptor() *oid4vc.IssuerMetadata {
	return &oid4vc.IssuerMetadata{
		Issuer:                "https://tenant.vii.mattr.global",
		AuthorizationEndpoint: "https://tenant.vii.mattr.global/authorize",
		TokenEndpoint:         "https://tenant.vii.mattr.global/token",
		CredentialEndpoint:    "https://tenant.vii.mattr.global/credential",
		CredentialsSupported: []oid4vc.CredentialTemplate{
			{
				ID:     "demo-cred",
				Format: oid4vc.FormatLDPVC,
				Types:  []string{"VerifiableCredential", "BlockBaseVC"},
				CredentialSubject: map[string]any{
					"name": "template-name",
				},
			},
		},
	}
}

func demoIssuerConfig() *config.IssuerConfig {
	return &config.IssuerConfig{
		BaseURL:        "http://localhost:8000",
		Backend:        config.BackendMattr,
		CredentialID:   "demo-cred",
		CredentialType: "BlockBaseVC",
		Flow:           config.FlowAuthorizationCode,
		OfferScheme:    "openid-credential-offer",
		Auth: config.UpstreamAuthConfig{
			AuthorizeURL: "https://auth.example.com/authorize",
			TokenURL:     "https://auth.example.com/oauth/token",
			ClientID:     "client-1",
			ClientSecret: "secret-1",
		},
	}
}
