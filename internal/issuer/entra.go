package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

const defaultEntraManifestBaseURL = "https://verifiedid.did.msidentity.com/v1.0"

// EntraBackend issues JWT credentials against a Microsoft Entra Verified ID
// tenant. The per-credential manifest is the template source; its display
// section carries the contract binding the wallet relays during issuance.
type EntraBackend struct {
	tenantID        string
	manifestBaseURL string
	issuanceURL     string
	accessToken     string
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewEntraBackend creates an EntraBackend from configuration.
func NewEntraBackend(cfg *config.EntraConfig, logger *zap.Logger) *EntraBackend {
	base := cfg.ManifestBaseURL
	if base == "" {
		base = defaultEntraManifestBaseURL
	}
	return &EntraBackend{
		tenantID:        cfg.TenantID,
		manifestBaseURL: strings.TrimSuffix(base, "/"),
		issuanceURL:     cfg.IssuanceURL,
		accessToken:     cfg.AccessToken,
		httpClient:      newBackendClient(),
		logger:          logger.Named("entra"),
	}
}

func (b *EntraBackend) Type() string { return config.BackendEntra }

func (b *EntraBackend) Format() string { return oid4vc.FormatJWTVCJSON }

type entraManifestEnvelope struct {
	Token string `json:"token"`
}

type entraManifestCard struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
}

type entraManifestDisplay struct {
	Locale   string            `json:"locale"`
	Contract string            `json:"contract"`
	Card     entraManifestCard `json:"card"`
}

type entraManifest struct {
	ID      string               `json:"id"`
	Display entraManifestDisplay `json:"display"`
}

// Descriptor fetches and decodes the credential manifest. The manifest body is
// a signed token; only its payload is used here, the signature belongs to the
// tenant's trust domain, not ours.
func (b *EntraBackend) Descriptor(ctx context.Context, credentialID string) (*oid4vc.IssuerMetadata, error) {
	url := fmt.Sprintf("%s/tenants/%s/verifiableCredentials/contracts/%s/manifest",
		b.manifestBaseURL, b.tenantID, credentialID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching credential manifest: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: manifest endpoint returned status %d", oid4vc.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var envelope entraManifestEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding manifest envelope: %w", err)
	}

	manifest, err := decodeEntraManifest(envelope.Token)
	if err != nil {
		return nil, err
	}

	template := oid4vc.CredentialTemplate{
		ID:     credentialID,
		Format: oid4vc.FormatJWTVCJSON,
		Types:  []string{"VerifiableCredential", credentialID},
		Display: &oid4vc.TemplateDisplay{
			Name:            manifest.Display.Card.Title,
			Description:     manifest.Display.Card.Description,
			Locale:          manifest.Display.Locale,
			BackgroundColor: manifest.Display.Card.BackgroundColor,
			TextColor:       manifest.Display.Card.TextColor,
			Contract:        manifest.Display.Contract,
		},
	}

	return &oid4vc.IssuerMetadata{
		CredentialsSupported: []oid4vc.CredentialTemplate{template},
	}, nil
}

func decodeEntraManifest(token string) (*entraManifest, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding manifest token: %w", err)
	}

	raw, err := json.Marshal(map[string]any(claims))
	if err != nil {
		return nil, err
	}
	var manifest entraManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest payload: %w", err)
	}
	return &manifest, nil
}

type entraSignResponse struct {
	Credential json.RawMessage `json:"credential"`
}

// Sign posts the credential template to the tenant's issuance endpoint with a
// bearer token.
func (b *EntraBackend) Sign(ctx context.Context, template *oid4vc.CredentialTemplate) (json.RawMessage, error) {
	if b.issuanceURL == "" {
		return nil, fmt.Errorf("%w: no issuance endpoint configured", oid4vc.ErrSigningFailed)
	}

	body, err := json.Marshal(template)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.issuanceURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.accessToken)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: signing request: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		b.logger.Warn("Issuance endpoint rejected request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return nil, fmt.Errorf("%w: backend returned status %d", oid4vc.ErrSigningFailed, resp.StatusCode)
	}

	var signed entraSignResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return nil, fmt.Errorf("decoding issuance response: %w", err)
	}
	if len(signed.Credential) == 0 {
		return nil, fmt.Errorf("%w: backend response has no credential", oid4vc.ErrSigningFailed)
	}
	return signed.Credential, nil
}
