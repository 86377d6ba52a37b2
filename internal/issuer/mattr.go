package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

const (
	defaultMattrAuthTokenURL = "https://auth.mattr.global/oauth/token"
	defaultMattrAudience     = "https://vii.mattr.global"
)

// MattrBackend signs JSON-LD web-semantic credentials against a MATTR tenant.
// It authenticates with OAuth client credentials before every sign call.
type MattrBackend struct {
	tenantURL    string
	authTokenURL string
	audience     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewMattrBackend creates a MattrBackend from configuration.
func NewMattrBackend(cfg *config.MattrConfig, logger *zap.Logger) *MattrBackend {
	authTokenURL := cfg.AuthTokenURL
	if authTokenURL == "" {
		authTokenURL = defaultMattrAuthTokenURL
	}
	audience := cfg.Audience
	if audience == "" {
		audience = defaultMattrAudience
	}
	return &MattrBackend{
		tenantURL:    strings.TrimSuffix(cfg.TenantURL, "/"),
		authTokenURL: authTokenURL,
		audience:     audience,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   newBackendClient(),
		logger:       logger.Named("mattr"),
	}
}

func (b *MattrBackend) Type() string { return config.BackendMattr }

func (b *MattrBackend) Format() string { return oid4vc.FormatLDPVC }

// Descriptor fetches the tenant's openid-credential-issuer document. The
// credentialID parameter is unused; MATTR publishes one descriptor per tenant.
func (b *MattrBackend) Descriptor(ctx context.Context, _ string) (*oid4vc.IssuerMetadata, error) {
	url := b.tenantURL + "/.well-known/openid-credential-issuer"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching issuer descriptor: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: issuer descriptor returned status %d", oid4vc.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var metadata oid4vc.IssuerMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("decoding issuer descriptor: %w", err)
	}
	return &metadata, nil
}

type mattrTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (b *MattrBackend) oauthToken(ctx context.Context) (*mattrTokenResponse, error) {
	body, err := json.Marshal(map[string]string{
		"client_id":     b.clientID,
		"client_secret": b.clientSecret,
		"audience":      b.audience,
		"grant_type":    "client_credentials",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.authTokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching backend token: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: backend token endpoint returned status %d", oid4vc.ErrUpstreamToken, resp.StatusCode)
	}

	var token mattrTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding backend token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: backend token response has no access_token", oid4vc.ErrUpstreamToken)
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	return &token, nil
}

type mattrSignResponse struct {
	Credential json.RawMessage `json:"credential"`
}

// Sign posts the credential template as a web-semantic signing payload and
// returns the signed JSON-LD credential.
func (b *MattrBackend) Sign(ctx context.Context, template *oid4vc.CredentialTemplate) (json.RawMessage, error) {
	token, err := b.oauthToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{"payload": template})
	if err != nil {
		return nil, err
	}

	url := b.tenantURL + "/v2/credentials/web-semantic/sign"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token.TokenType+" "+token.AccessToken)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: signing request: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		b.logger.Warn("Signing backend rejected request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return nil, fmt.Errorf("%w: backend returned status %d", oid4vc.ErrSigningFailed, resp.StatusCode)
	}

	var signed mattrSignResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return nil, fmt.Errorf("decoding signing response: %w", err)
	}
	if len(signed.Credential) == 0 {
		return nil, fmt.Errorf("%w: backend response has no credential", oid4vc.ErrSigningFailed)
	}
	return signed.Credential, nil
}
