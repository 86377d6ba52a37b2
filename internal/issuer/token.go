package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/cache"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

// Session-store key prefixes. Grants and decoded token payloads share the
// store with authorization sessions, so each class gets its own namespace.
const (
	grantKeyPrefix   = "grant:"
	idTokenKeyPrefix = "idtoken:"
)

// grantBinding is the session value bound to a pre-authorized code.
type grantBinding struct {
	RequestURI string `json:"request_uri"`
}

// Exchanger implements the token endpoint. The grant variant in use is decided
// by configuration, never by inspecting the request. Every access token it
// hands out is registered in the session store; the credential endpoint only
// honors registered tokens.
type Exchanger struct {
	store      cache.Store
	httpClient *http.Client
	cfg        *config.IssuerConfig
	format     string
	ttl        time.Duration
	logger     *zap.Logger
}

// NewExchanger creates an Exchanger. format is the credential format of the
// configured signing backend, used for scope synthesis.
func NewExchanger(store cache.Store, cfg *config.IssuerConfig, format string, ttl time.Duration, logger *zap.Logger) *Exchanger {
	return &Exchanger{
		store:      store,
		httpClient: newBackendClient(),
		cfg:        cfg,
		format:     format,
		ttl:        ttl,
		logger:     logger.Named("token"),
	}
}

// BindPreAuthorizedCode stores the signed-token resource URI under code. The
// binding expires with the session TTL and is consumed by the first successful
// exchange.
func (e *Exchanger) BindPreAuthorizedCode(ctx context.Context, code, requestURI string) error {
	value, err := json.Marshal(grantBinding{RequestURI: requestURI})
	if err != nil {
		return err
	}
	return e.store.Put(ctx, grantKeyPrefix+code, value, e.ttl)
}

// Exchange performs the configured token exchange and returns the raw JSON
// response body.
func (e *Exchanger) Exchange(ctx context.Context, req *oid4vc.TokenRequest) (json.RawMessage, error) {
	switch e.cfg.Flow {
	case config.FlowPreAuthorizedCode:
		return e.exchangePreAuthorized(ctx, req)
	default:
		return e.exchangeAuthorizationCode(ctx, req)
	}
}

// exchangeAuthorizationCode relays a fixed-shape token request to the upstream
// authorization server and returns its response verbatim.
func (e *Exchanger) exchangeAuthorizationCode(ctx context.Context, req *oid4vc.TokenRequest) (json.RawMessage, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("%w: code is missing", oid4vc.ErrMalformedRequest)
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = e.cfg.Auth.ClientID
	}
	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = strings.TrimSuffix(e.cfg.BaseURL, "/") + "/callback"
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    oid4vc.GrantAuthorizationCode,
		"client_id":     clientID,
		"client_secret": e.cfg.Auth.ClientSecret,
		"code":          req.Code,
		"code_verifier": req.CodeVerifier,
		"redirect_uri":  redirectURI,
	})
	if err != nil {
		return nil, err
	}

	upstream, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Auth.TokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	upstream.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: upstream token endpoint: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading upstream response: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn("Upstream token exchange failed",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", data))
		return nil, fmt.Errorf("%w: upstream returned status %d", oid4vc.ErrUpstreamToken, resp.StatusCode)
	}

	var minted oid4vc.TokenResponse
	if err := json.Unmarshal(data, &minted); err != nil || minted.AccessToken == "" {
		return nil, fmt.Errorf("%w: upstream response has no access_token", oid4vc.ErrUpstreamToken)
	}
	if err := e.registerAccessToken(ctx, minted.AccessToken); err != nil {
		return nil, err
	}

	return data, nil
}

// registerAccessToken binds an access token to the session store so the
// credential endpoint can tell tokens this deployment minted from arbitrary
// bearer strings. The upstream token's decoded claims are stored when it is a
// JWT; opaque tokens register with an empty payload.
func (e *Exchanger) registerAccessToken(ctx context.Context, accessToken string) error {
	claims := map[string]any{}
	decoded := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, decoded); err == nil {
		claims = map[string]any(decoded)
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return e.store.Put(ctx, idTokenKeyPrefix+accessToken, payload, e.ttl)
}

// exchangePreAuthorized consumes the grant binding, fetches the bound signed
// token, stores its decoded payload under the id_token_hint claim and
// synthesizes an access token equal to that hint.
func (e *Exchanger) exchangePreAuthorized(ctx context.Context, req *oid4vc.TokenRequest) (json.RawMessage, error) {
	if req.PreAuthorizedCode == "" {
		return nil, fmt.Errorf("%w: pre-authorized_code is missing", oid4vc.ErrMalformedRequest)
	}

	value, err := e.store.Get(ctx, grantKeyPrefix+req.PreAuthorizedCode)
	if err != nil {
		if err == cache.ErrNotFound {
			return nil, fmt.Errorf("%w: pre-authorized code unknown, expired or consumed", oid4vc.ErrGrantNotFound)
		}
		return nil, err
	}

	var binding grantBinding
	if err := json.Unmarshal(value, &binding); err != nil {
		return nil, fmt.Errorf("decoding grant binding: %w", err)
	}

	claims, err := e.fetchBoundToken(ctx, binding.RequestURI)
	if err != nil {
		return nil, err
	}

	hint, _ := claims["id_token_hint"].(string)
	if hint == "" {
		return nil, fmt.Errorf("%w: bound token has no id_token_hint", oid4vc.ErrUpstreamToken)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, idTokenKeyPrefix+hint, payload, e.ttl); err != nil {
		return nil, err
	}

	// Single use: consume the binding so a replayed code fails with
	// grant-not-found.
	if err := e.store.Delete(ctx, grantKeyPrefix+req.PreAuthorizedCode); err != nil {
		e.logger.Warn("Failed to consume pre-authorized code", zap.Error(err))
	}

	response := oid4vc.TokenResponse{
		AccessToken: hint,
		TokenType:   "Bearer",
		ExpiresIn:   int(e.ttl.Seconds()),
		Scope:       oid4vc.Scope(e.format, e.cfg.CredentialType),
	}
	return json.Marshal(response)
}

// fetchBoundToken retrieves the signed token at requestURI and decodes its
// payload. The signature is not checked here; the token is consumed as an
// upstream artifact, not as proof material.
func (e *Exchanger) fetchBoundToken(ctx context.Context, requestURI string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURI, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching bound token: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: bound token endpoint returned status %d", oid4vc.ErrUpstreamToken, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading bound token: %v", oid4vc.ErrUpstreamUnavailable, err)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(string(data)), claims); err != nil {
		return nil, fmt.Errorf("%w: bound token is not a signed token: %v", oid4vc.ErrUpstreamToken, err)
	}
	return map[string]any(claims), nil
}

// IDTokenPayload returns the decoded payload stored for an access token. It
// fails with ErrGrantNotFound for tokens this deployment never minted or whose
// session has expired.
func (e *Exchanger) IDTokenPayload(ctx context.Context, accessToken string) (map[string]any, error) {
	value, err := e.store.Get(ctx, idTokenKeyPrefix+accessToken)
	if err != nil {
		if err == cache.ErrNotFound {
			return nil, fmt.Errorf("%w: no payload for token", oid4vc.ErrGrantNotFound)
		}
		return nil, err
	}
	var claims map[string]any
	if err := json.Unmarshal(value, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}
