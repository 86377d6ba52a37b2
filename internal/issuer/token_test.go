package issuer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/cache"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

func newTestExchanger(t *testing.T, cfg *config.IssuerConfig) (*Exchanger, cache.Store) {
	t.Helper()
	store := cache.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return NewExchanger(store, cfg, oid4vc.FormatLDPVC, 600*time.Second, zap.NewNop()), store
}

func TestExchangeAuthorizationCodeRelaysUpstream(t *testing.T) {
	var received map[string]string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","custom_field":"kept"}`))
	}))
	defer upstream.Close()

	cfg := demoIssuerConfig()
	cfg.Auth.TokenURL = upstream.URL
	exchanger, _ := newTestExchanger(t, cfg)

	response, err := exchanger.Exchange(context.Background(), &oid4vc.TokenRequest{
		GrantType: oid4vc.GrantAuthorizationCode,
		Code:      "code-1",
	})
	require.NoError(t, err)

	// Response relayed verbatim, unknown fields included.
	assert.JSONEq(t, `{"access_token":"at-1","token_type":"Bearer","custom_field":"kept"}`, string(response))

	assert.Equal(t, "authorization_code", received["grant_type"])
	assert.Equal(t, "client-1", received["client_id"])
	assert.Equal(t, "secret-1", received["client_secret"])
	assert.Equal(t, "code-1", received["code"])
	assert.Equal(t, "http://localhost:8000/callback", received["redirect_uri"])

	// The minted access token is registered so the credential endpoint can
	// recognize it.
	_, err = exchanger.IDTokenPayload(context.Background(), "at-1")
	assert.NoError(t, err)
}

func TestExchangeAuthorizationCodeRegistersJWTClaims(t *testing.T) {
	minted := signedTokenWithHint(t, "hint-jwt")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": minted, "token_type": "Bearer"})
	}))
	defer upstream.Close()

	cfg := demoIssuerConfig()
	cfg.Auth.TokenURL = upstream.URL
	exchanger, _ := newTestExchanger(t, cfg)

	_, err := exchanger.Exchange(context.Background(), &oid4vc.TokenRequest{Code: "code-1"})
	require.NoError(t, err)

	claims, err := exchanger.IDTokenPayload(context.Background(), minted)
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example.com", claims["aud"])
}

func TestExchangeAuthorizationCodeMissingAccessToken(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer upstream.Close()

	cfg := demoIssuerConfig()
	cfg.Auth.TokenURL = upstream.URL
	exchanger, _ := newTestExchanger(t, cfg)

	_, err := exchanger.Exchange(context.Background(), &oid4vc.TokenRequest{Code: "code-1"})
	assert.ErrorIs(t, err, oid4vc.ErrUpstreamToken)
}

func TestExchangeAuthorizationCodeUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer upstream.Close()

	cfg := demoIssuerConfig()
	cfg.Auth.TokenURL = upstream.URL
	exchanger, _ := newTestExchanger(t, cfg)

	_, err := exchanger.Exchange(context.Background(), &oid4vc.TokenRequest{Code: "bad"})
	assert.ErrorIs(t, err, oid4vc.ErrUpstreamToken)
}

func TestExchangeAuthorizationCodeUpstreamUnreachable(t *testing.T) {
	cfg := demoIssuerConfig()
	cfg.Auth.TokenURL = "http://127.0.0.1:1/token"
	exchanger, _ := newTestExchanger(t, cfg)

	_, err := exchanger.Exchange(context.Background(), &oid4vc.TokenRequest{Code: "code-1"})
	assert.ErrorIs(t, err, oid4vc.ErrUpstreamUnavailable)
}

func signedTokenWithHint(t *testing.T, hint string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id_token_hint": hint,
		"aud":           "https://issuer.example.com",
	})
	signed, err := token.SignedString([]byte("upstream-secret"))
	require.NoError(t, err)
	return signed
}

func TestExchangePreAuthorizedCode(t *testing.T) {
	bound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(signedTokenWithHint(t, "hint-1")))
	}))
	defer bound.Close()

	cfg := demoIssuerConfig()
	cfg.Flow = config.FlowPreAuthorizedCode
	exchanger, _ := newTestExchanger(t, cfg)

	ctx := context.Background()
	require.NoError(t, exchanger.BindPreAuthorizedCode(ctx, "pre-1", bound.URL))

	response, err := exchanger.Exchange(ctx, &oid4vc.TokenRequest{PreAuthorizedCode: "pre-1"})
	require.NoError(t, err)

	var token oid4vc.TokenResponse
	require.NoError(t, json.Unmarshal(response, &token))
	assert.Equal(t, "hint-1", token.AccessToken, "access token equals the decoded payload's id_token_hint")
	assert.Equal(t, "ldp_vc:BlockBaseVC", token.Scope)
	assert.Equal(t, 600, token.ExpiresIn)

	// The decoded payload is stored under the hint.
	claims, err := exchanger.IDTokenPayload(ctx, "hint-1")
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example.com", claims["aud"])
}

func TestExchangePreAuthorizedCodeSingleUse(t *testing.T) {
	bound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(signedTokenWithHint(t, "hint-2")))
	}))
	defer bound.Close()

	cfg := demoIssuerConfig()
	cfg.Flow = config.FlowPreAuthorizedCode
	exchanger, _ := newTestExchanger(t, cfg)

	ctx := context.Background()
	require.NoError(t, exchanger.BindPreAuthorizedCode(ctx, "pre-2", bound.URL))

	_, err := exchanger.Exchange(ctx, &oid4vc.TokenRequest{PreAuthorizedCode: "pre-2"})
	require.NoError(t, err)

	_, err = exchanger.Exchange(ctx, &oid4vc.TokenRequest{PreAuthorizedCode: "pre-2"})
	assert.ErrorIs(t, err, oid4vc.ErrGrantNotFound, "a consumed code must not be replayable")
}

func TestExchangePreAuthorizedCodeUnknown(t *testing.T) {
	cfg := demoIssuerConfig()
	cfg.Flow = config.FlowPreAuthorizedCode
	exchanger, _ := newTestExchanger(t, cfg)

	_, err := exchanger.Exchange(context.Background(), &oid4vc.TokenRequest{PreAuthorizedCode: "never-bound"})
	assert.ErrorIs(t, err, oid4vc.ErrGrantNotFound)
}

func TestExchangePreAuthorizedCodeMissing(t *testing.T) {
	cfg := demoIssuerConfig()
	cfg.Flow = config.FlowPreAuthorizedCode
	exchanger, _ := newTestExchanger(t, cfg)

	_, err := exchanger.Exchange(context.Background(), &oid4vc.TokenRequest{})
	assert.ErrorIs(t, err, oid4vc.ErrMalformedRequest)
}
