package issuer

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/cache"
	"github.com/blockbase-labs/oid4vc-suite/internal/didkey"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/internal/proof"
	"github.com/blockbase-labs/oid4vc-suite/internal/signer"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, cfg *config.IssuerConfig, backend *stubBackend) *gin.Engine {
	t.Helper()
	store := cache.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	// Register a known access token, as the token endpoint would have.
	require.NoError(t, store.Put(context.Background(), idTokenKeyPrefix+"token-1", []byte(`{}`), time.Minute))

	exchanger := NewExchanger(store, cfg, backend.Format(), 600*time.Second, zap.NewNop())
	handlers := NewHandlers(
		cfg,
		store,
		NewMetadataBuilder(backend, cfg),
		exchanger,
		NewEngine(backend, zap.NewNop()),
		proof.NewValidator(didkey.MethodRouter{}, zap.NewNop()),
		600*time.Second,
		backend.Format(),
		zap.NewNop(),
	)

	router := gin.New()
	handlers.Register(router)
	return router
}

func decodeQR(t *testing.T, data []byte) string {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	bitmap, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)
	result, err := qrcode.NewQRCodeReader().Decode(bitmap, nil)
	require.NoError(t, err)
	return result.GetText()
}

func TestMetadataEndpoint(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/.well-known/openid-credential-issuer", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var metadata oid4vc.IssuerMetadata
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &metadata))
	assert.Equal(t, "http://localhost:8000", metadata.CredentialIssuer)
	assert.Equal(t, "http://localhost:8000/token", metadata.TokenEndpoint)
}

func TestQREncodesOffer(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/qr", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "image/png", recorder.Header().Get("Content-Type"))

	link := decodeQR(t, recorder.Body.Bytes())
	require.True(t, strings.HasPrefix(link, "openid-credential-offer://?credential_offer="), link)

	encoded := strings.TrimPrefix(link, "openid-credential-offer://?credential_offer=")
	raw, err := url.QueryUnescape(encoded)
	require.NoError(t, err)

	var offer oid4vc.CredentialOffer
	require.NoError(t, json.Unmarshal([]byte(raw), &offer))
	assert.Equal(t, "http://localhost:8000", offer.CredentialIssuer)
	require.Len(t, offer.Credentials, 1)
	assert.Equal(t, "demo-cred", offer.Credentials[0].ID)
	assert.Equal(t, oid4vc.FormatLDPVC, offer.Credentials[0].Format)
	require.NotNil(t, offer.Grants)
	assert.NotNil(t, offer.Grants.AuthorizationCode)
	assert.Nil(t, offer.Grants.PreAuthorizedCode)
}

func TestQRMintsPreAuthorizedCode(t *testing.T) {
	cfg := demoIssuerConfig()
	cfg.Flow = config.FlowPreAuthorizedCode
	cfg.PreAuthRequestURI = "https://auth.example.com/request/1"
	router := newTestRouter(t, cfg, &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/qr", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	link := decodeQR(t, recorder.Body.Bytes())
	raw, err := url.QueryUnescape(strings.SplitN(link, "credential_offer=", 2)[1])
	require.NoError(t, err)

	var offer oid4vc.CredentialOffer
	require.NoError(t, json.Unmarshal([]byte(raw), &offer))
	require.NotNil(t, offer.Grants)
	require.NotNil(t, offer.Grants.PreAuthorizedCode)
	assert.NotEmpty(t, offer.Grants.PreAuthorizedCode.PreAuthorizedCode, "each render mints a fresh code")
}

func TestAuthorizeRedirectsUpstream(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(
		http.MethodGet, "/authorize?state=st-1&redirect_uri=http%3A%2F%2Fwallet.local%2Fcb&response_type=code", nil))
	require.Equal(t, http.StatusFound, recorder.Code)

	location, err := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "auth.example.com", location.Host)

	query := location.Query()
	assert.Equal(t, "client-1", query.Get("client_id"))
	assert.Equal(t, "login", query.Get("prompt"))
	assert.Equal(t, "http://localhost:8000/callback", query.Get("redirect_uri"), "the wallet redirect is replaced with our callback")
	assert.Equal(t, "st-1", query.Get("state"))
	assert.Equal(t, "code", query.Get("response_type"))
}

func TestAuthorizeRequiresState(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/authorize", nil))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestCallbackRestoresWalletRedirect(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(
		http.MethodGet, "/authorize?state=st-2&redirect_uri=http%3A%2F%2Fwallet.local%2Fcb", nil))
	require.Equal(t, http.StatusFound, recorder.Code)

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/callback?state=st-2&code=auth-code-1", nil))
	require.Equal(t, http.StatusFound, recorder.Code)
	assert.Equal(t, "http://wallet.local/cb?state=st-2&code=auth-code-1", recorder.Header().Get("Location"))
}

func TestCallbackUnknownState(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/callback?state=never-seen&code=c", nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCredentialRequiresBearer(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/credential", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCredentialRequiresFormatAndProof(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	request := httptest.NewRequest(http.MethodPost, "/credential", strings.NewReader(`{"proof":{"jwt":"x"}}`))
	request.Header.Set("Authorization", "Bearer token-1")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "format is missing")

	request = httptest.NewRequest(http.MethodPost, "/credential", strings.NewReader(`{"format":"ldp_vc"}`))
	request.Header.Set("Authorization", "Bearer token-1")
	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "proof is missing")
}

func TestCredentialIssuesWithValidProof(t *testing.T) {
	backend := &stubBackend{
		descriptor: demoDescriptor(),
		signed:     json.RawMessage(`{"type":["VerifiableCredential","BlockBaseVC"]}`),
	}
	router := newTestRouter(t, demoIssuerConfig(), backend)

	keyPair, err := didkey.Generate()
	require.NoError(t, err)
	s, err := signer.New(keyPair)
	require.NoError(t, err)
	proofJWT, err := s.Proof("http://localhost:8000", "")
	require.NoError(t, err)

	body, err := json.Marshal(oid4vc.CredentialRequest{
		Format: oid4vc.FormatLDPVC,
		Type:   "BlockBaseVC",
		Proof:  &oid4vc.Proof{ProofType: "jwt", JWT: proofJWT},
	})
	require.NoError(t, err)

	request := httptest.NewRequest(http.MethodPost, "/credential", bytes.NewReader(body))
	request.Header.Set("Authorization", "Bearer token-1")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var response oid4vc.CredentialResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, oid4vc.FormatLDPVC, response.Format)

	require.NotNil(t, backend.lastTemplate)
	assert.Equal(t, keyPair.DID.String(), backend.lastTemplate.CredentialSubject["id"],
		"the subject id is bound to the proven holder DID")
}

func TestCredentialRejectsUnmintedBearer(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	keyPair, err := didkey.Generate()
	require.NoError(t, err)
	s, err := signer.New(keyPair)
	require.NoError(t, err)
	proofJWT, err := s.Proof("http://localhost:8000", "")
	require.NoError(t, err)

	body, err := json.Marshal(oid4vc.CredentialRequest{
		Format: oid4vc.FormatLDPVC,
		Type:   "BlockBaseVC",
		Proof:  &oid4vc.Proof{ProofType: "jwt", JWT: proofJWT},
	})
	require.NoError(t, err)

	// A valid proof does not compensate for a token the token endpoint never
	// issued.
	request := httptest.NewRequest(http.MethodPost, "/credential", bytes.NewReader(body))
	request.Header.Set("Authorization", "Bearer never-issued")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "bearer token unknown or expired")
}

func TestCredentialRejectsBadProof(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	body := `{"format":"ldp_vc","proof":{"proof_type":"jwt","jwt":"garbage"}}`
	request := httptest.NewRequest(http.MethodPost, "/credential", strings.NewReader(body))
	request.Header.Set("Authorization", "Bearer token-1")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, demoIssuerConfig(), &stubBackend{descriptor: demoDescriptor()})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "issuer")
}
