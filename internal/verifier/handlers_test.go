package verifier

import (
	"bytes"
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
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := demoVerifierConfig()

	store := cache.NewMemoryStore(zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })

	requests, err := NewRequestEngine(store, cfg, 600*time.Second, zap.NewNop())
	require.NoError(t, err)

	resolver := didkey.MethodRouter{}
	validator := NewSubmissionValidator(store, proof.NewValidator(resolver, zap.NewNop()), resolver, zap.NewNop())

	router := gin.New()
	NewHandlers(cfg, requests, validator, zap.NewNop()).Register(router)
	return router
}

func TestPresentationRequestEndpoint(t *testing.T) {
	router := newTestRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/presentationRequest", nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var request oid4vc.PresentationRequest
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &request))
	assert.Equal(t, "vp_token", request.ResponseTypes)
	assert.Equal(t, "direct_post", request.ResponseMode)
	assert.Equal(t, "http://localhost:8001/present", request.RedirectURI)
	assert.NotEmpty(t, request.State)
	assert.NotEmpty(t, request.Nonce)
}

func TestQREncodesRequestLink(t *testing.T) {
	router := newTestRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/qr", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "image/png", recorder.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(recorder.Body.Bytes()))
	require.NoError(t, err)
	bitmap, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)
	decoded, err := qrcode.NewQRCodeReader().Decode(bitmap, nil)
	require.NoError(t, err)

	link := decoded.GetText()
	require.True(t, strings.HasPrefix(link, "openid4vp://?request_uri="), link)
	target, err := url.QueryUnescape(strings.TrimPrefix(link, "openid4vp://?request_uri="))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8001/presentationRequest", target)
}

func submitPresentation(t *testing.T, router *gin.Engine, path string, submission *oid4vc.PresentationSubmission) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(submission)
	require.NoError(t, err)
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestPresentEndToEnd(t *testing.T) {
	router := newTestRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/presentationRequest", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	var request oid4vc.PresentationRequest
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &request))

	holder := newHolder(t)
	vpToken, err := holder.CreateVP(oid4vc.FormatJWTVPJSON, signer.VPOptions{
		VCs:   []any{map[string]any{"type": []string{"VerifiableCredential", "BlockBaseVC"}}},
		Nonce: request.Nonce,
	})
	require.NoError(t, err)
	idToken, err := holder.SIOPV2(signer.SiopClaims{Nonce: request.Nonce, State: request.State})
	require.NoError(t, err)

	submission := &oid4vc.PresentationSubmission{
		State:   request.State,
		IDToken: idToken,
		VPToken: vpToken,
	}

	// The submission endpoint answers on both paths.
	for _, path := range []string{"/present", "/post"} {
		response := submitPresentation(t, router, path, submission)
		require.Equal(t, http.StatusOK, response.Code, response.Body.String())

		var verdict map[string]string
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &verdict))
		assert.Equal(t, "ok", verdict["verify"])
		assert.Equal(t, holder.DID(), verdict["holder"])
	}
}

func TestPresentUnknownState(t *testing.T) {
	router := newTestRouter(t)

	response := submitPresentation(t, router, "/present", &oid4vc.PresentationSubmission{
		State:   "never-issued",
		VPToken: json.RawMessage(`"x"`),
	})
	assert.Equal(t, http.StatusNotFound, response.Code)
}

func TestPresentMalformedBody(t *testing.T) {
	router := newTestRouter(t)

	request := httptest.NewRequest(http.MethodPost, "/present", strings.NewReader("not json"))
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestVerifierHealth(t *testing.T) {
	router := newTestRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "verifier")
}
