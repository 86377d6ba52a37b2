package issuer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/cache"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/internal/proof"
	"github.com/blockbase-labs/oid4vc-suite/internal/qr"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

const sessionKeyPrefix = "session:"

// authSession is the value stored under an authorization state.
type authSession struct {
	RedirectURI string `json:"redirect_uri"`
}

// Handlers wires the issuer HTTP surface.
type Handlers struct {
	cfg       *config.IssuerConfig
	store     cache.Store
	metadata  *MetadataBuilder
	exchanger *Exchanger
	engine    *Engine
	validator *proof.Validator
	ttl       time.Duration
	format    string
	logger    *zap.Logger
}

// NewHandlers creates the issuer handler set.
func NewHandlers(
	cfg *config.IssuerConfig,
	store cache.Store,
	metadata *MetadataBuilder,
	exchanger *Exchanger,
	engine *Engine,
	validator *proof.Validator,
	ttl time.Duration,
	format string,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		store:     store,
		metadata:  metadata,
		exchanger: exchanger,
		engine:    engine,
		validator: validator,
		ttl:       ttl,
		format:    format,
		logger:    logger.Named("issuer_api"),
	}
}

// Register attaches all issuer routes.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/", h.Health)
	r.GET("/.well-known/openid-credential-issuer", h.Metadata)
	r.GET("/qr", h.QR)
	r.GET("/authorize", h.Authorize)
	r.GET("/callback", h.Callback)
	r.POST("/token", h.Token)
	r.POST("/credential", h.Credential)
}

// Health returns a liveness response.
// GET /
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "issuer"})
}

// Metadata serves the issuer metadata, built fresh per request.
// GET /.well-known/openid-credential-issuer
func (h *Handlers) Metadata(c *gin.Context) {
	metadata, err := h.metadata.Build(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metadata)
}

// QR serves the credential offer as a QR code PNG. For the pre-authorized flow
// each render mints a fresh single-use code and binds it in the session store.
// GET /qr
func (h *Handlers) QR(c *gin.Context) {
	var preAuthorizedCode string
	if h.cfg.Flow == config.FlowPreAuthorizedCode {
		preAuthorizedCode = uuid.NewString()
		if err := h.exchanger.BindPreAuthorizedCode(c.Request.Context(), preAuthorizedCode, h.cfg.PreAuthRequestURI); err != nil {
			h.respondError(c, err)
			return
		}
	}

	offer := BuildOffer(h.cfg, h.format, preAuthorizedCode)
	uri, err := OfferURI(h.cfg.OfferScheme, offer)
	if err != nil {
		h.respondError(c, err)
		return
	}

	png, err := qr.EncodePNG(uri, qr.DefaultSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Authorize stores the wallet's redirect URI under its state and forwards the
// holder to the upstream authorization endpoint with this deployment's client
// identity and callback.
// GET /authorize
func (h *Handlers) Authorize(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		h.respondError(c, fmt.Errorf("%w: state is missing", oid4vc.ErrMalformedRequest))
		return
	}

	session, err := json.Marshal(authSession{RedirectURI: c.Query("redirect_uri")})
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.store.Put(c.Request.Context(), sessionKeyPrefix+state, session, h.ttl); err != nil {
		h.respondError(c, err)
		return
	}

	query := url.Values{}
	for key, values := range c.Request.URL.Query() {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set("client_id", h.cfg.Auth.ClientID)
	query.Set("prompt", "login")
	query.Set("redirect_uri", strings.TrimSuffix(h.cfg.BaseURL, "/")+"/callback")

	c.Redirect(http.StatusFound, h.cfg.Auth.AuthorizeURL+"?"+query.Encode())
}

// Callback reads the session stored under state and sends the holder back to
// the wallet's redirect URI, forwarding the upstream query parameters.
// GET /callback
func (h *Handlers) Callback(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		h.respondError(c, fmt.Errorf("%w: state is missing", oid4vc.ErrMalformedRequest))
		return
	}

	value, err := h.store.Get(c.Request.Context(), sessionKeyPrefix+state)
	if err != nil {
		if err == cache.ErrNotFound {
			h.respondError(c, fmt.Errorf("%w: no session for state", oid4vc.ErrStateNotFound))
			return
		}
		h.respondError(c, err)
		return
	}

	var session authSession
	if err := json.Unmarshal(value, &session); err != nil {
		h.respondError(c, err)
		return
	}

	c.Redirect(http.StatusFound, session.RedirectURI+"?"+c.Request.URL.RawQuery)
}

// Token performs the configured token exchange.
// POST /token
func (h *Handlers) Token(c *gin.Context) {
	var request oid4vc.TokenRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondError(c, fmt.Errorf("%w: %v", oid4vc.ErrMalformedRequest, err))
		return
	}

	response, err := h.exchanger.Exchange(c.Request.Context(), &request)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", response)
}

// Credential validates the holder's proof of possession and issues the
// configured credential. The bearer token must have been minted by the token
// endpoint; proof verification is mandatory.
// POST /credential
func (h *Handlers) Credential(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
		return
	}
	if _, err := h.exchanger.IDTokenPayload(c.Request.Context(), token); err != nil {
		h.logger.Debug("Rejected bearer token", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "bearer token unknown or expired"})
		return
	}

	var request oid4vc.CredentialRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format or proof is missing"})
		return
	}
	if request.Format == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format is missing"})
		return
	}
	if request.Proof == nil || request.Proof.JWT == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "proof is missing"})
		return
	}

	result, err := h.validator.Validate(c.Request.Context(), request.Proof.JWT)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response, err := h.engine.Issue(c.Request.Context(), result.HolderDID, h.cfg.CredentialID, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" {
		return "", false
	}
	return token, true
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	status := oid4vc.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Debug("Request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
