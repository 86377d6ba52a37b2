package verifier

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/internal/qr"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

const requestURIScheme = "openid4vp://?request_uri="

// Handlers wires the verifier HTTP surface.
type Handlers struct {
	baseURL   string
	requests  *RequestEngine
	validator *SubmissionValidator
	logger    *zap.Logger
}

// NewHandlers creates the verifier handler set.
func NewHandlers(cfg *config.VerifierConfig, requests *RequestEngine, validator *SubmissionValidator, logger *zap.Logger) *Handlers {
	return &Handlers{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		requests:  requests,
		validator: validator,
		logger:    logger.Named("verifier_api"),
	}
}

// Register attaches all verifier routes. The submission endpoint answers on
// both /present and /post.
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/", h.Health)
	r.GET("/qr", h.QR)
	r.GET("/presentationRequest", h.PresentationRequest)
	r.POST("/present", h.Present)
	r.POST("/post", h.Present)
}

// Health returns a liveness response.
// GET /
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "verifier"})
}

// QR serves the presentation request deep link as a QR code PNG.
// GET /qr
func (h *Handlers) QR(c *gin.Context) {
	uri := requestURIScheme + url.QueryEscape(h.baseURL+"/presentationRequest")
	png, err := qr.EncodePNG(uri, qr.DefaultSize)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// PresentationRequest mints a challenge and returns the presentation request.
// GET /presentationRequest
func (h *Handlers) PresentationRequest(c *gin.Context) {
	request, err := h.requests.NewRequest(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

// Present validates a direct_post submission.
// POST /present, POST /post
func (h *Handlers) Present(c *gin.Context) {
	var submission oid4vc.PresentationSubmission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed submission"})
		return
	}

	result, err := h.validator.Validate(c.Request.Context(), &submission)
	if err != nil {
		h.respondError(c, err)
		return
	}

	response := gin.H{"verify": "ok"}
	if result.HolderDID != "" {
		response["holder"] = result.HolderDID
	}
	c.JSON(http.StatusOK, response)
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
