package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/credential"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/internal/signer"
	"github.com/blockbase-labs/oid4vc-suite/internal/storage"
)

// clientTimeout bounds every outbound call the wallet makes.
const clientTimeout = 30 * time.Second

// Wallet drives the holder side of issuance and presentation.
type Wallet struct {
	store       storage.Store
	signer      *signer.Signer
	httpClient  *http.Client
	redirectURI string
	logger      *zap.Logger
}

// New creates a Wallet.
func New(store storage.Store, s *signer.Signer, redirectURI string, logger *zap.Logger) *Wallet {
	return &Wallet{
		store:       store,
		signer:      s,
		httpClient:  &http.Client{Timeout: clientTimeout},
		redirectURI: redirectURI,
		logger:      logger.Named("wallet"),
	}
}

// DID returns the wallet's DID.
func (w *Wallet) DID() string { return w.signer.DID() }

// ParseOfferURI decodes a credential offer deep link.
func ParseOfferURI(offerURI string) (*oid4vc.CredentialOffer, error) {
	parsed, err := url.Parse(offerURI)
	if err != nil {
		return nil, fmt.Errorf("%w: offer uri: %v", oid4vc.ErrMalformedRequest, err)
	}
	encoded := parsed.Query().Get("credential_offer")
	if encoded == "" {
		return nil, fmt.Errorf("%w: offer uri has no credential_offer parameter", oid4vc.ErrMalformedRequest)
	}
	var offer oid4vc.CredentialOffer
	if err := json.Unmarshal([]byte(encoded), &offer); err != nil {
		return nil, fmt.Errorf("%w: credential_offer: %v", oid4vc.ErrMalformedRequest, err)
	}
	return &offer, nil
}

// FetchIssuerMetadata retrieves the issuer's well-known metadata.
func (w *Wallet) FetchIssuerMetadata(ctx context.Context, issuerURL string) (*oid4vc.IssuerMetadata, error) {
	var metadata oid4vc.IssuerMetadata
	if err := w.getJSON(ctx, strings.TrimSuffix(issuerURL, "/")+"/.well-known/openid-credential-issuer", &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// AuthorizationURL builds the issuer authorization redirect for an
// authorization_code offer. The returned state must be replayed into
// CompleteIssuance together with the callback code.
func (w *Wallet) AuthorizationURL(metadata *oid4vc.IssuerMetadata) (authorizeURL, state string) {
	state = uuid.NewString()
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("state", state)
	query.Set("redirect_uri", w.redirectURI)
	return metadata.AuthorizationEndpoint + "?" + query.Encode(), state
}

// Issue runs the pre-authorized issuance flow end to end: offer, metadata,
// token, proof, credential, storage.
func (w *Wallet) Issue(ctx context.Context, offerURI string) (*credential.Stored, error) {
	flow := NewIssuanceFlow()

	if err := flow.To(OfferScanned); err != nil {
		return nil, err
	}
	offer, err := ParseOfferURI(offerURI)
	if err != nil {
		return nil, err
	}
	if len(offer.Credentials) == 0 {
		return nil, fmt.Errorf("%w: offer has no credentials", oid4vc.ErrMalformedRequest)
	}

	metadata, err := w.FetchIssuerMetadata(ctx, offer.CredentialIssuer)
	if err != nil {
		return nil, err
	}
	if err := flow.To(MetadataFetched); err != nil {
		return nil, err
	}

	if offer.Grants == nil || offer.Grants.PreAuthorizedCode == nil {
		return nil, fmt.Errorf("%w: offer carries no pre-authorized grant; use the authorization flow", oid4vc.ErrGrantNotFound)
	}
	if err := flow.To(PreAuthTokenRequested); err != nil {
		return nil, err
	}

	token, err := w.requestToken(ctx, metadata.TokenEndpoint, &oid4vc.TokenRequest{
		GrantType:         oid4vc.GrantPreAuthorizedCode,
		PreAuthorizedCode: offer.Grants.PreAuthorizedCode.PreAuthorizedCode,
	})
	if err != nil {
		_ = flow.To(IssuanceRejected)
		return nil, err
	}
	if err := flow.To(TokenObtained); err != nil {
		return nil, err
	}

	return w.fetchAndStoreCredential(ctx, flow, metadata, &offer.Credentials[0], token.AccessToken)
}

// CompleteIssuance finishes an authorization_code flow with the code returned
// to the wallet's redirect URI.
func (w *Wallet) CompleteIssuance(ctx context.Context, offerURI, code string) (*credential.Stored, error) {
	flow := NewIssuanceFlow()

	if err := flow.To(OfferScanned); err != nil {
		return nil, err
	}
	offer, err := ParseOfferURI(offerURI)
	if err != nil {
		return nil, err
	}
	if len(offer.Credentials) == 0 {
		return nil, fmt.Errorf("%w: offer has no credentials", oid4vc.ErrMalformedRequest)
	}

	metadata, err := w.FetchIssuerMetadata(ctx, offer.CredentialIssuer)
	if err != nil {
		return nil, err
	}
	if err := flow.To(MetadataFetched); err != nil {
		return nil, err
	}
	if err := flow.To(AuthRedirected); err != nil {
		return nil, err
	}

	token, err := w.requestToken(ctx, metadata.TokenEndpoint, &oid4vc.TokenRequest{
		GrantType:   oid4vc.GrantAuthorizationCode,
		Code:        code,
		RedirectURI: w.redirectURI,
	})
	if err != nil {
		_ = flow.To(IssuanceRejected)
		return nil, err
	}
	if err := flow.To(TokenObtained); err != nil {
		return nil, err
	}

	return w.fetchAndStoreCredential(ctx, flow, metadata, &offer.Credentials[0], token.AccessToken)
}

func (w *Wallet) fetchAndStoreCredential(
	ctx context.Context,
	flow *IssuanceFlow,
	metadata *oid4vc.IssuerMetadata,
	offered *oid4vc.OfferedCredential,
	accessToken string,
) (*credential.Stored, error) {
	proofJWT, err := w.signer.Proof(metadata.CredentialIssuer, "")
	if err != nil {
		_ = flow.To(IssuanceRejected)
		return nil, fmt.Errorf("%w: %v", oid4vc.ErrSigningFailed, err)
	}

	request := oid4vc.CredentialRequest{
		Format: offered.Format,
		Type:   offered.ID,
		Proof:  &oid4vc.Proof{ProofType: "jwt", JWT: proofJWT},
	}
	var response oid4vc.CredentialResponse
	if err := w.postJSON(ctx, metadata.CredentialEndpoint, accessToken, request, &response); err != nil {
		_ = flow.To(IssuanceRejected)
		return nil, err
	}
	if err := flow.To(ProofSubmitted); err != nil {
		return nil, err
	}
	if len(response.Credential) == 0 {
		_ = flow.To(IssuanceRejected)
		return nil, fmt.Errorf("%w: response has no credential", oid4vc.ErrSigningFailed)
	}

	stored := &credential.Stored{
		ID: offered.ID + "-" + uuid.NewString(),
		VC: response.Credential,
	}
	if err := w.store.Credentials().Save(ctx, stored); err != nil {
		_ = flow.To(IssuanceRejected)
		return nil, err
	}
	if err := flow.To(CredentialStored); err != nil {
		return nil, err
	}

	w.logger.Info("Stored credential",
		zap.String("id", stored.ID),
		zap.String("format", response.Format))
	return stored, nil
}

// Present runs the presentation flow against a verifier deep link or request
// URI and returns the verifier's response body.
func (w *Wallet) Present(ctx context.Context, link string) (map[string]any, error) {
	flow := NewPresentationFlow()

	if err := flow.To(RequestScanned); err != nil {
		return nil, err
	}
	requestURI := link
	if parsed, err := url.Parse(link); err == nil {
		if fromQuery := parsed.Query().Get("request_uri"); fromQuery != "" {
			requestURI = fromQuery
		}
	}

	var request oid4vc.PresentationRequest
	if err := w.getJSON(ctx, requestURI, &request); err != nil {
		_ = flow.To(PresentationFailed)
		return nil, err
	}
	if err := flow.To(RequestFetched); err != nil {
		return nil, err
	}

	creds, err := w.store.Credentials().GetAll(ctx)
	if err != nil {
		_ = flow.To(PresentationFailed)
		return nil, err
	}
	stored, parsed, err := Match(creds, request.PresentationDefinition)
	if err != nil {
		_ = flow.To(PresentationFailed)
		return nil, err
	}
	if err := flow.To(CredentialSelected); err != nil {
		return nil, err
	}

	submission, err := w.buildSubmission(&request, stored, parsed)
	if err != nil {
		_ = flow.To(PresentationFailed)
		return nil, err
	}

	var verdict map[string]any
	if err := w.postJSON(ctx, request.RedirectURI, "", submission, &verdict); err != nil {
		_ = flow.To(PresentationFailed)
		return nil, err
	}
	if err := flow.To(PresentationSubmitted); err != nil {
		return nil, err
	}

	if verdict["verify"] == "ok" {
		_ = flow.To(PresentationVerified)
	} else {
		_ = flow.To(PresentationFailed)
	}
	return verdict, nil
}

func (w *Wallet) buildSubmission(
	request *oid4vc.PresentationRequest,
	stored *credential.Stored,
	parsed credential.Parsed,
) (*oid4vc.PresentationSubmission, error) {
	vpFormat := oid4vc.FormatLDPVP
	var vcs []any
	if parsed.Format() == oid4vc.FormatJWTVCJSON {
		vpFormat = oid4vc.FormatJWTVPJSON
		vcs = []any{parsed.(*credential.JWTVC).Token()}
	} else {
		var doc map[string]any
		if err := json.Unmarshal(stored.VC, &doc); err != nil {
			return nil, err
		}
		vcs = []any{doc}
	}

	vpToken, err := w.signer.CreateVP(vpFormat, signer.VPOptions{
		VCs:   vcs,
		Nonce: request.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oid4vc.ErrSigningFailed, err)
	}

	descriptorID := ""
	if request.PresentationDefinition != nil && len(request.PresentationDefinition.InputDescriptors) > 0 {
		descriptorID = request.PresentationDefinition.InputDescriptors[0].ID
	}

	idToken, err := w.signer.SIOPV2(signer.SiopClaims{
		Nonce: request.Nonce,
		State: request.State,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oid4vc.ErrSigningFailed, err)
	}

	return &oid4vc.PresentationSubmission{
		PresentationSubmission: &oid4vc.SubmissionDescriptor{
			ID:           uuid.NewString(),
			DefinitionID: request.PresentationDefinition.ID,
			DescriptorMap: []oid4vc.DescriptorMapEntry{
				{ID: descriptorID, Format: vpFormat, Path: "$"},
			},
		},
		VPToken: vpToken,
		IDToken: idToken,
		State:   request.State,
	}, nil
}

// List returns all stored credentials.
func (w *Wallet) List(ctx context.Context) ([]*credential.Stored, error) {
	return w.store.Credentials().GetAll(ctx)
}

func (w *Wallet) requestToken(ctx context.Context, tokenEndpoint string, request *oid4vc.TokenRequest) (*oid4vc.TokenResponse, error) {
	var token oid4vc.TokenResponse
	if err := w.postJSON(ctx, tokenEndpoint, "", request, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access_token in response", oid4vc.ErrUpstreamToken)
	}
	return &token, nil
}

func (w *Wallet) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return w.doJSON(req, out)
}

func (w *Wallet) postJSON(ctx context.Context, url, bearer string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return w.doJSON(req, out)
}

func (w *Wallet) doJSON(req *http.Request, out any) error {
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", oid4vc.ErrUpstreamUnavailable, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", oid4vc.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned status %d: %s", oid4vc.ErrUpstreamToken, req.URL, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
