// Package oid4vc defines the wire types shared by the issuer, verifier and
// wallet for the OpenID4VCI / OpenID4VP protocol family, together with the
// protocol error taxonomy.
package oid4vc

import "encoding/json"

// Grant type identifiers as they appear in credential offers and token requests.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantPreAuthorizedCode = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// Credential formats supported by the signing backends.
const (
	FormatLDPVC     = "ldp_vc"
	FormatJWTVCJSON = "jwt_vc_json"
	FormatLDPVP     = "ldp_vp"
	FormatJWTVPJSON = "jwt_vp_json"
)

// OfferedCredential identifies one credential in a credential offer.
type OfferedCredential struct {
	ID     string `json:"id"`
	Format string `json:"format"`
}

// PreAuthorizedGrant carries the opaque single-use code of a pre-authorized offer.
type PreAuthorizedGrant struct {
	PreAuthorizedCode string `json:"pre-authorized_code"`
}

// Grants holds the grant variants a credential offer may carry. At most one is set.
type Grants struct {
	AuthorizationCode *struct{}           `json:"authorization_code,omitempty"`
	PreAuthorizedCode *PreAuthorizedGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

// CredentialOffer is the payload encoded into the issuer's offer QR code.
type CredentialOffer struct {
	CredentialIssuer string              `json:"credential_issuer"`
	Credentials      []OfferedCredential `json:"credentials"`
	Grants           *Grants             `json:"grants,omitempty"`
}

// TemplateDisplay carries display hints for a credential template. Contract is
// the Entra-style manifest binding, relayed to the wallet untouched.
type TemplateDisplay struct {
	Name            string `json:"name,omitempty"`
	Description     string `json:"description,omitempty"`
	Locale          string `json:"locale,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	TextColor       string `json:"text_color,omitempty"`
	Contract        string `json:"contract,omitempty"`
}

// CredentialTemplate describes one supported credential. The backend descriptor
// is the template source; the issuer merges subject claims into
// CredentialSubject before signing.
type CredentialTemplate struct {
	ID                string           `json:"id"`
	Format            string           `json:"format,omitempty"`
	Types             []string         `json:"type,omitempty"`
	Context           []string         `json:"@context,omitempty"`
	Display           *TemplateDisplay `json:"display,omitempty"`
	CredentialSubject map[string]any   `json:"credentialSubject,omitempty"`
}

// IssuerMetadata is the canonical descriptor served from
// /.well-known/openid-credential-issuer. Built fresh per request; never persisted.
type IssuerMetadata struct {
	Issuer                           string               `json:"issuer"`
	CredentialIssuer                 string               `json:"credential_issuer"`
	AuthorizationEndpoint            string               `json:"authorization_endpoint"`
	TokenEndpoint                    string               `json:"token_endpoint"`
	CredentialEndpoint               string               `json:"credential_endpoint"`
	CredentialsSupported             []CredentialTemplate `json:"credentials_supported"`
	ScopesSupported                  []string             `json:"scopes_supported"`
	ResponseTypesSupported           []string             `json:"response_types_supported,omitempty"`
	ResponseModesSupported           []string             `json:"response_modes_supported,omitempty"`
	GrantTypesSupported              []string             `json:"grant_types_supported"`
	CodeChallengeMethodsSupported    []string             `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string            `json:"token_endpoint_auth_methods_supported,omitempty"`
}

// TokenRequest is the body of POST /token. The grant variant in use is decided
// by issuer configuration, not by inspecting the request.
type TokenRequest struct {
	GrantType         string `json:"grant_type,omitempty"`
	Code              string `json:"code,omitempty"`
	ClientID          string `json:"client_id,omitempty"`
	CodeVerifier      string `json:"code_verifier,omitempty"`
	RedirectURI       string `json:"redirect_uri,omitempty"`
	PreAuthorizedCode string `json:"pre-authorized_code,omitempty"`
}

// TokenResponse is the token endpoint response, relayed verbatim for the
// authorization_code variant and synthesized for the pre-authorized one.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
}

// Proof is the holder's proof-of-possession submitted with a credential request.
type Proof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// CredentialRequest is the body of POST /credential.
type CredentialRequest struct {
	Format string `json:"format"`
	Type   string `json:"type,omitempty"`
	Proof  *Proof `json:"proof,omitempty"`
}

// CredentialResponse carries the signed credential back to the wallet. The
// credential is a JSON-LD object or a compact JWT string depending on format.
type CredentialResponse struct {
	Credential json.RawMessage `json:"credential"`
	Format     string          `json:"format"`
}

// InputDescriptor names the credential type(s) a verifier requires.
type InputDescriptor struct {
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Purpose string         `json:"purpose,omitempty"`
	Format  map[string]any `json:"format,omitempty"`
}

// PresentationDefinition is the verifier's declared credential requirements.
type PresentationDefinition struct {
	ID               string            `json:"id,omitempty"`
	InputDescriptors []InputDescriptor `json:"input_descriptors"`
}

// PresentationRequest is served from GET /presentationRequest. The nonce must
// reappear, signed, inside the holder's submitted ID token.
type PresentationRequest struct {
	ResponseTypes          string                  `json:"response_types"`
	ResponseMode           string                  `json:"response_mode"`
	Scope                  string                  `json:"scope"`
	RedirectURI            string                  `json:"redirect_uri"`
	PresentationDefinition *PresentationDefinition `json:"presentation_definition"`
	State                  string                  `json:"state,omitempty"`
	Nonce                  string                  `json:"nonce,omitempty"`
}

// DescriptorMapEntry maps one submitted credential to an input descriptor.
type DescriptorMapEntry struct {
	ID         string              `json:"id"`
	Format     string              `json:"format"`
	Path       string              `json:"path"`
	PathNested *DescriptorMapEntry `json:"path_nested,omitempty"`
}

// SubmissionDescriptor is the presentation_submission object of a submission.
type SubmissionDescriptor struct {
	ID            string               `json:"id,omitempty"`
	DefinitionID  string               `json:"definition_id,omitempty"`
	DescriptorMap []DescriptorMapEntry `json:"descriptor_map"`
}

// PresentationSubmission is the body of the verifier's direct_post endpoint.
// VPToken is a compact JWT string (jwt_vp_json) or a JSON-LD object (ldp_vp).
type PresentationSubmission struct {
	PresentationSubmission *SubmissionDescriptor `json:"presentation_submission,omitempty"`
	VPToken                json.RawMessage       `json:"vp_token,omitempty"`
	IDToken                string                `json:"id_token,omitempty"`
	State                  string                `json:"state,omitempty"`
}

// Scope returns the synthesized scope string "{format}:{credentialType}".
func Scope(format, credentialType string) string {
	return format + ":" + credentialType
}
