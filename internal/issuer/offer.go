package issuer

import (
	"encoding/json"
	"net/url"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

// BuildOffer assembles the credential offer advertised by the QR endpoint.
// preAuthorizedCode is embedded only for the pre-authorized flow.
func BuildOffer(cfg *config.IssuerConfig, format, preAuthorizedCode string) *oid4vc.CredentialOffer {
	offer := &oid4vc.CredentialOffer{
		CredentialIssuer: cfg.BaseURL,
		Credentials: []oid4vc.OfferedCredential{
			{ID: cfg.CredentialID, Format: format},
		},
	}

	switch cfg.Flow {
	case config.FlowPreAuthorizedCode:
		offer.Grants = &oid4vc.Grants{
			PreAuthorizedCode: &oid4vc.PreAuthorizedGrant{PreAuthorizedCode: preAuthorizedCode},
		}
	default:
		offer.Grants = &oid4vc.Grants{
			AuthorizationCode: &struct{}{},
		}
	}
	return offer
}

// OfferURI encodes the offer as a wallet deep link:
// {scheme}://?credential_offer=<url-encoded JSON>.
func OfferURI(scheme string, offer *oid4vc.CredentialOffer) (string, error) {
	payload, err := json.Marshal(offer)
	if err != nil {
		return "", err
	}
	return scheme + "://?credential_offer=" + url.QueryEscape(string(payload)), nil
}
