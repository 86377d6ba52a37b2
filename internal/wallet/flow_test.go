package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuancePreAuthorizedPath(t *testing.T) {
	flow := NewIssuanceFlow()
	assert.Equal(t, IssuanceIdle, flow.State())

	for _, next := range []IssuanceState{
		OfferScanned, MetadataFetched, PreAuthTokenRequested,
		TokenObtained, ProofSubmitted, CredentialStored,
	} {
		require.NoError(t, flow.To(next))
	}
	assert.Equal(t, CredentialStored, flow.State())
}

func TestIssuanceAuthorizationPath(t *testing.T) {
	flow := NewIssuanceFlow()
	for _, next := range []IssuanceState{
		OfferScanned, MetadataFetched, AuthRedirected,
		TokenObtained, ProofSubmitted, CredentialStored,
	} {
		require.NoError(t, flow.To(next))
	}
	assert.Equal(t, CredentialStored, flow.State())
}

func TestIssuanceInvalidTransition(t *testing.T) {
	flow := NewIssuanceFlow()

	err := flow.To(TokenObtained)
	require.Error(t, err)
	assert.Equal(t, IssuanceIdle, flow.State(), "a rejected transition leaves the state unchanged")
}

func TestIssuanceTerminalStates(t *testing.T) {
	flow := NewIssuanceFlow()
	require.NoError(t, flow.To(OfferScanned))
	require.NoError(t, flow.To(MetadataFetched))
	require.NoError(t, flow.To(PreAuthTokenRequested))
	require.NoError(t, flow.To(IssuanceRejected))

	assert.Error(t, flow.To(TokenObtained), "rejected is terminal")
}

func TestPresentationPath(t *testing.T) {
	flow := NewPresentationFlow()

	for _, next := range []PresentationState{
		RequestScanned, RequestFetched, CredentialSelected,
		PresentationSubmitted, PresentationVerified,
	} {
		require.NoError(t, flow.To(next))
	}
	assert.Equal(t, PresentationVerified, flow.State())
}

func TestPresentationFailureFromAnyStep(t *testing.T) {
	flow := NewPresentationFlow()
	require.NoError(t, flow.To(RequestScanned))
	require.NoError(t, flow.To(PresentationFailed))

	assert.Error(t, flow.To(RequestFetched), "failed is terminal")
}
