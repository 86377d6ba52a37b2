// Package wallet implements the holder: offer handling, token exchange, proof
// submission, credential storage and presentation against a verifier.
package wallet

import "fmt"

// IssuanceState is a step of the issuance flow.
type IssuanceState string

// Issuance flow states. Expired and Rejected are terminal failures.
const (
	IssuanceIdle          IssuanceState = "idle"
	OfferScanned          IssuanceState = "offer_scanned"
	MetadataFetched       IssuanceState = "metadata_fetched"
	AuthRedirected        IssuanceState = "auth_redirected"
	PreAuthTokenRequested IssuanceState = "pre_auth_token_requested"
	TokenObtained         IssuanceState = "token_obtained"
	ProofSubmitted        IssuanceState = "proof_submitted"
	CredentialStored      IssuanceState = "credential_stored"
	IssuanceExpired       IssuanceState = "expired"
	IssuanceRejected      IssuanceState = "rejected"
)

var issuanceTransitions = map[IssuanceState][]IssuanceState{
	IssuanceIdle:          {OfferScanned},
	OfferScanned:          {MetadataFetched, IssuanceExpired},
	MetadataFetched:       {AuthRedirected, PreAuthTokenRequested, IssuanceExpired},
	AuthRedirected:        {TokenObtained, IssuanceExpired, IssuanceRejected},
	PreAuthTokenRequested: {TokenObtained, IssuanceExpired, IssuanceRejected},
	TokenObtained:         {ProofSubmitted, IssuanceExpired, IssuanceRejected},
	ProofSubmitted:        {CredentialStored, IssuanceExpired, IssuanceRejected},
}

// IssuanceFlow tracks one issuance attempt through its states.
type IssuanceFlow struct {
	state IssuanceState
}

// NewIssuanceFlow starts a flow in the idle state.
func NewIssuanceFlow() *IssuanceFlow {
	return &IssuanceFlow{state: IssuanceIdle}
}

// State returns the current state.
func (f *IssuanceFlow) State() IssuanceState { return f.state }

// To advances the flow. Transitions outside the state machine fail.
func (f *IssuanceFlow) To(next IssuanceState) error {
	for _, allowed := range issuanceTransitions[f.state] {
		if allowed == next {
			f.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid issuance transition %s -> %s", f.state, next)
}

// PresentationState is a step of the presentation flow.
type PresentationState string

// Presentation flow states. Failed is terminal.
const (
	PresentationIdle      PresentationState = "idle"
	RequestScanned        PresentationState = "request_scanned"
	RequestFetched        PresentationState = "request_fetched"
	CredentialSelected    PresentationState = "credential_selected"
	PresentationSubmitted PresentationState = "presentation_submitted"
	PresentationVerified  PresentationState = "verified"
	PresentationFailed    PresentationState = "failed"
)

var presentationTransitions = map[PresentationState][]PresentationState{
	PresentationIdle:      {RequestScanned},
	RequestScanned:        {RequestFetched, PresentationFailed},
	RequestFetched:        {CredentialSelected, PresentationFailed},
	CredentialSelected:    {PresentationSubmitted, PresentationFailed},
	PresentationSubmitted: {PresentationVerified, PresentationFailed},
}

// PresentationFlow tracks one presentation attempt through its states.
type PresentationFlow struct {
	state PresentationState
}

// NewPresentationFlow starts a flow in the idle state.
func NewPresentationFlow() *PresentationFlow {
	return &PresentationFlow{state: PresentationIdle}
}

// State returns the current state.
func (f *PresentationFlow) State() PresentationState { return f.state }

// To advances the flow. Transitions outside the state machine fail.
func (f *PresentationFlow) To(next PresentationState) error {
	for _, allowed := range presentationTransitions[f.state] {
		if allowed == next {
			f.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid presentation transition %s -> %s", f.state, next)
}
