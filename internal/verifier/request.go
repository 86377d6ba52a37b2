// Package verifier implements the presentation verifier: challenge issuance
// and submission validation with mandatory vp_token verification.
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/cache"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
	"github.com/blockbase-labs/oid4vc-suite/pkg/config"
)

const stateKeyPrefix = "state:"

// challenge is the session value stored under a presentation state.
type challenge struct {
	Nonce string `json:"nonce"`
}

// RequestEngine builds presentation requests and tracks their challenges.
type RequestEngine struct {
	store      cache.Store
	definition *oid4vc.PresentationDefinition
	baseURL    string
	fixedState string
	fixedNonce string
	ttl        time.Duration
	logger     *zap.Logger
}

// NewRequestEngine creates a RequestEngine. The presentation definition is
// loaded from the configured file when set, otherwise synthesized from the
// configured credential type.
func NewRequestEngine(store cache.Store, cfg *config.VerifierConfig, ttl time.Duration, logger *zap.Logger) (*RequestEngine, error) {
	definition, err := loadDefinition(cfg)
	if err != nil {
		return nil, err
	}
	return &RequestEngine{
		store:      store,
		definition: definition,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		fixedState: cfg.FixedState,
		fixedNonce: cfg.FixedNonce,
		ttl:        ttl,
		logger:     logger.Named("presentation_request"),
	}, nil
}

func loadDefinition(cfg *config.VerifierConfig) (*oid4vc.PresentationDefinition, error) {
	if cfg.DefinitionPath != "" {
		data, err := os.ReadFile(cfg.DefinitionPath)
		if err != nil {
			return nil, fmt.Errorf("reading presentation definition: %w", err)
		}
		var definition oid4vc.PresentationDefinition
		if err := json.Unmarshal(data, &definition); err != nil {
			return nil, fmt.Errorf("parsing presentation definition: %w", err)
		}
		return &definition, nil
	}

	return &oid4vc.PresentationDefinition{
		InputDescriptors: []oid4vc.InputDescriptor{
			{ID: cfg.CredentialType},
		},
	}, nil
}

// NewRequest mints a state/nonce pair, stores the nonce under the state and
// returns the presentation request pointing at this verifier's submission
// endpoint. Fixed state and nonce values are honored when configured.
func (e *RequestEngine) NewRequest(ctx context.Context) (*oid4vc.PresentationRequest, error) {
	state := e.fixedState
	if state == "" {
		state = uuid.NewString()
	}
	nonce := e.fixedNonce
	if nonce == "" {
		nonce = uuid.NewString()
	}

	value, err := json.Marshal(challenge{Nonce: nonce})
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, stateKeyPrefix+state, value, e.ttl); err != nil {
		return nil, err
	}

	return &oid4vc.PresentationRequest{
		ResponseTypes:          "vp_token",
		ResponseMode:           "direct_post",
		Scope:                  "openid",
		RedirectURI:            e.baseURL + "/present",
		PresentationDefinition: e.definition,
		State:                  state,
		Nonce:                  nonce,
	}, nil
}
