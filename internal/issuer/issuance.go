package issuer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
)

// Engine issues credentials: template lookup, subject merge, backend signing.
type Engine struct {
	backend Backend
	logger  *zap.Logger
}

// NewEngine creates an issuance Engine.
func NewEngine(backend Backend, logger *zap.Logger) *Engine {
	return &Engine{
		backend: backend,
		logger:  logger.Named("issuance"),
	}
}

// Issue looks up the credential template, merges the subject claims and
// delegates to the signing backend. The holder DID becomes the credential
// subject's id; caller-supplied claims win over template defaults.
func (e *Engine) Issue(ctx context.Context, holderDID, credentialID string, subjectClaims map[string]any) (*oid4vc.CredentialResponse, error) {
	descriptor, err := e.backend.Descriptor(ctx, credentialID)
	if err != nil {
		return nil, err
	}

	template, err := findTemplate(descriptor.CredentialsSupported, credentialID)
	if err != nil {
		return nil, err
	}

	subject := make(map[string]any, len(template.CredentialSubject)+len(subjectClaims)+1)
	for k, v := range template.CredentialSubject {
		subject[k] = v
	}
	for k, v := range subjectClaims {
		subject[k] = v
	}
	subject["id"] = holderDID
	template.CredentialSubject = subject

	signed, err := e.backend.Sign(ctx, template)
	if err != nil {
		return nil, err
	}

	format := template.Format
	if format == "" {
		format = e.backend.Format()
	}

	e.logger.Info("Issued credential",
		zap.String("credential_id", credentialID),
		zap.String("format", format),
		zap.String("holder", holderDID))

	return &oid4vc.CredentialResponse{
		Credential: signed,
		Format:     format,
	}, nil
}

// findTemplate returns a copy of the template matching id so the merge never
// mutates the descriptor.
func findTemplate(templates []oid4vc.CredentialTemplate, id string) (*oid4vc.CredentialTemplate, error) {
	for i := range templates {
		if templates[i].ID == id {
			template := templates[i]
			return &template, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", oid4vc.ErrTemplateNotFound, id)
}
