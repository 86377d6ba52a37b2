package didkey

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nuts-foundation/go-did/did"
)

// UniversalResolver resolves DIDs of arbitrary methods through a universal
// resolver deployment's /1.0/identifiers endpoint.
type UniversalResolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewUniversalResolver creates a client for the resolver at baseURL.
func NewUniversalResolver(baseURL string) *UniversalResolver {
	return &UniversalResolver{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type resolutionResult struct {
	DIDDocument json.RawMessage `json:"didDocument"`
}

func (r *UniversalResolver) Resolve(ctx context.Context, id did.DID) (*did.Document, error) {
	endpoint := r.baseURL + "/1.0/identifiers/" + url.PathEscape(id.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", id.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("resolver returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var result resolutionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding resolver response: %w", err)
	}
	if len(result.DIDDocument) == 0 {
		return nil, fmt.Errorf("resolver returned no DID document for %s", id.String())
	}

	var document did.Document
	if err := json.Unmarshal(result.DIDDocument, &document); err != nil {
		return nil, fmt.Errorf("decoding DID document: %w", err)
	}
	return &document, nil
}

// MethodRouter dispatches resolution by DID method: did:key locally, anything
// else through the fallback resolver when one is configured.
type MethodRouter struct {
	Local    LocalResolver
	Fallback Resolver
}

func (r MethodRouter) Resolve(ctx context.Context, id did.DID) (*did.Document, error) {
	if id.Method == MethodName {
		return r.Local.Resolve(ctx, id)
	}
	if r.Fallback == nil {
		return nil, fmt.Errorf("no resolver configured for DID method %q", id.Method)
	}
	return r.Fallback.Resolve(ctx, id)
}
