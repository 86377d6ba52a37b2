// Package jsonld wraps the JSON-LD operations needed for linked-data proofs.
package jsonld

import (
	"encoding/json"
	"fmt"

	"github.com/piprate/json-gold/ld"
)

// Canonicalizer normalizes JSON-LD documents according to URDNA2015.
type Canonicalizer struct {
	Loader ld.DocumentLoader
}

// NewCanonicalizer creates a Canonicalizer with a caching document loader that
// may fetch remote contexts.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{
		Loader: ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(nil)),
	}
}

// Canonicalize normalizes the input document to n-quads. The input may be a
// map or any JSON-marshalable value.
func (c *Canonicalizer) Canonicalize(input any) ([]byte, error) {
	var doc map[string]any
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions("")
	options.DocumentLoader = c.Loader
	options.Format = "application/n-quads"
	options.Algorithm = "URDNA2015"

	result, err := proc.Normalize(doc, options)
	if err != nil {
		return nil, fmt.Errorf("unable to normalize document: %w", err)
	}
	quads, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected normalization result type %T", result)
	}
	return []byte(quads), nil
}
