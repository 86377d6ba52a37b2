// Package credential models stored verifiable credentials in their two wire
// representations, JSON-LD objects and compact JWT-VC strings, behind a shared
// type-list capability used uniformly by presentation matching.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
)

// ErrUnknownRepresentation is returned when a payload is neither a JSON-LD
// object nor a compact JWT string.
var ErrUnknownRepresentation = errors.New("unknown credential representation")

// Stored is a credential at rest in the wallet.
type Stored struct {
	ID        string          `json:"id" bson:"id"`
	VC        json.RawMessage `json:"vc" bson:"vc"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at"`
}

// Parsed is the decoded form of a stored credential. Both representations
// expose their type array through it.
type Parsed interface {
	// TypeList returns the credential's type array.
	TypeList() []string

	// Format returns the wire format, ldp_vc or jwt_vc_json.
	Format() string

	// Raw returns the credential as it was stored.
	Raw() json.RawMessage
}

// LD is a JSON-LD verifiable credential.
type LD struct {
	raw json.RawMessage
	doc map[string]any
}

func (c *LD) TypeList() []string {
	return stringSlice(c.doc["type"])
}

func (c *LD) Format() string { return oid4vc.FormatLDPVC }

func (c *LD) Raw() json.RawMessage { return c.raw }

// Subject returns the credentialSubject object, or nil.
func (c *LD) Subject() map[string]any {
	subject, _ := c.doc["credentialSubject"].(map[string]any)
	return subject
}

// JWTVC is a compact JWT verifiable credential. The token is decoded without
// signature verification; verification happens at presentation time against
// the issuer's resolved key.
type JWTVC struct {
	raw   json.RawMessage
	token string
	types []string
}

func (c *JWTVC) TypeList() []string { return c.types }

func (c *JWTVC) Format() string { return oid4vc.FormatJWTVCJSON }

func (c *JWTVC) Raw() json.RawMessage { return c.raw }

// Token returns the compact JWT string.
func (c *JWTVC) Token() string { return c.token }

// Parse decodes a stored credential payload into its representation.
func Parse(raw json.RawMessage) (Parsed, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, ErrUnknownRepresentation
	}

	if trimmed[0] == '{' {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decoding JSON-LD credential: %w", err)
		}
		return &LD{raw: raw, doc: doc}, nil
	}

	// A JSON string holding a compact JWT.
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		// Bare compact JWT without JSON quoting.
		token = trimmed
	}
	if strings.Count(token, ".") != 2 {
		return nil, ErrUnknownRepresentation
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding JWT-VC: %w", err)
	}

	var types []string
	if vc, ok := claims["vc"].(map[string]any); ok {
		types = stringSlice(vc["type"])
	}
	return &JWTVC{raw: raw, token: token, types: types}, nil
}

// HasType reports whether the parsed credential's type array contains want.
func HasType(c Parsed, want string) bool {
	for _, t := range c.TypeList() {
		if t == want {
			return true
		}
	}
	return false
}

func stringSlice(v any) []string {
	switch typed := v.(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{typed}
	default:
		return nil
	}
}
