package wallet

import (
	"errors"

	"github.com/blockbase-labs/oid4vc-suite/internal/credential"
	"github.com/blockbase-labs/oid4vc-suite/internal/oid4vc"
)

// ErrNoMatch is returned when no stored credential satisfies the definition.
var ErrNoMatch = errors.New("no stored credential matches the presentation definition")

// Match selects the first stored credential whose type array contains the
// first input descriptor's id. Type matching works uniformly across JSON-LD
// and JWT-VC representations. When several credentials match, the first in
// storage order wins; this is a documented first-match policy, not best-match.
func Match(creds []*credential.Stored, definition *oid4vc.PresentationDefinition) (*credential.Stored, credential.Parsed, error) {
	if definition == nil || len(definition.InputDescriptors) == 0 {
		return nil, nil, ErrNoMatch
	}
	want := definition.InputDescriptors[0].ID

	for _, stored := range creds {
		parsed, err := credential.Parse(stored.VC)
		if err != nil {
			continue
		}
		if credential.HasType(parsed, want) {
			return stored, parsed, nil
		}
	}
	return nil, nil, ErrNoMatch
}
