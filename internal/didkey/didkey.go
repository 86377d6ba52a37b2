// Package didkey implements did:key generation and local resolution, plus an
// HTTP client for a universal resolver. Both satisfy the Resolver capability
// the proof validator depends on.
package didkey

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-multicodec"
	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"
	"github.com/shengdoushi/base58"
)

// MethodName is the DID method handled locally.
const MethodName = "key"

var errInvalidPublicKeyLength = errors.New("invalid did:key: invalid public key length")

// Resolver resolves a DID to its DID document. Implementations must not
// require any private key material.
type Resolver interface {
	Resolve(ctx context.Context, id did.DID) (*did.Document, error)
}

// KeyPair is a generated wallet key with its derived DID.
type KeyPair struct {
	DID        did.DID
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate creates an Ed25519 key pair and derives its did:key identifier.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}

	id, err := FromPublicKey(pub)
	if err != nil {
		return nil, err
	}

	return &KeyPair{DID: *id, PublicKey: pub, PrivateKey: priv}, nil
}

// FromPublicKey derives the did:key identifier of an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (*did.DID, error) {
	prefix := binary.AppendUvarint(nil, uint64(multicodec.Ed25519Pub))
	encoded := base58.Encode(append(prefix, pub...), base58.BitcoinAlphabet)

	id, err := did.ParseDID("did:" + MethodName + ":z" + encoded)
	if err != nil {
		return nil, fmt.Errorf("deriving did:key: %w", err)
	}
	return id, nil
}

// LocalResolver resolves did:key identifiers without network access.
type LocalResolver struct{}

func (LocalResolver) Resolve(_ context.Context, id did.DID) (*did.Document, error) {
	if id.Method != MethodName {
		return nil, fmt.Errorf("unsupported DID method: %s", id.Method)
	}
	encodedKey := id.ID
	if len(encodedKey) == 0 || encodedKey[0] != 'z' {
		return nil, errors.New("did:key does not start with 'z'")
	}
	mcBytes, err := base58.Decode(encodedKey[1:], base58.BitcoinAlphabet)
	if err != nil {
		return nil, fmt.Errorf("did:key: invalid base58btc: %w", err)
	}
	reader := bytes.NewReader(mcBytes)
	keyType, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, fmt.Errorf("did:key: invalid multicodec value: %w", err)
	}

	var key crypto.PublicKey
	mcBytes, _ = io.ReadAll(reader)

	switch multicodec.Code(keyType) {
	case multicodec.Ed25519Pub:
		if len(mcBytes) != ed25519.PublicKeySize {
			return nil, errInvalidPublicKeyLength
		}
		key = ed25519.PublicKey(mcBytes)
	case multicodec.P256Pub:
		if len(mcBytes) != 33 {
			return nil, errInvalidPublicKeyLength
		}
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), mcBytes)
		if x == nil {
			return nil, errors.New("did:key: invalid compressed P-256 point")
		}
		key = ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	default:
		return nil, fmt.Errorf("did:key: unsupported public key type: %d", keyType)
	}

	return documentFor(id, key)
}

func documentFor(id did.DID, key crypto.PublicKey) (*did.Document, error) {
	document := did.Document{
		Context: []interface{}{
			ssi.MustParseURI("https://w3c-ccg.github.io/lds-jws2020/contexts/lds-jws2020-v1.json"),
			did.DIDContextV1URI(),
		},
		ID: id,
	}
	keyID := did.DIDURL{DID: id, Fragment: id.ID}
	vm, err := did.NewVerificationMethod(keyID, ssi.JsonWebKey2020, id, key)
	if err != nil {
		return nil, err
	}
	document.AddAssertionMethod(vm)
	document.AddAuthenticationMethod(vm)
	return &document, nil
}

// VerificationKeys extracts the public keys of a document's verification
// methods, authentication methods first.
func VerificationKeys(doc *did.Document) []crypto.PublicKey {
	var keys []crypto.PublicKey
	seen := map[string]bool{}
	for _, rel := range append(doc.Authentication, doc.AssertionMethod...) {
		if seen[rel.ID.String()] {
			continue
		}
		seen[rel.ID.String()] = true
		if key, err := rel.PublicKey(); err == nil {
			keys = append(keys, key)
		}
	}
	for _, vm := range doc.VerificationMethod {
		if seen[vm.ID.String()] {
			continue
		}
		seen[vm.ID.String()] = true
		if key, err := vm.PublicKey(); err == nil {
			keys = append(keys, key)
		}
	}
	return keys
}
