package didkey

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// keyFile is the on-disk form of a wallet key pair. Only the seed is stored;
// the public key and DID derive from it.
type keyFile struct {
	Seed string `json:"seed"`
}

// LoadOrGenerate reads the key pair at path, generating and persisting a new
// one when the file does not exist.
func LoadOrGenerate(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading key file: %w", err)
		}
		keyPair, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := save(path, keyPair); err != nil {
			return nil, err
		}
		return keyPair, nil
	}

	var file keyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing key file: %w", err)
	}
	seed, err := base64.RawURLEncoding.DecodeString(file.Seed)
	if err != nil {
		return nil, fmt.Errorf("decoding key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("key seed has length %d, want %d", len(seed), ed25519.SeedSize)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	id, err := FromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{DID: *id, PublicKey: pub, PrivateKey: priv}, nil
}

func save(path string, keyPair *KeyPair) error {
	data, err := json.Marshal(keyFile{
		Seed: base64.RawURLEncoding.EncodeToString(keyPair.PrivateKey.Seed()),
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}
