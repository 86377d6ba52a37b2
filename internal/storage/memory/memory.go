// Package memory implements in-process wallet storage for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/blockbase-labs/oid4vc-suite/internal/credential"
	"github.com/blockbase-labs/oid4vc-suite/internal/storage"
)

// Store implements storage.Store in memory.
type Store struct {
	credentials *CredentialStore
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		credentials: &CredentialStore{
			byID: make(map[string]*credential.Stored),
		},
	}
}

func (s *Store) Credentials() storage.CredentialStore { return s.credentials }

func (s *Store) Close() error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

// CredentialStore implements in-memory credential storage.
type CredentialStore struct {
	mu    sync.RWMutex
	byID  map[string]*credential.Stored
	order []string
}

func (s *CredentialStore) Save(ctx context.Context, cred *credential.Stored) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[cred.ID]; exists {
		return storage.ErrAlreadyExists
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	stored := *cred
	s.byID[cred.ID] = &stored
	s.order = append(s.order, cred.ID)
	return nil
}

func (s *CredentialStore) GetByID(ctx context.Context, id string) (*credential.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *CredentialStore) GetAll(ctx context.Context) ([]*credential.Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*credential.Stored, 0, len(s.order))
	for _, id := range s.order {
		if cred, ok := s.byID[id]; ok {
			copied := *cred
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *CredentialStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.byID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
