// Package storage defines the wallet's credential persistence interface.
package storage

import (
	"context"
	"errors"

	"github.com/blockbase-labs/oid4vc-suite/internal/credential"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrDatabase      = errors.New("database error")
)

// CredentialStore defines the interface for stored-credential operations.
type CredentialStore interface {
	// Save stores a credential. Saving an existing id fails with ErrAlreadyExists.
	Save(ctx context.Context, cred *credential.Stored) error

	// GetByID retrieves a credential by id
	GetByID(ctx context.Context, id string) (*credential.Stored, error)

	// GetAll retrieves all stored credentials in insertion order
	GetAll(ctx context.Context) ([]*credential.Stored, error)

	// Delete deletes a credential
	Delete(ctx context.Context, id string) error
}

// Store aggregates the wallet storage interfaces
type Store interface {
	Credentials() CredentialStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
