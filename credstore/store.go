package credstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no credential is stored for a nation.
var ErrNotFound = errors.New("credstore: credential not found")

// Credential holds what is known about a nation's login.
//
// A password is only needed until the API returns an autologin token;
// after that the autologin is the durable credential and the password can
// be discarded. The pin is a short-lived session token refreshed by the
// API on every authenticated response.
type Credential struct {
	Password  string
	Autologin string
	Pin       string
}

// Store is the interface for credential backends. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the stored credential for a nation, or ErrNotFound.
	Get(ctx context.Context, nation string) (Credential, error)

	// Put stores the credential for a nation, replacing any previous one.
	Put(ctx context.Context, nation string, c Credential) error

	// Delete removes the credential for a nation. Deleting an unknown
	// nation is not an error.
	Delete(ctx context.Context, nation string) error

	// Close releases any resources held by the store.
	Close() error
}
