package credstore

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use. Credentials are lost on process restart.
type MemoryStore struct {
	mu    sync.Mutex
	creds map[string]Credential
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		creds: make(map[string]Credential),
	}
}

// Get returns the stored credential for a nation, or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, nation string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.creds[nation]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

// Put stores the credential for a nation, replacing any previous one.
func (m *MemoryStore) Put(_ context.Context, nation string, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creds[nation] = c
	return nil
}

// Delete removes the credential for a nation.
func (m *MemoryStore) Delete(_ context.Context, nation string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.creds, nation)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
