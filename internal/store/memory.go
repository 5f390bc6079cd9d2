// Package store keeps the mapping from chat conversations to remote Genie
// conversations.
package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is a process-local binding store. Bindings live as long as the
// process and are never evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	bindings map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bindings: make(map[string]string)}
}

// Get returns the remote conversation bound to localID.
func (s *MemoryStore) Get(_ context.Context, localID string) (string, bool, error) {
	localID = strings.TrimSpace(localID)
	if localID == "" {
		return "", false, nil
	}

	s.mu.RLock()
	remoteID, ok := s.bindings[localID]
	s.mu.RUnlock()
	return remoteID, ok, nil
}

// PutIfAbsent binds localID to remoteID unless a binding already exists. It
// returns the binding in effect afterwards and whether remoteID was stored.
func (s *MemoryStore) PutIfAbsent(_ context.Context, localID, remoteID string) (string, bool, error) {
	localID = strings.TrimSpace(localID)
	if localID == "" || remoteID == "" {
		return "", false, ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.bindings[localID]; ok {
		return existing, false, nil
	}
	s.bindings[localID] = remoteID
	return remoteID, true, nil
}

// Len returns the number of bindings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}

// Close releases nothing; it exists to satisfy the store lifecycle.
func (s *MemoryStore) Close() error {
	return nil
}
