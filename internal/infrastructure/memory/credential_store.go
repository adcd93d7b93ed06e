package memory

import (
	"context"
	"sync"

	"healthsync/internal/domain/credential"
)

// CredentialStore keeps tokens in process memory.
type CredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]credential.Token
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{tokens: make(map[string]credential.Token)}
}

func (s *CredentialStore) Get(_ context.Context, provider, userID string) (*credential.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[credential.DocumentID(provider, userID)]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (s *CredentialStore) Put(_ context.Context, provider, userID string, token credential.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[credential.DocumentID(provider, userID)] = token
	return nil
}
