package identity

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore stores accounts in memory for local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	byEmail  map[string]string
	revoked  map[string]time.Time
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts: make(map[string]Account),
		byEmail:  make(map[string]string),
		revoked:  make(map[string]time.Time),
	}
}

// CreateAccount implements AccountStore.
func (s *InMemoryStore) CreateAccount(ctx context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[account.Email]; ok {
		return ErrEmailTaken
	}
	s.accounts[account.ID] = account
	s.byEmail[account.Email] = account.ID
	return nil
}

// FindByEmail implements AccountStore.
func (s *InMemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	account := s.accounts[id]
	return &account, nil
}

// FindByID implements AccountStore.
func (s *InMemoryStore) FindByID(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &account, nil
}

// RevokeToken implements AccountStore.
func (s *InMemoryStore) RevokeToken(ctx context.Context, tokenID, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = expiresAt
	return nil
}

// IsRevoked implements AccountStore.
func (s *InMemoryStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenID]
	return ok, nil
}
