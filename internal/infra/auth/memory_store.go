package auth

import (
	"context"
	"sync"

	derror "iap-sync-engine/internal/error"
)

var _ TokenStore = (*MemoryTokenStore)(nil)

// MemoryTokenStore is the fallback token store when redis is not configured.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Get(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return "", derror.ErrNotSignedIn
	}
	return s.token, nil
}

func (s *MemoryTokenStore) Set(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
	return nil
}
