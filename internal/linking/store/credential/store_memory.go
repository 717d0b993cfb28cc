package credential

import (
	"context"
	"fmt"
	"sync"

	"linkhub/internal/linking/models"
	id "linkhub/pkg/domain"
	"linkhub/pkg/platform/sentinel"
)

// InMemoryStore stores credentials in memory for tests/dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	creds map[id.TenantID]models.Credential
}

// NewMemory constructs an empty in-memory credential store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{creds: make(map[id.TenantID]models.Credential)}
}

func (s *InMemoryStore) Load(_ context.Context, tenantID id.TenantID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[tenantID]
	if !ok {
		return nil, fmt.Errorf("credential for tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	// Copy so callers cannot mutate the stored blob.
	out := cred
	out.KeyMaterial = append([]byte(nil), cred.KeyMaterial...)
	return &out, nil
}

func (s *InMemoryStore) Save(_ context.Context, cred *models.Credential) error {
	if cred == nil || cred.TenantID.IsNil() {
		return fmt.Errorf("credential missing tenant ID: %w", sentinel.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *cred
	stored.KeyMaterial = append([]byte(nil), cred.KeyMaterial...)
	s.creds[cred.TenantID] = stored
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, tenantID id.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, tenantID)
	return nil
}
