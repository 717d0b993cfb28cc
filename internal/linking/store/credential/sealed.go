package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"linkhub/internal/linking/models"
	id "linkhub/pkg/domain"
	"linkhub/pkg/platform/sentinel"
	psync "linkhub/pkg/platform/sync"
	"linkhub/pkg/secrets"
)

// SealedStore decorates any Store with encryption at rest and per-tenant
// operation serialization. Key material crosses the decorator boundary in
// plaintext and is stored sealed; a blob that fails to open is reported as
// not found so the supervisor falls back to a fresh pairing instead of
// failing the tenant permanently.
type SealedStore struct {
	inner  Store
	sealer *secrets.Sealer
	locks  *psync.ShardedMutex
	logger *slog.Logger
}

// NewSealed wraps the given store with sealing.
func NewSealed(inner Store, sealer *secrets.Sealer, logger *slog.Logger) *SealedStore {
	return &SealedStore{
		inner:  inner,
		sealer: sealer,
		locks:  psync.NewShardedMutex(),
		logger: logger,
	}
}

func (s *SealedStore) Load(ctx context.Context, tenantID id.TenantID) (*models.Credential, error) {
	s.locks.Lock(tenantID.String())
	defer s.locks.Unlock(tenantID.String())

	cred, err := s.inner.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	opened, err := s.sealer.Open(tenantID.String(), cred.KeyMaterial)
	if err != nil {
		if errors.Is(err, sentinel.ErrCorrupt) {
			s.logger.WarnContext(ctx, "stored credential failed to unseal, treating as absent",
				"tenant_id", tenantID.String(),
			)
			return nil, fmt.Errorf("credential for tenant %s undecryptable: %w", tenantID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("unseal credential: %w", err)
	}

	cred.KeyMaterial = opened
	return cred, nil
}

func (s *SealedStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.TenantID.IsNil() {
		return fmt.Errorf("credential missing tenant ID: %w", sentinel.ErrInvalidInput)
	}

	sealed, err := s.sealer.Seal(cred.TenantID.String(), cred.KeyMaterial)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	s.locks.Lock(cred.TenantID.String())
	defer s.locks.Unlock(cred.TenantID.String())

	stored := *cred
	stored.KeyMaterial = sealed
	return s.inner.Save(ctx, &stored)
}

func (s *SealedStore) Delete(ctx context.Context, tenantID id.TenantID) error {
	s.locks.Lock(tenantID.String())
	defer s.locks.Unlock(tenantID.String())
	return s.inner.Delete(ctx, tenantID)
}
