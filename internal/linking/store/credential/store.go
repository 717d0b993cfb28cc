// Package credential persists per-tenant pairing credentials so a linked
// device survives process restarts.
package credential

import (
	"context"

	"linkhub/internal/linking/models"
	id "linkhub/pkg/domain"
)

// Error Contract:
// All store methods follow this pattern:
// - Load returns sentinel.ErrNotFound (wrapped) when no credential exists
// - Save overwrites any existing credential for the tenant
// - Delete is idempotent; deleting a missing credential is not an error
// - Infrastructure failures are returned wrapped with context
type Store interface {
	Load(ctx context.Context, tenantID id.TenantID) (*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, tenantID id.TenantID) error
}
