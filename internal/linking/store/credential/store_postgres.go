package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"linkhub/internal/linking/models"
	id "linkhub/pkg/domain"
	"linkhub/pkg/platform/sentinel"
)

// PostgresStore persists credentials in the link_credentials table.
// Save is a single upsert statement, so a concurrent Load never observes a
// half-written row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a credential store backed by Postgres.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, tenantID id.TenantID) (*models.Credential, error) {
	cred := models.Credential{TenantID: tenantID}
	err := s.db.QueryRowContext(ctx,
		`SELECT key_material, registration_id, last_updated
		 FROM link_credentials WHERE tenant_id = $1`,
		tenantID.String(),
	).Scan(&cred.KeyMaterial, &cred.RegistrationID, &cred.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential for tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &cred, nil
}

func (s *PostgresStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.TenantID.IsNil() {
		return fmt.Errorf("credential missing tenant ID: %w", sentinel.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO link_credentials (tenant_id, key_material, registration_id, last_updated)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		   key_material = EXCLUDED.key_material,
		   registration_id = EXCLUDED.registration_id,
		   last_updated = EXCLUDED.last_updated`,
		cred.TenantID.String(), cred.KeyMaterial, cred.RegistrationID, cred.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID id.TenantID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM link_credentials WHERE tenant_id = $1`,
		tenantID.String(),
	)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
