package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"linkhub/internal/linking/models"
	id "linkhub/pkg/domain"
	"linkhub/pkg/platform/sentinel"
)

const redisKeyPrefix = "linkhub:credential:"

// RedisStore persists credentials as single JSON values, one key per tenant.
// Single-key GET/SET/DEL are atomic in Redis, which satisfies the per-tenant
// atomicity requirement without transactions.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a credential store backed by Redis.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisRecord struct {
	KeyMaterial    []byte    `json:"key_material"`
	RegistrationID uint32    `json:"registration_id"`
	LastUpdated    time.Time `json:"last_updated"`
}

func (s *RedisStore) Load(ctx context.Context, tenantID id.TenantID) (*models.Credential, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+tenantID.String()).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("credential for tenant %s: %w", tenantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// An unreadable record is treated as absent; the supervisor re-pairs.
		return nil, fmt.Errorf("credential for tenant %s unreadable: %w", tenantID, sentinel.ErrNotFound)
	}

	return &models.Credential{
		TenantID:       tenantID,
		KeyMaterial:    rec.KeyMaterial,
		RegistrationID: rec.RegistrationID,
		LastUpdated:    rec.LastUpdated,
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred == nil || cred.TenantID.IsNil() {
		return fmt.Errorf("credential missing tenant ID: %w", sentinel.ErrInvalidInput)
	}
	raw, err := json.Marshal(redisRecord{
		KeyMaterial:    cred.KeyMaterial,
		RegistrationID: cred.RegistrationID,
		LastUpdated:    cred.LastUpdated,
	})
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+cred.TenantID.String(), raw, 0).Err(); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID id.TenantID) error {
	if err := s.client.Del(ctx, redisKeyPrefix+tenantID.String()).Err(); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
