package credential

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linkhub/internal/linking/models"
	id "linkhub/pkg/domain"
	"linkhub/pkg/platform/sentinel"
)

func TestInMemoryStore_LoadMissing(t *testing.T) {
	s := NewMemory()

	_, err := s.Load(context.Background(), id.TenantID("t1"))
	require.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestInMemoryStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	first := &models.Credential{TenantID: "t1", KeyMaterial: []byte("v1"), RegistrationID: 7, LastUpdated: time.Now()}
	require.NoError(t, s.Save(ctx, first))

	// Key rotation overwrites the previous blob in place.
	second := &models.Credential{TenantID: "t1", KeyMaterial: []byte("v2"), RegistrationID: 7, LastUpdated: time.Now()}
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got.KeyMaterial)
}

func TestInMemoryStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Save(ctx, &models.Credential{TenantID: "t1", KeyMaterial: []byte("k")}))
	require.NoError(t, s.Delete(ctx, "t1"))
	require.NoError(t, s.Delete(ctx, "t1"))

	_, err := s.Load(ctx, "t1")
	require.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestInMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Save(ctx, &models.Credential{TenantID: "t1", KeyMaterial: []byte("original")}))

	got, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	got.KeyMaterial[0] = 'X'

	again, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), again.KeyMaterial)
}

func TestInMemoryStore_RejectsMissingTenant(t *testing.T) {
	s := NewMemory()
	err := s.Save(context.Background(), &models.Credential{KeyMaterial: []byte("k")})
	require.True(t, errors.Is(err, sentinel.ErrInvalidInput))
}

func TestInMemoryStore_ConcurrentTenantsDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	var wg sync.WaitGroup
	tenants := []id.TenantID{"t1", "t2", "t3", "t4"}
	for _, tenant := range tenants {
		wg.Add(1)
		go func(tenant id.TenantID) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = s.Save(ctx, &models.Credential{TenantID: tenant, KeyMaterial: []byte(tenant)})
				_, _ = s.Load(ctx, tenant)
			}
		}(tenant)
	}
	wg.Wait()

	for _, tenant := range tenants {
		got, err := s.Load(ctx, tenant)
		require.NoError(t, err)
		require.Equal(t, []byte(tenant), got.KeyMaterial)
	}
}
