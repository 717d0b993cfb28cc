package credential

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linkhub/internal/linking/models"
	"linkhub/pkg/platform/sentinel"
	"linkhub/pkg/secrets"
)

func newSealedStore(t *testing.T) (*SealedStore, *InMemoryStore) {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	sealer, err := secrets.NewSealer(key)
	require.NoError(t, err)
	inner := NewMemory()
	return NewSealed(inner, sealer, slog.Default()), inner
}

func TestSealedStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, inner := newSealedStore(t)

	cred := &models.Credential{
		TenantID:       "t1",
		KeyMaterial:    []byte("noise static keypair"),
		RegistrationID: 42,
		LastUpdated:    time.Now(),
	}
	require.NoError(t, store.Save(ctx, cred))

	// The inner store must never see plaintext key material.
	raw, err := inner.Load(ctx, "t1")
	require.NoError(t, err)
	require.NotEqual(t, cred.KeyMaterial, raw.KeyMaterial)

	got, err := store.Load(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, []byte("noise static keypair"), got.KeyMaterial)
	require.Equal(t, uint32(42), got.RegistrationID)
}

func TestSealedStore_CorruptBlobTreatedAsNotFound(t *testing.T) {
	ctx := context.Background()
	store, inner := newSealedStore(t)

	require.NoError(t, inner.Save(ctx, &models.Credential{
		TenantID:    "t1",
		KeyMaterial: []byte("garbage that never came from the sealer"),
	}))

	_, err := store.Load(ctx, "t1")
	require.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestSealedStore_SaveDoesNotMutateCaller(t *testing.T) {
	ctx := context.Background()
	store, _ := newSealedStore(t)

	cred := &models.Credential{TenantID: "t1", KeyMaterial: []byte("plain")}
	require.NoError(t, store.Save(ctx, cred))
	require.Equal(t, []byte("plain"), cred.KeyMaterial)
}

func TestSealedStore_MissingStaysNotFound(t *testing.T) {
	store, _ := newSealedStore(t)
	_, err := store.Load(context.Background(), "absent")
	require.True(t, errors.Is(err, sentinel.ErrNotFound))
}
