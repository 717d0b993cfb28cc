package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestService_GenerateAndValidate(t *testing.T) {
	svc := New("test-signing-key", time.Minute)

	signed, err := svc.Generate("tenant-42", "user@example.com")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	require.Equal(t, "tenant-42", claims.TenantID)
	require.Equal(t, "user@example.com", claims.Subject)
	require.NotEmpty(t, claims.JTI)
}

func TestService_RejectsWrongKey(t *testing.T) {
	signed, err := New("key-a", time.Minute).Generate("tenant-42", "u")
	require.NoError(t, err)

	_, err = New("key-b", time.Minute).ValidateToken(signed)
	require.Error(t, err)
}

func TestService_RejectsExpiredToken(t *testing.T) {
	svc := New("test-signing-key", time.Minute)
	svc.ttl = -time.Minute

	signed, err := svc.Generate("tenant-42", "u")
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	require.Error(t, err)
}

func TestService_RejectsGarbage(t *testing.T) {
	svc := New("test-signing-key", time.Minute)
	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
}
