package secrets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"linkhub/pkg/platform/sentinel"
)

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	s, err := NewSealer(key)
	require.NoError(t, err)
	return s
}

func TestSealer_RoundTrip(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("tenant-1", []byte("noise static keypair"))
	require.NoError(t, err)
	require.NotContains(t, string(sealed), "noise static keypair")

	opened, err := s.Open("tenant-1", sealed)
	require.NoError(t, err)
	require.Equal(t, []byte("noise static keypair"), opened)
}

func TestSealer_WrongTenantFailsToOpen(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("tenant-1", []byte("keys"))
	require.NoError(t, err)

	_, err = s.Open("tenant-2", sealed)
	require.Error(t, err)
	require.True(t, errors.Is(err, sentinel.ErrCorrupt))
}

func TestSealer_TamperedBlobIsCorrupt(t *testing.T) {
	s := newTestSealer(t)

	sealed, err := s.Seal("tenant-1", []byte("keys"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = s.Open("tenant-1", sealed)
	require.True(t, errors.Is(err, sentinel.ErrCorrupt))
}

func TestSealer_ShortBlobIsCorrupt(t *testing.T) {
	s := newTestSealer(t)

	_, err := s.Open("tenant-1", []byte("tiny"))
	require.True(t, errors.Is(err, sentinel.ErrCorrupt))
}

func TestNewSealer_RejectsBadKeys(t *testing.T) {
	_, err := NewSealer("not base64!!")
	require.Error(t, err)

	_, err = NewSealer("c2hvcnQ=") // valid base64, wrong length
	require.Error(t, err)
}
