package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linkhub/internal/linking/models"
	"linkhub/internal/linking/store/credential"
	"linkhub/internal/linking/supervisor"
	"linkhub/internal/linking/transport"
	id "linkhub/pkg/domain"
)

type refusingDialer struct{}

func (refusingDialer) Dial(context.Context, id.TenantID, *models.Credential) (transport.Handle, error) {
	return nil, errors.New("dialer not expected in this test")
}

type nopSink struct{}

func (nopSink) Inbound(context.Context, id.TenantID, transport.Frame) {}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New(refusingDialer{}, credential.NewMemory(), nopSink{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, r.Close(ctx))
	})
	return r
}

func TestGetOrCreate_ReturnsSameSupervisor(t *testing.T) {
	r := newRegistry(t)

	a := r.GetOrCreate(id.TenantID("t1"))
	b := r.GetOrCreate(id.TenantID("t1"))
	require.Same(t, a, b)

	c := r.GetOrCreate(id.TenantID("t2"))
	require.NotSame(t, a, c)
}

func TestGetOrCreate_NoDoubleCreateUnderConcurrency(t *testing.T) {
	r := newRegistry(t)

	const goroutines = 32
	results := make([]*supervisor.Supervisor, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.GetOrCreate(id.TenantID("t1"))
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		require.Same(t, results[0], results[i])
	}
	require.Len(t, r.ListActive(), 1)
}

func TestRemove_StopsSupervisorAndAllowsRecreate(t *testing.T) {
	r := newRegistry(t)

	sup := r.GetOrCreate(id.TenantID("t1"))
	require.NoError(t, r.Remove(context.Background(), id.TenantID("t1")))

	select {
	case <-sup.Done():
	default:
		t.Fatal("removed supervisor still running")
	}

	// Remove of an absent tenant is a no-op.
	require.NoError(t, r.Remove(context.Background(), id.TenantID("t1")))

	fresh := r.GetOrCreate(id.TenantID("t1"))
	require.NotSame(t, sup, fresh)
}

func TestListActive(t *testing.T) {
	r := newRegistry(t)
	require.Empty(t, r.ListActive())

	r.GetOrCreate(id.TenantID("t1"))
	r.GetOrCreate(id.TenantID("t2"))
	require.ElementsMatch(t, []id.TenantID{"t1", "t2"}, r.ListActive())
}

func TestClose_StopsEverythingAndRejectsCreation(t *testing.T) {
	r := New(refusingDialer{}, credential.NewMemory(), nopSink{})

	sup := r.GetOrCreate(id.TenantID("t1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Close(ctx))

	select {
	case <-sup.Done():
	case <-time.After(time.Second):
		t.Fatal("supervisor survived registry close")
	}

	require.Nil(t, r.GetOrCreate(id.TenantID("t2")))
	require.NoError(t, r.Close(ctx), "close is idempotent")
}
