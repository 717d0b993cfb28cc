// Package registry owns the set of live session supervisors, one per tenant.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"linkhub/internal/linking/metrics"
	"linkhub/internal/linking/supervisor"
	"linkhub/internal/linking/transport"
	id "linkhub/pkg/domain"
)

// Registry creates supervisors lazily on first use and tears them down on
// removal or shutdown. Nothing dials at process start; a restart leaves every
// tenant disconnected until its next connect command.
type Registry struct {
	dialer  transport.Dialer
	creds   supervisor.CredentialStore
	sink    supervisor.InboundSink
	supOpts []supervisor.Option
	logger  *slog.Logger
	metrics *metrics.Metrics

	// root context for supervisor goroutines; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	supervisors map[id.TenantID]*entry
	closed      bool
}

type entry struct {
	sup    *supervisor.Supervisor
	cancel context.CancelFunc
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches shared instrumentation, propagated to supervisors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithSupervisorOptions passes extra options to every supervisor created.
func WithSupervisorOptions(opts ...supervisor.Option) Option {
	return func(r *Registry) {
		r.supOpts = append(r.supOpts, opts...)
	}
}

// New constructs an empty registry.
func New(dialer transport.Dialer, creds supervisor.CredentialStore, sink supervisor.InboundSink, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		dialer:      dialer,
		creds:       creds,
		sink:        sink,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
		supervisors: make(map[id.TenantID]*entry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// GetOrCreate returns the tenant's supervisor, starting one if none exists.
// Concurrent calls for the same tenant observe the same supervisor.
func (r *Registry) GetOrCreate(tenantID id.TenantID) *supervisor.Supervisor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.supervisors[tenantID]; ok {
		return e.sup
	}
	if r.closed {
		return nil
	}

	opts := append([]supervisor.Option{
		supervisor.WithLogger(r.logger),
		supervisor.WithMetrics(r.metrics),
	}, r.supOpts...)
	sup := supervisor.New(tenantID, r.dialer, r.creds, r.sink, opts...)

	ctx, cancel := context.WithCancel(r.ctx)
	go sup.Run(ctx)

	r.supervisors[tenantID] = &entry{sup: sup, cancel: cancel}
	r.logger.Debug("supervisor started", "tenant_id", tenantID.String())
	return sup
}

// Get returns the tenant's supervisor without creating one.
func (r *Registry) Get(tenantID id.TenantID) (*supervisor.Supervisor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.supervisors[tenantID]
	if !ok {
		return nil, false
	}
	return e.sup, true
}

// Remove stops and forgets the tenant's supervisor. It waits for the
// goroutine to exit so a subsequent GetOrCreate never races a dying one.
// No-op when the tenant has no supervisor.
func (r *Registry) Remove(ctx context.Context, tenantID id.TenantID) error {
	r.mu.Lock()
	e, ok := r.supervisors[tenantID]
	if ok {
		delete(r.supervisors, tenantID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e.cancel()
	select {
	case <-e.sup.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	r.logger.Debug("supervisor removed", "tenant_id", tenantID.String())
	return nil
}

// ListActive returns the tenants that currently have a supervisor, in no
// particular order.
func (r *Registry) ListActive() []id.TenantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]id.TenantID, 0, len(r.supervisors))
	for tenantID := range r.supervisors {
		out = append(out, tenantID)
	}
	return out
}

// Close stops every supervisor and rejects further creation. Waits for all
// goroutines to exit or ctx to expire.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := make([]*entry, 0, len(r.supervisors))
	for _, e := range r.supervisors {
		entries = append(entries, e)
	}
	r.supervisors = make(map[id.TenantID]*entry)
	r.mu.Unlock()

	r.cancel()
	for _, e := range entries {
		select {
		case <-e.sup.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
