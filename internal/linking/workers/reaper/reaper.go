// Package reaper evicts supervisors that have sat in a terminal state beyond
// the idle TTL, so the registry does not accumulate goroutines for tenants
// that paired once and left.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"linkhub/internal/linking/metrics"
	"linkhub/internal/linking/supervisor"
	id "linkhub/pkg/domain"
)

// Registry is the slice of the session registry the reaper needs.
type Registry interface {
	ListActive() []id.TenantID
	Get(tenantID id.TenantID) (*supervisor.Supervisor, bool)
	Remove(ctx context.Context, tenantID id.TenantID) error
}

// Result summarizes one sweep.
type Result struct {
	Scanned  int
	Evicted  int
	Duration time.Duration
}

// Reaper periodically sweeps the registry.
type Reaper struct {
	registry Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	ttl      time.Duration
}

// Option configures the Reaper.
type Option func(*Reaper)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

// WithInterval overrides the sweep interval.
func WithInterval(interval time.Duration) Option {
	return func(r *Reaper) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithIdleTTL overrides how long a terminal session may linger.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Reaper) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// New constructs a reaper with a 5m sweep and 30m idle TTL by default.
func New(registry Registry, opts ...Option) *Reaper {
	r := &Reaper{
		registry: registry,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
		ttl:      30 * time.Minute,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Start sweeps on a ticker until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			res := r.RunOnce(ctx)
			res.Duration = time.Since(start)
			if res.Evicted > 0 {
				r.logger.Info("idle sessions reaped",
					"scanned", res.Scanned,
					"evicted", res.Evicted,
					"duration_ms", res.Duration.Milliseconds(),
				)
			}
		case <-ctx.Done():
			r.logger.Info("session reaper stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep. Only sessions in a terminal state count as
// idle; a session mid-pairing or reconnecting is never touched regardless of
// age.
func (r *Reaper) RunOnce(ctx context.Context) Result {
	var res Result
	now := time.Now()

	for _, tenantID := range r.registry.ListActive() {
		res.Scanned++
		sup, ok := r.registry.Get(tenantID)
		if !ok {
			continue
		}
		snap := sup.Status()
		if !snap.State.Terminal() || now.Sub(snap.Since) < r.ttl {
			continue
		}
		if err := r.registry.Remove(ctx, tenantID); err != nil {
			r.logger.Error("evict idle session", "tenant_id", tenantID.String(), "error", err)
			continue
		}
		res.Evicted++
		if r.metrics != nil {
			r.metrics.SupervisorsEvicted.Inc()
		}
		r.logger.Debug("idle session evicted",
			"tenant_id", tenantID.String(),
			"state", snap.State.String(),
			"idle", now.Sub(snap.Since).String(),
		)
	}
	return res
}
