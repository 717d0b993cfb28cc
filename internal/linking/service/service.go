// Package service is the command surface over the session registry, used by
// the HTTP transport and the outbound pipeline worker. It owns error
// translation to domain codes, tracing, and command metrics; session
// semantics live in the supervisor.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"linkhub/internal/linking/bridge"
	"linkhub/internal/linking/metrics"
	"linkhub/internal/linking/models"
	"linkhub/internal/linking/registry"
	"linkhub/internal/linking/supervisor"
	"linkhub/internal/linking/tracer"
	id "linkhub/pkg/domain"
	dErrors "linkhub/pkg/domain-errors"
	"linkhub/pkg/platform/sentinel"
)

// ConnectOutcome is the result of a connect command, shaped for the API.
type ConnectOutcome struct {
	Status string
	QR     string
}

// Connect statuses exposed to clients.
const (
	StatusPairingStarted   = "pairing_started"
	StatusAlreadyConnected = "already_connected"
	StatusConnected        = "connected"
	StatusReconnecting     = "reconnecting"
	StatusDisconnected     = "disconnected"
)

// Service coordinates session commands for all tenants.
type Service struct {
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches command instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer overrides the default no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New constructs the service over a registry.
func New(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Connect establishes or resumes the tenant's session. Idempotent; a session
// already pairing or connected reports its current state instead of starting
// a second handshake.
func (s *Service) Connect(ctx context.Context, rawTenantID string) (ConnectOutcome, error) {
	start := time.Now()
	defer s.observe("connect", start)

	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return ConnectOutcome{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid tenant id")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanConnect,
		tracer.String(tracer.AttrTenantID, tenantID.String()))
	defer func() { span.End(err) }()

	sup := s.registry.GetOrCreate(tenantID)
	if sup == nil {
		err = dErrors.New(dErrors.CodeUnavailable, "session manager is shutting down")
		return ConnectOutcome{}, err
	}

	res, err := sup.Connect(ctx)
	if err != nil {
		err = translate(err, "connect session")
		return ConnectOutcome{}, err
	}
	span.SetAttributes(tracer.String(tracer.AttrState, res.State.String()))

	switch res.State {
	case models.StateFailed:
		msg := sup.Status().LastError
		if msg == "" {
			msg = "session failed"
		}
		err = dErrors.New(dErrors.CodeSessionFailed, msg)
		return ConnectOutcome{}, err
	case models.StateConnected:
		if res.AlreadyActive {
			return ConnectOutcome{Status: StatusAlreadyConnected}, nil
		}
		return ConnectOutcome{Status: StatusConnected}, nil
	case models.StatePairingPending:
		return ConnectOutcome{Status: StatusPairingStarted, QR: res.QR}, nil
	case models.StateReconnecting:
		return ConnectOutcome{Status: StatusReconnecting}, nil
	default:
		return ConnectOutcome{Status: StatusDisconnected}, nil
	}
}

// Disconnect tears the tenant's session down. With logout the stored
// credential is deleted so the next connect pairs fresh. Idempotent: a tenant
// without a session disconnects successfully.
func (s *Service) Disconnect(ctx context.Context, rawTenantID string, logout bool) error {
	start := time.Now()
	defer s.observe("disconnect", start)

	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid tenant id")
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanDisconnect,
		tracer.String(tracer.AttrTenantID, tenantID.String()),
		tracer.Bool(tracer.AttrLogout, logout))
	defer func() { span.End(err) }()

	sup, ok := s.registry.Get(tenantID)
	if !ok {
		// Nothing running. Logout must still purge the credential, which the
		// supervisor handles even from the idle state.
		if !logout {
			return nil
		}
		sup = s.registry.GetOrCreate(tenantID)
		if sup == nil {
			err = dErrors.New(dErrors.CodeUnavailable, "session manager is shutting down")
			return err
		}
	}

	if err = sup.Disconnect(ctx, logout); err != nil {
		err = translate(err, "disconnect session")
	}
	return err
}

// Status reports the tenant's session snapshot. A tenant without a supervisor
// is Disconnected; asking never creates one.
func (s *Service) Status(ctx context.Context, rawTenantID string) (models.StatusSnapshot, error) {
	tenantID, err := id.ParseTenantID(rawTenantID)
	if err != nil {
		return models.StatusSnapshot{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid tenant id")
	}

	_, span := s.tracer.Start(ctx, tracer.SpanStatus,
		tracer.String(tracer.AttrTenantID, tenantID.String()))
	defer span.End(nil)

	sup, ok := s.registry.Get(tenantID)
	if !ok {
		return models.StatusSnapshot{State: models.StateDisconnected, Since: time.Now()}, nil
	}
	return sup.Status(), nil
}

// Send delivers one outbound message through the tenant's session. Fails fast
// with not_connected when the session cannot carry traffic; queuing is the
// caller's concern.
func (s *Service) Send(ctx context.Context, msg models.OutboundMessage) error {
	start := time.Now()
	defer s.observe("send", start)

	if msg.TenantID.String() == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "outbound message without tenant id")
	}
	if len(msg.Payload) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "outbound message without payload")
	}

	frame := bridge.Frame(msg)
	ctx, span := s.tracer.Start(ctx, tracer.SpanSend,
		tracer.String(tracer.AttrTenantID, msg.TenantID.String()),
		tracer.String(tracer.AttrFrameID, frame.ID))
	var err error
	defer func() { span.End(err) }()

	sup, ok := s.registry.Get(msg.TenantID)
	if !ok {
		err = supervisor.ErrNotConnected
		return err
	}
	if err = sup.Send(ctx, frame); err != nil {
		err = translate(err, "send message")
	}
	return err
}

// ListActive returns the tenants with a live supervisor.
func (s *Service) ListActive(_ context.Context) []id.TenantID {
	return s.registry.ListActive()
}

// EvictTenant removes the tenant's supervisor entirely, for tenant deletion
// and idle reaping. The stored credential is untouched.
func (s *Service) EvictTenant(ctx context.Context, tenantID id.TenantID) error {
	ctx, span := s.tracer.Start(ctx, tracer.SpanEvict,
		tracer.String(tracer.AttrTenantID, tenantID.String()))
	err := s.registry.Remove(ctx, tenantID)
	span.End(err)
	if err != nil {
		return translate(err, "evict session")
	}
	if s.metrics != nil {
		s.metrics.SupervisorsEvicted.Inc()
	}
	return nil
}

func (s *Service) observe(command string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCommand(command, start)
	}
}

// translate maps infrastructure sentinels to domain codes exactly once.
// Errors that already carry a domain code pass through with context added.
func translate(err error, msg string) error {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
