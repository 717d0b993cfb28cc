// Package supervisor owns the per-tenant session state machine.
//
// Exactly one goroutine runs a given tenant's supervisor; every command goes
// through a single channel, so "connect while already connecting" is a no-op
// by construction rather than by locking. Readers observe the session only
// through an atomically-published immutable snapshot.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"linkhub/internal/linking/metrics"
	"linkhub/internal/linking/models"
	"linkhub/internal/linking/transport"
	id "linkhub/pkg/domain"
	dErrors "linkhub/pkg/domain-errors"
	"linkhub/pkg/platform/sentinel"
)

// ErrNotConnected is returned by Send when the session cannot carry traffic.
// Queuing is deliberately left to the external pipeline.
var ErrNotConnected = dErrors.New(dErrors.CodeNotConnected, "session is not connected")

// ErrStopped is returned when the supervisor's goroutine has exited.
var ErrStopped = fmt.Errorf("supervisor stopped: %w", sentinel.ErrUnavailable)

// CredentialStore is the slice of the credential store a supervisor uses.
// Error Contract: Load returns sentinel.ErrNotFound (wrapped) when no usable
// credential exists, including corrupt or undecryptable blobs.
type CredentialStore interface {
	Load(ctx context.Context, tenantID id.TenantID) (*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
	Delete(ctx context.Context, tenantID id.TenantID) error
}

// InboundSink receives normalized inbound traffic. Implementations must not
// block; the supervisor calls this from its event loop.
type InboundSink interface {
	Inbound(ctx context.Context, tenantID id.TenantID, frame transport.Frame)
}

// ConnectResult is the reply to a connect command.
type ConnectResult struct {
	State         models.SessionState
	QR            string
	AlreadyActive bool
}

// Supervisor drives one tenant's session.
type Supervisor struct {
	tenantID id.TenantID
	dialer   transport.Dialer
	creds    CredentialStore
	sink     InboundSink
	policy   models.ReconnectPolicy
	logger   *slog.Logger
	metrics  *metrics.Metrics

	cmds     chan command
	snapshot atomic.Pointer[models.StatusSnapshot]
	done     chan struct{}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches shared instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// WithReconnectPolicy overrides the default backoff tuning.
func WithReconnectPolicy(p models.ReconnectPolicy) Option {
	return func(s *Supervisor) {
		s.policy = p
	}
}

// New constructs a supervisor. Run must be called exactly once.
func New(tenantID id.TenantID, dialer transport.Dialer, creds CredentialStore, sink InboundSink, opts ...Option) *Supervisor {
	s := &Supervisor{
		tenantID: tenantID,
		dialer:   dialer,
		creds:    creds,
		sink:     sink,
		policy:   models.DefaultReconnectPolicy(),
		logger:   slog.Default(),
		cmds:     make(chan command),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.snapshot.Store(&models.StatusSnapshot{State: models.StateDisconnected, Since: time.Now()})
	if s.metrics != nil {
		s.metrics.SetSessionState("", string(models.StateDisconnected))
	}
	return s
}

// Status returns the current snapshot. Wait-free; safe at any call frequency.
func (s *Supervisor) Status() models.StatusSnapshot {
	return *s.snapshot.Load()
}

// Done is closed when the supervisor's goroutine has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

type command interface{ isCommand() }

type connectCmd struct {
	reply chan ConnectResult
}

type disconnectCmd struct {
	logout bool
	reply  chan error
}

type sendCmd struct {
	ctx   context.Context
	frame transport.Frame
	reply chan error
}

func (connectCmd) isCommand()    {}
func (disconnectCmd) isCommand() {}
func (sendCmd) isCommand()       {}

// Connect requests a session. Idempotent: on an already-active session it
// returns the current state and challenge without touching the transport.
// On a fresh session it blocks until the first definitive state (QR issued,
// connected, or failed) so rapid duplicate connects share one handshake.
func (s *Supervisor) Connect(ctx context.Context) (ConnectResult, error) {
	reply := make(chan ConnectResult, 1)
	if err := s.submit(ctx, connectCmd{reply: reply}); err != nil {
		return ConnectResult{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return ConnectResult{}, ctx.Err()
	case <-s.done:
		return ConnectResult{}, ErrStopped
	}
}

// Disconnect tears the session down. Idempotent on a disconnected session.
// With logout the stored credential is deleted, forcing a fresh pairing on
// the next connect; without it the credential is retained for resumption.
func (s *Supervisor) Disconnect(ctx context.Context, logout bool) error {
	reply := make(chan error, 1)
	if err := s.submit(ctx, disconnectCmd{logout: logout, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Send delivers one frame through the session. Fails fast with
// ErrNotConnected when the session is not connected; no transport I/O occurs
// in that case.
func (s *Supervisor) Send(ctx context.Context, frame transport.Frame) error {
	reply := make(chan error, 1)
	if err := s.submit(ctx, sendCmd{ctx: ctx, frame: frame, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

func (s *Supervisor) submit(ctx context.Context, cmd command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Run is the actor loop. It exits when ctx is cancelled; the registry owns
// the context.
func (s *Supervisor) Run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if s.metrics != nil {
			s.metrics.SetSessionState(string(s.Status().State), "")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			switch c := cmd.(type) {
			case connectCmd:
				s.runSession(ctx, c)
			case disconnectCmd:
				// Already disconnected; logout still purges the credential.
				if c.logout {
					s.deleteCredential(ctx)
				}
				c.reply <- nil
			case sendCmd:
				c.reply <- ErrNotConnected
			}
		}
	}
}

type outcomeKind int

const (
	outRetry outcomeKind = iota
	outDisconnected
	outTerminal
)

type outcome struct {
	kind outcomeKind
	err  error
}

// runSession drives one connect command to completion: dial, pump events,
// reconnect with backoff on transient failures, and stop on disconnect or a
// terminal failure.
func (s *Supervisor) runSession(ctx context.Context, first connectCmd) {
	pending := []chan ConnectResult{first.reply}
	attempt := 0

	for {
		if attempt == 0 {
			s.publish(models.StateConnecting, "", "")
		}

		cred := s.loadCredential(ctx)
		handle, err := s.dialer.Dial(ctx, s.tenantID, cred)
		if err != nil {
			if !s.retryAfter(ctx, &attempt, &pending, fmt.Errorf("dial gateway: %w", err)) {
				return
			}
			continue
		}

		res := s.pump(ctx, handle, &pending, &attempt)
		switch res.kind {
		case outDisconnected, outTerminal:
			return
		case outRetry:
			if !s.retryAfter(ctx, &attempt, &pending, res.err) {
				return
			}
		}
	}
}

// retryAfter applies the backoff ladder after a transient failure. Returns
// false when the session should stop (retries exhausted, disconnect command,
// or context cancellation).
func (s *Supervisor) retryAfter(ctx context.Context, attempt *int, pending *[]chan ConnectResult, cause error) bool {
	*attempt++
	if s.metrics != nil {
		s.metrics.ReconnectAttempts.Inc()
	}

	if s.policy.Exhausted(*attempt) {
		msg := fmt.Sprintf("gave up after %d attempts: %v", *attempt, cause)
		s.logger.Warn("session failed", "tenant_id", s.tenantID.String(), "error", cause)
		s.publish(models.StateFailed, "", msg)
		s.flush(pending, ConnectResult{State: models.StateFailed})
		return false
	}

	summary := ""
	if cause != nil {
		summary = cause.Error()
	}
	s.publish(models.StateReconnecting, "", summary)

	delay := s.policy.JitteredDelay(*attempt)
	s.logger.Debug("reconnect scheduled",
		"tenant_id", s.tenantID.String(),
		"attempt", *attempt,
		"delay", delay.String(),
	)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.publish(models.StateDisconnected, "", "")
			s.flush(pending, ConnectResult{State: models.StateDisconnected})
			return false
		case <-timer.C:
			return true
		case cmd := <-s.cmds:
			switch c := cmd.(type) {
			case connectCmd:
				c.reply <- ConnectResult{State: models.StateReconnecting, AlreadyActive: true}
			case disconnectCmd:
				if c.logout {
					s.deleteCredential(ctx)
				}
				s.publish(models.StateDisconnected, "", "")
				s.flush(pending, ConnectResult{State: models.StateDisconnected})
				c.reply <- nil
				return false
			case sendCmd:
				c.reply <- ErrNotConnected
			}
		}
	}
}

// pump consumes transport events and commands for one live connection.
func (s *Supervisor) pump(ctx context.Context, handle transport.Handle, pending *[]chan ConnectResult, attempt *int) outcome {
	defer handle.Close()

	connected := false
	pairingStarted := false

	for {
		select {
		case <-ctx.Done():
			s.publish(models.StateDisconnected, "", "")
			s.flush(pending, ConnectResult{State: models.StateDisconnected})
			return outcome{kind: outDisconnected}

		case ev, ok := <-handle.Events():
			if !ok {
				// Channel close without a Closed event means the transport
				// died without classification; treat as a network failure.
				return outcome{kind: outRetry, err: errors.New("transport closed unexpectedly")}
			}
			switch e := ev.(type) {
			case transport.QRIssued:
				if !pairingStarted {
					pairingStarted = true
					if s.metrics != nil {
						s.metrics.PairingStarted.Inc()
					}
				}
				s.publish(models.StatePairingPending, e.Challenge.QRPayload, "")
				s.flush(pending, ConnectResult{State: models.StatePairingPending, QR: e.Challenge.QRPayload})

			case transport.Authenticated:
				s.saveCredential(ctx, e.Cred)
				connected = true
				*attempt = 0
				if pairingStarted && s.metrics != nil {
					s.metrics.PairingCompleted.Inc()
				}
				s.publish(models.StateConnected, "", "")
				s.flush(pending, ConnectResult{State: models.StateConnected})

			case transport.MessageReceived:
				s.sink.Inbound(ctx, s.tenantID, e.Frame)

			case transport.AckFailed:
				s.logger.Warn("peer rejected frame",
					"tenant_id", s.tenantID.String(),
					"frame_id", e.FrameID,
					"reason", e.Reason,
				)
				if s.metrics != nil {
					s.metrics.SendFailures.WithLabelValues("ack_failed").Inc()
				}

			case transport.Closed:
				return s.onClosed(ctx, e, pending)
			}

		case cmd := <-s.cmds:
			switch c := cmd.(type) {
			case connectCmd:
				snap := s.Status()
				switch snap.State {
				case models.StateConnected:
					c.reply <- ConnectResult{State: models.StateConnected, AlreadyActive: true}
				case models.StatePairingPending:
					c.reply <- ConnectResult{State: models.StatePairingPending, QR: snap.QR, AlreadyActive: true}
				default:
					// Not definitive yet; answered on the next transition.
					*pending = append(*pending, c.reply)
				}

			case disconnectCmd:
				if c.logout {
					s.deleteCredential(ctx)
				}
				s.publish(models.StateDisconnected, "", "")
				s.flush(pending, ConnectResult{State: models.StateDisconnected})
				c.reply <- nil
				return outcome{kind: outDisconnected}

			case sendCmd:
				if !connected {
					c.reply <- ErrNotConnected
					continue
				}
				// The ack round-trip runs off the actor goroutine so other
				// commands, disconnect included, stay prompt while a delivery
				// is in flight. The reply channel is buffered; a caller that
				// gave up never blocks this goroutine.
				go func(c sendCmd) {
					if err := handle.Send(c.ctx, c.frame); err != nil {
						if s.metrics != nil {
							s.metrics.SendFailures.WithLabelValues("transport").Inc()
						}
						c.reply <- dErrors.Wrap(err, dErrors.CodeNetworkError, "deliver frame")
						return
					}
					if s.metrics != nil {
						s.metrics.MessagesOutbound.Inc()
					}
					c.reply <- nil
				}(c)
			}
		}
	}
}

// onClosed classifies a transport closure into retry, terminal failure, or
// local disconnect.
func (s *Supervisor) onClosed(ctx context.Context, e transport.Closed, pending *[]chan ConnectResult) outcome {
	switch e.Reason {
	case transport.ClosePairingTimeout:
		if s.metrics != nil {
			s.metrics.PairingTimedOut.Inc()
		}
		msg := "pairing timed out: no device scanned the challenge"
		if e.Err != nil {
			msg = "pairing timed out: " + e.Err.Error()
		}
		s.publish(models.StateFailed, "", msg)
		s.flush(pending, ConnectResult{State: models.StateFailed})
		return outcome{kind: outTerminal}

	case transport.CloseAuthRejected:
		if s.metrics != nil {
			s.metrics.AuthRejections.Inc()
		}
		// A revoked credential never resumes; purge it so the next connect
		// starts a fresh pairing.
		s.deleteCredential(ctx)
		msg := "credential rejected by gateway; device must be linked again"
		s.publish(models.StateFailed, "", msg)
		s.flush(pending, ConnectResult{State: models.StateFailed})
		return outcome{kind: outTerminal}

	case transport.CloseProtocolError:
		s.logger.Warn("protocol error from gateway",
			"tenant_id", s.tenantID.String(),
			"error", e.Err,
		)
		return outcome{kind: outRetry, err: e.Err}

	case transport.CloseLocal:
		s.publish(models.StateDisconnected, "", "")
		s.flush(pending, ConnectResult{State: models.StateDisconnected})
		return outcome{kind: outDisconnected}

	default: // CloseNetworkError and anything unclassified
		return outcome{kind: outRetry, err: e.Err}
	}
}

func (s *Supervisor) loadCredential(ctx context.Context) *models.Credential {
	cred, err := s.creds.Load(ctx, s.tenantID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			// Storage trouble falls back to re-pairing rather than failing
			// the tenant permanently.
			s.logger.Error("load credential", "tenant_id", s.tenantID.String(), "error", err)
		}
		return nil
	}
	return cred
}

func (s *Supervisor) saveCredential(ctx context.Context, cred models.Credential) {
	cred.TenantID = s.tenantID
	if cred.LastUpdated.IsZero() {
		cred.LastUpdated = time.Now()
	}
	if err := s.creds.Save(ctx, &cred); err != nil {
		s.logger.Error("save credential", "tenant_id", s.tenantID.String(), "error", err)
	}
}

func (s *Supervisor) deleteCredential(ctx context.Context) {
	if err := s.creds.Delete(ctx, s.tenantID); err != nil {
		s.logger.Error("delete credential", "tenant_id", s.tenantID.String(), "error", err)
	}
}

// publish atomically replaces the status snapshot.
func (s *Supervisor) publish(state models.SessionState, qr, lastError string) {
	prev := s.snapshot.Load()
	s.snapshot.Store(&models.StatusSnapshot{
		State:     state,
		QR:        qr,
		LastError: lastError,
		Since:     time.Now(),
	})
	if s.metrics != nil && prev.State != state {
		s.metrics.SetSessionState(string(prev.State), string(state))
	}
}

// flush answers every queued connect command with the same result, so rapid
// duplicate connects observe one handshake and one challenge.
func (s *Supervisor) flush(pending *[]chan ConnectResult, res ConnectResult) {
	for _, reply := range *pending {
		reply <- res
	}
	*pending = (*pending)[:0]
}
