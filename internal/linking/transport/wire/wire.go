// Package wire implements the transport contract over a websocket connection
// to the messaging gateway.
//
// The gateway speaks a small JSON protocol: the client opens with either a
// resume or a pair request, the gateway answers with challenges, linked or
// resumed confirmations, inbound messages, and acks. Keep-alive uses
// websocket ping/pong control frames.
package wire

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"linkhub/internal/linking/models"
	"linkhub/internal/linking/transport"
	id "linkhub/pkg/domain"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 45 * time.Second
	pingInterval = 20 * time.Second

	eventBuffer = 32
)

// Dialer opens wire connections to a fixed gateway URL.
type Dialer struct {
	url      string
	rotation time.Duration
	window   time.Duration
	logger   *slog.Logger
	ws       *websocket.Dialer
}

// NewDialer creates a gateway dialer. rotation is the QR refresh interval and
// window bounds the whole pairing attempt; window/rotation challenges are
// issued before the attempt times out.
func NewDialer(url string, rotation, window time.Duration, logger *slog.Logger) *Dialer {
	return &Dialer{
		url:      url,
		rotation: rotation,
		window:   window,
		logger:   logger,
		ws: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}
}

// Dial establishes the websocket and starts the protocol. A dial failure is a
// network error; protocol-level rejections arrive as Closed events.
func (d *Dialer) Dial(ctx context.Context, tenantID id.TenantID, cred *models.Credential) (transport.Handle, error) {
	header := http.Header{}
	header.Set("X-Tenant-ID", tenantID.String())

	conn, resp, err := d.ws.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gateway dial rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("gateway dial: %w", err)
	}

	h := &handle{
		conn:     conn,
		tenantID: tenantID,
		rotation: d.rotation,
		window:   d.window,
		logger:   d.logger,
		events:   make(chan transport.Event, eventBuffer),
		closed:   make(chan struct{}),
		authed:   make(chan struct{}),
		acks:     make(map[string]chan ackResult),
	}

	go h.run(cred)
	return h, nil
}

type ackResult struct {
	ok     bool
	reason string
}

type handle struct {
	conn     *websocket.Conn
	tenantID id.TenantID
	rotation time.Duration
	window   time.Duration
	logger   *slog.Logger

	events chan transport.Event

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	finalOnce sync.Once

	authOnce sync.Once
	authed   chan struct{}

	emitMu   sync.Mutex
	finished bool

	mu         sync.Mutex
	currentSeq int
	clientKey  string
	acks       map[string]chan ackResult
}

func (h *handle) Events() <-chan transport.Event { return h.events }

// Close tears down the connection. Idempotent; the final Closed event is
// CloseLocal unless the connection already ended for another reason.
func (h *handle) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		_ = h.conn.Close()
	})
	return nil
}

func (h *handle) run(cred *models.Credential) {
	if err := h.openSession(cred); err != nil {
		h.finish(transport.CloseNetworkError, err)
		return
	}

	go h.keepAlive()
	if cred == nil {
		go h.rotateChallenges()
	}

	h.readLoop(cred)
}

func (h *handle) openSession(cred *models.Credential) error {
	if cred != nil {
		return h.writeJSON(clientMessage{
			Op:             opResume,
			Tenant:         h.tenantID.String(),
			Credential:     base64.StdEncoding.EncodeToString(cred.KeyMaterial),
			RegistrationID: cred.RegistrationID,
		})
	}
	return h.writeJSON(clientMessage{Op: opPair, Tenant: h.tenantID.String()})
}

// rotateChallenges requests a fresh challenge every rotation interval until
// the device links or the pairing window lapses. The gateway responds to each
// request with a challenge message handled by the read loop.
func (h *handle) rotateChallenges() {
	maxRotations := int(h.window / h.rotation)
	if maxRotations < 1 {
		maxRotations = 1
	}

	ticker := time.NewTicker(h.rotation)
	defer ticker.Stop()

	for issued := 1; ; {
		select {
		case <-h.closed:
			return
		case <-h.authed:
			return
		case <-ticker.C:
			if issued >= maxRotations {
				h.finish(transport.ClosePairingTimeout,
					fmt.Errorf("no device scanned within %s", h.window))
				return
			}
			issued++
			if err := h.writeJSON(clientMessage{Op: opPairRefresh, Seq: issued}); err != nil {
				h.finish(transport.CloseNetworkError, fmt.Errorf("request challenge rotation: %w", err))
				return
			}
		}
	}
}

func (h *handle) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.closed:
			return
		case <-ticker.C:
			h.writeMu.Lock()
			err := h.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			h.writeMu.Unlock()
			if err != nil {
				h.finish(transport.CloseNetworkError, fmt.Errorf("keepalive ping: %w", err))
				return
			}
		}
	}
}

func (h *handle) readLoop(cred *models.Credential) {
	_ = h.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	h.conn.SetPongHandler(func(string) error {
		return h.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var msg serverMessage
		if err := h.conn.ReadJSON(&msg); err != nil {
			select {
			case <-h.closed:
				h.finish(transport.CloseLocal, nil)
			default:
				h.finish(transport.CloseNetworkError, fmt.Errorf("gateway read: %w", err))
			}
			return
		}
		_ = h.conn.SetReadDeadline(time.Now().Add(pongTimeout))

		if done := h.dispatch(&msg, cred); done {
			return
		}
	}
}

// dispatch handles one gateway message. Returns true when the connection has
// reached its final state and the read loop should exit.
func (h *handle) dispatch(msg *serverMessage, cred *models.Credential) bool {
	switch msg.Op {
	case opChallenge:
		// A challenge while resuming means the gateway wants a fresh pairing
		// for a credential it was just handed. Surfacing its QR would turn
		// the resumption into a silent re-pair; close instead and let the
		// supervisor decide.
		if cred != nil {
			h.finish(transport.CloseProtocolError,
				fmt.Errorf("gateway issued pairing challenge during resumption"))
			return true
		}
		h.handleChallenge(msg)

	case opLinked:
		return h.handleLinked(msg)

	case opResumed:
		h.handleResumed(msg, cred)

	case opMessage:
		payload, err := base64.StdEncoding.DecodeString(msg.Payload)
		if err != nil {
			h.finish(transport.CloseProtocolError, fmt.Errorf("inbound payload encoding: %w", err))
			return true
		}
		h.emit(transport.MessageReceived{Frame: transport.Frame{
			ID:          msg.ID,
			ContentType: msg.ContentType,
			Payload:     payload,
			Timestamp:   msg.Timestamp,
		}})

	case opAck:
		h.resolveAck(msg)

	case opError:
		switch msg.Code {
		case "auth_rejected":
			h.finish(transport.CloseAuthRejected, fmt.Errorf("gateway rejected credential: %s", msg.Message))
		default:
			h.finish(transport.CloseProtocolError, fmt.Errorf("gateway error %q: %s", msg.Code, msg.Message))
		}
		return true

	default:
		h.logger.Warn("unknown gateway op", "op", msg.Op, "tenant_id", h.tenantID.String())
	}
	return false
}

func (h *handle) handleChallenge(msg *serverMessage) {
	h.mu.Lock()
	if msg.Seq <= h.currentSeq {
		h.mu.Unlock()
		h.logger.Warn("out-of-order challenge ignored",
			"tenant_id", h.tenantID.String(),
			"seq", msg.Seq,
			"current_seq", h.currentSeq,
		)
		return
	}
	h.currentSeq = msg.Seq
	h.clientKey = newClientKey()
	challenge := models.PairingChallenge{
		TenantID:  h.tenantID,
		ID:        id.NewChallengeID(),
		QRPayload: fmt.Sprintf("%s,%s,%d", msg.Ref, h.clientKey, msg.Seq),
		Seq:       msg.Seq,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(h.rotation),
	}
	h.mu.Unlock()

	h.emit(transport.QRIssued{Challenge: challenge})
}

func (h *handle) handleLinked(msg *serverMessage) bool {
	h.mu.Lock()
	current := h.currentSeq
	h.mu.Unlock()

	// A scan of a superseded challenge must be rejected, never accepted.
	if msg.Seq != current {
		h.logger.Warn("scan against stale challenge rejected",
			"tenant_id", h.tenantID.String(),
			"scanned_seq", msg.Seq,
			"current_seq", current,
		)
		return false
	}

	keyMaterial, err := base64.StdEncoding.DecodeString(msg.Credential)
	if err != nil {
		h.finish(transport.CloseProtocolError, fmt.Errorf("linked credential encoding: %w", err))
		return true
	}

	h.authOnce.Do(func() { close(h.authed) })
	h.emit(transport.Authenticated{Cred: models.Credential{
		TenantID:       h.tenantID,
		KeyMaterial:    keyMaterial,
		RegistrationID: msg.RegistrationID,
		LastUpdated:    time.Now(),
	}})
	return false
}

func (h *handle) handleResumed(msg *serverMessage, cred *models.Credential) {
	resumed := models.Credential{TenantID: h.tenantID, LastUpdated: time.Now()}
	if cred != nil {
		resumed.KeyMaterial = cred.KeyMaterial
		resumed.RegistrationID = cred.RegistrationID
	}
	// The gateway may rotate key material on resumption.
	if msg.Credential != "" {
		if keyMaterial, err := base64.StdEncoding.DecodeString(msg.Credential); err == nil {
			resumed.KeyMaterial = keyMaterial
		}
	}
	if msg.RegistrationID != 0 {
		resumed.RegistrationID = msg.RegistrationID
	}

	h.authOnce.Do(func() { close(h.authed) })
	h.emit(transport.Authenticated{Cred: resumed})
}

// Send writes one frame and waits for the gateway's ack.
func (h *handle) Send(ctx context.Context, frame transport.Frame) error {
	ackCh := make(chan ackResult, 1)
	h.mu.Lock()
	h.acks[frame.ID] = ackCh
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.acks, frame.ID)
		h.mu.Unlock()
	}()

	err := h.writeJSON(clientMessage{
		Op:          opSend,
		ID:          frame.ID,
		ContentType: frame.ContentType,
		Payload:     base64.StdEncoding.EncodeToString(frame.Payload),
		Timestamp:   frame.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closed:
		return fmt.Errorf("connection closed before ack")
	case res := <-ackCh:
		if !res.ok {
			return fmt.Errorf("gateway rejected frame: %s", res.reason)
		}
		return nil
	}
}

func (h *handle) resolveAck(msg *serverMessage) {
	h.mu.Lock()
	waiter, ok := h.acks[msg.ID]
	h.mu.Unlock()

	if ok {
		waiter <- ackResult{ok: msg.OK, reason: msg.Message}
		return
	}
	if !msg.OK {
		h.emit(transport.AckFailed{FrameID: msg.ID, Reason: msg.Message})
	}
}

func (h *handle) writeJSON(msg clientMessage) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return h.conn.WriteJSON(msg)
}

// emit delivers an event. Events are dropped once the handle is finished or
// when the consumer has closed the handle and stopped draining; the channel
// buffer absorbs normal bursts.
func (h *handle) emit(ev transport.Event) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()
	if h.finished {
		return
	}
	select {
	case h.events <- ev:
	case <-h.closed:
	}
}

// finish publishes the terminal Closed event exactly once, closes the events
// channel, and releases the socket. If the consumer already abandoned the
// handle the Closed event is dropped; consumers also treat a bare channel
// close as a network closure.
func (h *handle) finish(reason transport.CloseReason, err error) {
	h.finalOnce.Do(func() {
		h.emitMu.Lock()
		h.finished = true
		select {
		case h.events <- transport.Closed{Reason: reason, Err: err}:
		default:
		}
		close(h.events)
		h.emitMu.Unlock()

		h.closeOnce.Do(func() {
			close(h.closed)
			_ = h.conn.Close()
		})
	})
}
