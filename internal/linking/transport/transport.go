// Package transport defines the contract between session supervisors and the
// low-level messaging-network connection.
//
// A Handle owns one connection for one tenant. It is event-driven: handshake
// progress, authentication, inbound traffic, and closure all arrive on the
// Events channel. The supervisor is the only consumer of a handle's events.
package transport

import (
	"context"
	"time"

	"linkhub/internal/linking/models"
	id "linkhub/pkg/domain"
)

// Dialer opens connections to the messaging network.
//
// If cred is nil the connection performs a fresh pairing handshake, issuing a
// rotating QR challenge until a device scans it or the pairing window lapses.
// If cred is non-nil the connection attempts silent resumption only: an
// invalid or revoked credential surfaces as Closed(CloseAuthRejected), never
// as a silent fallback to pairing.
type Dialer interface {
	Dial(ctx context.Context, tenantID id.TenantID, cred *models.Credential) (Handle, error)
}

// Handle is one live connection. Close is idempotent and releases the
// underlying socket; the Events channel is closed after the final Closed
// event has been delivered.
type Handle interface {
	Events() <-chan Event
	Send(ctx context.Context, frame Frame) error
	Close() error
}

// Frame is the wire-level message unit, already decoded from the protocol's
// framing but not yet normalized into a pipeline envelope.
type Frame struct {
	ID          string
	ContentType string
	Payload     []byte
	Timestamp   time.Time
}

// Event is the sum type of everything a connection can report.
type Event interface{ isEvent() }

// QRIssued carries a fresh pairing challenge. Each challenge supersedes the
// previous one; the supervisor publishes only the latest payload.
type QRIssued struct {
	Challenge models.PairingChallenge
}

// Authenticated reports a completed handshake, either a device scan or a
// silent resumption. Cred carries the credential to persist; the protocol
// may rotate key material mid-session, in which case Authenticated is
// delivered again with the replacement.
type Authenticated struct {
	Cred models.Credential
}

// MessageReceived carries one inbound frame.
type MessageReceived struct {
	Frame Frame
}

// AckFailed reports that the peer rejected a previously sent frame.
type AckFailed struct {
	FrameID string
	Reason  string
}

// Closed is the final event on a connection. After Closed the events channel
// is closed and the handle is unusable.
type Closed struct {
	Reason CloseReason
	Err    error
}

func (QRIssued) isEvent()        {}
func (Authenticated) isEvent()   {}
func (MessageReceived) isEvent() {}
func (AckFailed) isEvent()       {}
func (Closed) isEvent()          {}

// CloseReason classifies why a connection ended. The supervisor's retry
// decision depends entirely on this classification.
type CloseReason string

const (
	// ClosePairingTimeout: no device scanned within the rotation window.
	ClosePairingTimeout CloseReason = "pairing_timeout"
	// CloseAuthRejected: the supplied credential was revoked or invalid.
	// Retrying without re-pairing is pointless.
	CloseAuthRejected CloseReason = "auth_rejected"
	// CloseNetworkError: transient failure, retryable with backoff.
	CloseNetworkError CloseReason = "network_error"
	// CloseProtocolError: malformed frame or unexpected peer behaviour.
	CloseProtocolError CloseReason = "protocol_error"
	// CloseLocal: the supervisor closed the handle deliberately.
	CloseLocal CloseReason = "local_close"
)
