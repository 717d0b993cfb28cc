// Package models holds the domain types for device-linking sessions.
package models

import (
	"time"

	id "linkhub/pkg/domain"
)

// SessionState is the public state of a tenant's linked-device session.
// It is mutated only by the owning supervisor and read through immutable
// snapshots, never observed mid-transition.
type SessionState string

const (
	StateDisconnected   SessionState = "disconnected"
	StateConnecting     SessionState = "connecting"
	StatePairingPending SessionState = "pairing_pending"
	StateConnected      SessionState = "connected"
	StateReconnecting   SessionState = "reconnecting"
	StateFailed         SessionState = "failed"
)

// String implements fmt.Stringer for logging.
func (s SessionState) String() string { return string(s) }

// Terminal reports whether the session requires a fresh connect command to
// make progress again.
func (s SessionState) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// StatusSnapshot is the atomically-published view of a session. Every field
// is a value; a snapshot is never mutated after publication, so concurrent
// readers can hold it without synchronization.
type StatusSnapshot struct {
	State     SessionState
	QR        string
	LastError string
	Since     time.Time
}

// Connected reports whether the session can carry traffic.
func (s StatusSnapshot) Connected() bool { return s.State == StateConnected }

// Credential is the persisted pairing state for one tenant. KeyMaterial is an
// opaque sealed blob; this subsystem never inspects its contents.
type Credential struct {
	TenantID       id.TenantID
	KeyMaterial    []byte
	RegistrationID uint32
	LastUpdated    time.Time
}

// PairingChallenge is one rotation of the scannable QR challenge. Seq is
// strictly monotonic within a pairing attempt; a challenge supersedes every
// lower Seq and a scan against a superseded challenge is rejected.
type PairingChallenge struct {
	TenantID  id.TenantID
	ID        id.ChallengeID
	QRPayload string
	Seq       int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the challenge's own window has lapsed.
func (c PairingChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Supersedes reports whether this challenge invalidates the other.
func (c PairingChallenge) Supersedes(other PairingChallenge) bool {
	return c.Seq > other.Seq
}

// Direction distinguishes inbound from outbound envelopes.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// InboundMessage is the normalized envelope handed to the external message
// pipeline. Ownership passes to the pipeline once emitted; duplicates are
// possible on reconnection and are deduplicated downstream by ExternalID.
type InboundMessage struct {
	TenantID    id.TenantID
	ExternalID  string
	Direction   Direction
	ContentType string
	Payload     []byte
	Timestamp   time.Time
}

// OutboundMessage is the normalized envelope accepted from the response
// pipeline for delivery through a connected session.
type OutboundMessage struct {
	TenantID    id.TenantID
	ExternalID  string
	Direction   Direction
	ContentType string
	Payload     []byte
	Timestamp   time.Time
}
