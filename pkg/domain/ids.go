// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "linkhub/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a MessageID where a TenantID is expected.
type (
	ChallengeID uuid.UUID
	MessageID   uuid.UUID
)

// TenantID is an opaque identifier assigned by the surrounding dashboard.
// It is not required to be a UUID, only non-empty and within length bounds.
type TenantID string

const maxTenantIDLen = 128

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseTenantID(s string) (TenantID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant ID cannot be empty")
	}
	if len(s) > maxTenantIDLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tenant ID too long")
	}
	return TenantID(s), nil
}

func ParseChallengeID(s string) (ChallengeID, error) {
	id, err := parseUUID(s, "challenge ID")
	return ChallengeID(id), err
}

func ParseMessageID(s string) (MessageID, error) {
	id, err := parseUUID(s, "message ID")
	return MessageID(id), err
}

// NewChallengeID generates a fresh challenge identifier.
func NewChallengeID() ChallengeID { return ChallengeID(uuid.New()) }

// NewMessageID generates a fresh message identifier.
func NewMessageID() MessageID { return MessageID(uuid.New()) }

// String methods - for logging and debugging.

func (id TenantID) String() string    { return string(id) }
func (id ChallengeID) String() string { return uuid.UUID(id).String() }
func (id MessageID) String() string   { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id TenantID) IsNil() bool    { return id == "" }
func (id ChallengeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	return id, nil
}
