package wire

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Gateway protocol ops. Client to gateway:
const (
	opResume      = "resume"
	opPair        = "pair"
	opPairRefresh = "pair_refresh"
	opSend        = "send"
)

// Gateway to client:
const (
	opChallenge = "challenge"
	opLinked    = "linked"
	opResumed   = "resumed"
	opMessage   = "message"
	opAck       = "ack"
	opError     = "error"
)

// clientMessage is the envelope for everything the client writes.
type clientMessage struct {
	Op             string    `json:"op"`
	Tenant         string    `json:"tenant,omitempty"`
	Credential     string    `json:"credential,omitempty"`
	RegistrationID uint32    `json:"registration_id,omitempty"`
	Seq            int       `json:"seq,omitempty"`
	ID             string    `json:"id,omitempty"`
	ContentType    string    `json:"content_type,omitempty"`
	Payload        string    `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitzero"`
}

// serverMessage is the envelope for everything the gateway writes.
type serverMessage struct {
	Op             string    `json:"op"`
	Ref            string    `json:"ref,omitempty"`
	Seq            int       `json:"seq,omitempty"`
	Credential     string    `json:"credential,omitempty"`
	RegistrationID uint32    `json:"registration_id,omitempty"`
	ID             string    `json:"id,omitempty"`
	ContentType    string    `json:"content_type,omitempty"`
	Payload        string    `json:"payload,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitzero"`
	OK             bool      `json:"ok,omitempty"`
	Code           string    `json:"code,omitempty"`
	Message        string    `json:"message,omitempty"`
}

// newClientKey generates the per-challenge ephemeral public key half of the
// QR payload. The scanning device encrypts its half of the handshake to it.
func newClientKey() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
