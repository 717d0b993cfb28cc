package httptransport

import (
	dErrors "linkhub/pkg/domain-errors"
)

type disconnectRequest struct {
	Logout bool `json:"logout"`
}

// maxPayloadBytes caps a single outbound message body.
const maxPayloadBytes = 256 * 1024

type sendRequest struct {
	ExternalID  string `json:"external_id,omitempty"`
	ContentType string `json:"content_type"`
	Payload     []byte `json:"payload"`
}

func (r *sendRequest) Validate() error {
	if len(r.Payload) == 0 {
		return dErrors.New(dErrors.CodeValidation, "payload is required")
	}
	if len(r.Payload) > maxPayloadBytes {
		return dErrors.New(dErrors.CodeValidation, "payload exceeds maximum size")
	}
	if r.ContentType == "" {
		r.ContentType = "text/plain"
	}
	return nil
}
