// Package outbound consumes reply envelopes from the pipeline topic and
// delivers them through the tenants' sessions.
package outbound

import (
	"context"
	"log/slog"

	"linkhub/internal/linking/bridge"
	"linkhub/internal/linking/models"
	"linkhub/internal/platform/kafka/consumer"
	dErrors "linkhub/pkg/domain-errors"
)

// Sender delivers one outbound message; satisfied by the linking service.
type Sender interface {
	Send(ctx context.Context, msg models.OutboundMessage) error
}

// Worker is the consumer-group handler for the outbound topic.
type Worker struct {
	sender Sender
	logger *slog.Logger
}

// New constructs the handler.
func New(sender Sender, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sender: sender, logger: logger}
}

// Handle decodes and delivers one record.
//
// Undecodable records and sends against a session that is not connected are
// logged and committed: redelivering them cannot help, and the pipeline owns
// the retry policy for undelivered replies. Transient delivery failures
// return an error so the record is redelivered.
func (w *Worker) Handle(ctx context.Context, msg *consumer.Message) error {
	out, err := bridge.DecodeOutbound(msg.Value)
	if err != nil {
		w.logger.WarnContext(ctx, "dropping undecodable outbound record",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	err = w.sender.Send(ctx, out)
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeNotConnected),
		dErrors.HasCode(err, dErrors.CodeInvalidInput):
		w.logger.WarnContext(ctx, "skipping outbound record",
			"tenant_id", out.TenantID.String(),
			"external_id", out.ExternalID,
			"error", err,
		)
		return nil
	default:
		return err
	}
}

var _ consumer.Handler = (*Worker)(nil)
