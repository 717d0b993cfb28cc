// Package bridge converts between wire frames and normalized message
// envelopes at the boundary to the external message pipeline.
//
// The bridge is stateless and unidirectional per call: it never holds a
// reference back into a supervisor, which keeps the transport -> bridge ->
// pipeline flow free of cycles.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"linkhub/internal/linking/metrics"
	"linkhub/internal/linking/models"
	"linkhub/internal/linking/transport"
	"linkhub/internal/platform/kafka/producer"
	id "linkhub/pkg/domain"
)

// Publisher is the slice of the Kafka producer the bridge needs.
type Publisher interface {
	ProduceAsync(msg *producer.Message) error
}

// Bridge relays inbound frames to the pipeline topic.
type Bridge struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics attaches instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// New constructs a bridge publishing inbound envelopes to the given topic.
func New(publisher Publisher, topic string, opts ...Option) *Bridge {
	b := &Bridge{
		publisher: publisher,
		topic:     topic,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// envelope is the pipeline wire format for both directions.
type envelope struct {
	TenantID    string    `json:"tenant_id"`
	ExternalID  string    `json:"external_id"`
	Direction   string    `json:"direction"`
	ContentType string    `json:"content_type"`
	Payload     []byte    `json:"payload"`
	Timestamp   time.Time `json:"timestamp"`
}

// Inbound normalizes one frame and hands it to the pipeline. Delivery is
// fire-and-forget and at-least-once; duplicates after reconnection are
// deduplicated downstream by external ID. Inbound never blocks on broker
// round-trips, so it is safe to call from a supervisor's event loop.
func (b *Bridge) Inbound(ctx context.Context, tenantID id.TenantID, frame transport.Frame) {
	msg := models.InboundMessage{
		TenantID:    tenantID,
		ExternalID:  frame.ID,
		Direction:   models.DirectionInbound,
		ContentType: frame.ContentType,
		Payload:     frame.Payload,
		Timestamp:   frame.Timestamp,
	}

	value, err := json.Marshal(envelope{
		TenantID:    msg.TenantID.String(),
		ExternalID:  msg.ExternalID,
		Direction:   string(msg.Direction),
		ContentType: msg.ContentType,
		Payload:     msg.Payload,
		Timestamp:   msg.Timestamp,
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "marshal inbound envelope", "error", err,
			"tenant_id", tenantID.String())
		return
	}

	err = b.publisher.ProduceAsync(&producer.Message{
		Topic: b.topic,
		Key:   []byte(tenantID.String()),
		Value: value,
		Headers: map[string]string{
			"external_id": msg.ExternalID,
		},
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "publish inbound envelope", "error", err,
			"tenant_id", tenantID.String(),
			"external_id", msg.ExternalID,
		)
		return
	}
	if b.metrics != nil {
		b.metrics.MessagesInbound.Inc()
	}
}

// Frame converts an outbound envelope into a wire frame.
func Frame(msg models.OutboundMessage) transport.Frame {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	frameID := msg.ExternalID
	if frameID == "" {
		frameID = id.NewMessageID().String()
	}
	return transport.Frame{
		ID:          frameID,
		ContentType: msg.ContentType,
		Payload:     msg.Payload,
		Timestamp:   ts,
	}
}

// DecodeOutbound parses a pipeline record into an outbound envelope.
func DecodeOutbound(value []byte) (models.OutboundMessage, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return models.OutboundMessage{}, fmt.Errorf("decode outbound envelope: %w", err)
	}
	tenantID, err := id.ParseTenantID(env.TenantID)
	if err != nil {
		return models.OutboundMessage{}, fmt.Errorf("decode outbound envelope: %w", err)
	}
	return models.OutboundMessage{
		TenantID:    tenantID,
		ExternalID:  env.ExternalID,
		Direction:   models.DirectionOutbound,
		ContentType: env.ContentType,
		Payload:     env.Payload,
		Timestamp:   env.Timestamp,
	}, nil
}
