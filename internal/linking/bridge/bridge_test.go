package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"linkhub/internal/linking/models"
	"linkhub/internal/linking/transport"
	"linkhub/internal/platform/kafka/producer"
	id "linkhub/pkg/domain"
)

type capturingPublisher struct {
	messages []*producer.Message
	err      error
}

func (p *capturingPublisher) ProduceAsync(msg *producer.Message) error {
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func TestBridge_InboundNormalizesAndPublishes(t *testing.T) {
	pub := &capturingPublisher{}
	b := New(pub, "linkhub.messages.inbound")

	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.Inbound(context.Background(), id.TenantID("t1"), transport.Frame{
		ID:          "ext-42",
		ContentType: "text/plain",
		Payload:     []byte("hello"),
		Timestamp:   ts,
	})

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, "linkhub.messages.inbound", msg.Topic)
	require.Equal(t, []byte("t1"), msg.Key)
	require.Equal(t, "ext-42", msg.Headers["external_id"])

	var env map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	require.Equal(t, "t1", env["tenant_id"])
	require.Equal(t, "inbound", env["direction"])
	require.Equal(t, "text/plain", env["content_type"])
}

func TestBridge_InboundSwallowsPublisherErrors(t *testing.T) {
	pub := &capturingPublisher{err: context.DeadlineExceeded}
	b := New(pub, "topic")

	// Fire-and-forget: a broker outage must not propagate into the supervisor.
	b.Inbound(context.Background(), id.TenantID("t1"), transport.Frame{ID: "x"})
	require.Empty(t, pub.messages)
}

func TestFrame_FillsDefaults(t *testing.T) {
	frame := Frame(models.OutboundMessage{
		TenantID:    "t1",
		ContentType: "text/plain",
		Payload:     []byte("reply"),
	})

	require.NotEmpty(t, frame.ID, "a frame without an external ID gets a generated one")
	require.False(t, frame.Timestamp.IsZero())
	require.Equal(t, []byte("reply"), frame.Payload)
}

func TestFrame_PreservesExternalID(t *testing.T) {
	frame := Frame(models.OutboundMessage{TenantID: "t1", ExternalID: "reply-7"})
	require.Equal(t, "reply-7", frame.ID)
}

func TestDecodeOutbound_RoundTrip(t *testing.T) {
	raw, err := json.Marshal(map[string]any{
		"tenant_id":    "t1",
		"external_id":  "reply-1",
		"direction":    "outbound",
		"content_type": "text/plain",
		"payload":      []byte("body"),
	})
	require.NoError(t, err)

	msg, err := DecodeOutbound(raw)
	require.NoError(t, err)
	require.Equal(t, id.TenantID("t1"), msg.TenantID)
	require.Equal(t, "reply-1", msg.ExternalID)
	require.Equal(t, models.DirectionOutbound, msg.Direction)
	require.Equal(t, []byte("body"), msg.Payload)
}

func TestDecodeOutbound_RejectsGarbage(t *testing.T) {
	_, err := DecodeOutbound([]byte("not json"))
	require.Error(t, err)

	_, err = DecodeOutbound([]byte(`{"tenant_id":""}`))
	require.Error(t, err)
}
