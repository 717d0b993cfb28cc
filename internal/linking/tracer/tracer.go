// Package tracer is a small tracing abstraction for the linking module.
//
// It keeps the session code decoupled from OpenTelemetry APIs: the service
// layer emits spans through this interface, and wiring decides whether they
// go to an OTel provider or nowhere.
package tracer

import (
	"context"
	"time"
)

// Span tracks one operation. End must be called exactly once, typically via
// defer; a non-nil error marks the span failed.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the linking module.
const (
	SpanConnect    = "session.connect"
	SpanDisconnect = "session.disconnect"
	SpanStatus     = "session.status"
	SpanSend       = "session.send"
	SpanEvict      = "session.evict"
)

// Attribute keys used by the linking module.
const (
	AttrTenantID = "tenant_id"
	AttrLogout   = "logout"
	AttrState    = "session_state"
	AttrFrameID  = "frame_id"
)
