package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

const (
	EventTypeWS = "ws_events"

	EventWSConnect    = "ws_connect"
	EventWSDisconnect = "ws_disconnect"
	EventWSError      = "ws_error"
)

// EventEnvelope wraps every operational event published to the exchange.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// ConnLifecycle is the payload of the ws_* events.
type ConnLifecycle struct {
	WS       ConnState    `json:"ws"`
	Identity ConnIdentity `json:"identity"`
}

type ConnState struct {
	Kind       string `json:"kind"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	Rooms      int    `json:"rooms"`
	DurationMs int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

type ConnIdentity struct {
	UserID    int    `json:"user_id"`
	DeviceID  string `json:"device_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

func NewLifecycleEnvelope(payload ConnLifecycle, at time.Time) EventEnvelope {
	return EventEnvelope{
		EventType:  EventTypeWS,
		EventName:  payload.WS.Event,
		OccurredAt: at.UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
}

// BuildHeaders returns the AMQP headers for an event published under ctx.
// The trace id is taken from the span in ctx, if any.
func BuildHeaders(ctx context.Context, requestID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		headers["trace_id"] = sc.TraceID().String()
	}
	return headers
}
