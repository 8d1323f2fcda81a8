package telemetry

import (
	"context"
	"log/slog"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEmitter publishes audit_log envelopes for group administration
// actions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level   string `json:"level"`
	Text    string `json:"text"`
	Action  string `json:"action,omitempty"`
	GroupID int    `json:"group_id,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
		now:         time.Now,
	}
}

// Emit publishes a free-form audit line.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *int64) {
	e.publish(ctx, requestID, userID, AuditPayload{Level: level, Text: text})
}

// GroupAction records an administrative change on a group.
func (e *AuditEmitter) GroupAction(ctx context.Context, action string, groupID int, requestID string, userID *int64) {
	e.publish(ctx, requestID, userID, AuditPayload{
		Level:   "INFO",
		Text:    "group " + action,
		Action:  action,
		GroupID: groupID,
	})
}

func (e *AuditEmitter) publish(ctx context.Context, requestID string, userID *int64, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}
	e.logger.Debug("audit emit", "request_id", requestID, "action", payload.Action, "text", payload.Text)

	headers := map[string]string{"x-request-id": requestID}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.logger.Warn("audit publish failed", "request_id", requestID, "error", err)
	}
}
