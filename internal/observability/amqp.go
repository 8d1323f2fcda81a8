package observability

import (
	"context"
	"log/slog"
)

// Publisher is the transport used for lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// Events publishes operational envelopes and counts failures.
type Events struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewEvents(publisher Publisher, logger *slog.Logger) *Events {
	return &Events{publisher: publisher, logger: logger}
}

// PublishEvent sends envelope on routingKey. A nil receiver is a no-op.
func (e *Events) PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) error {
	if e == nil || e.publisher == nil {
		return nil
	}

	err := e.publisher.Publish(ctx, routingKey, envelope, headers)
	if err != nil {
		IncAMQPPublishError()
		e.logger.Warn("event publish failed", "routing_key", routingKey, "event", envelope.EventName, "error", err)
	}
	return err
}
