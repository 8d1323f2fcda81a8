package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat-service/internal/config"
	"groupchat-service/internal/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGroupActionPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "groupchat-service", "test", testLogger())
	emitter.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	userID := int64(7)
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.OccurredAt == "2024-05-01T12:00:00Z" &&
			env.RequestID == "req-1" &&
			*env.UserID == 7 &&
			env.Payload.Action == "deleted" &&
			env.Payload.GroupID == 3
	}), map[string]string{"x-request-id": "req-1"}).Return(nil).Once()

	emitter.GroupAction(context.Background(), "deleted", 3, "req-1", &userID)
	publisher.AssertExpectations(t)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "svc", "test", testLogger())
	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything, mock.Anything).Return(errors.New("closed")).Once()

	require.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "audit test", "req-2", nil)
	})
	publisher.AssertExpectations(t)
}

func TestNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	require.NotPanics(t, func() {
		emitter.GroupAction(context.Background(), "created", 1, "", nil)
	})
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TracingConfig{}, "groupchat-service", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
