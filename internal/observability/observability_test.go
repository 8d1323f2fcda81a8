package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	p.calls++
	return errors.New("channel closed")
}

func TestHTTPMetricsMiddlewareCountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HTTPMetricsMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")))
}

func TestEventsPublishFailureIsCounted(t *testing.T) {
	publisher := &failingPublisher{}
	events := NewEvents(publisher, slog.New(slog.NewTextHandler(io.Discard, nil)))

	before := testutil.ToFloat64(amqpPublishErrorsTotal)
	err := events.PublishEvent(context.Background(), "ws_events.groups", EventEnvelope{EventType: "ws_events", EventName: "ws_connect"}, nil)

	require.Error(t, err)
	require.Equal(t, 1, publisher.calls)
	require.Equal(t, before+1, testutil.ToFloat64(amqpPublishErrorsTotal))
}

func TestNilEventsIsNoop(t *testing.T) {
	var events *Events
	require.NoError(t, events.PublishEvent(context.Background(), "x", EventEnvelope{}, nil))
}

func TestObserveSweep(t *testing.T) {
	before := testutil.ToFloat64(sweepDeletedTotal)
	ObserveSweep(3, nil)
	ObserveSweep(5, errors.New("db down"))
	require.Equal(t, before+3, testutil.ToFloat64(sweepDeletedTotal))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/grpc.health.v1.Health/Check")
	require.Equal(t, "grpc.health.v1.Health", service)
	require.Equal(t, "Check", method)

	service, method = splitFullMethod("bad")
	require.Equal(t, "unknown", service)
	require.Equal(t, "unknown", method)
}

func TestClientMetaFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("X-Forwarded-For", " , 10.0.0.1, 10.0.0.2")
	req.Header.Set("X-Device-Id", "phone-1")
	req.Header.Set("X-Request-Id", "r-1")
	req.Header.Set("User-Agent", "client/1.0")
	require.Equal(t, ClientMeta{DeviceID: "phone-1", IP: "10.0.0.1", RequestID: "r-1", UserAgent: "client/1.0"}, ClientMetaFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("X-Real-Ip", "172.16.0.9")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	require.Equal(t, "172.16.0.9", ClientMetaFromRequest(req).IP)

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	meta := ClientMetaFromRequest(req)
	require.Equal(t, "192.168.1.5", meta.IP)
	require.NotEmpty(t, meta.RequestID)
}

func TestBuildHeaders(t *testing.T) {
	require.Empty(t, BuildHeaders(context.Background(), ""))

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID}))

	require.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "0102030405060708090a0b0c0d0e0f10"}, BuildHeaders(ctx, "r"))
}

func TestNewLifecycleEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	env := NewLifecycleEnvelope(ConnLifecycle{WS: ConnState{Event: EventWSDisconnect, ConnID: "c-1"}}, at)

	require.Equal(t, EventTypeWS, env.EventType)
	require.Equal(t, EventWSDisconnect, env.EventName)
	require.Equal(t, "2026-03-01T09:00:00Z", env.OccurredAt)
}
