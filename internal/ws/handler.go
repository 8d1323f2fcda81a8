package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"groupchat-service/internal/auth"
	"groupchat-service/internal/config"
	"groupchat-service/internal/observability"
)

const lifecycleRoutingKey = "ws_events.groups"

// TokenValidator resolves a bearer token into an identity.
type TokenValidator interface {
	Validate(token string) (auth.Identity, error)
}

// Handler upgrades authenticated requests and runs the connection pumps.
type Handler struct {
	gateway   *Gateway
	validator TokenValidator
	events    *observability.Events
	cfg       config.WSConfig
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func NewHandler(gateway *Gateway, validator TokenValidator, events *observability.Events, cfg config.WSConfig, logger *slog.Logger) *Handler {
	return &Handler{
		gateway:   gateway,
		validator: validator,
		events:    events,
		cfg:       cfg,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws. The token comes from the Authorization header or
// the token query parameter; invalid tokens are refused before the upgrade.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("groupchat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.validator.Validate(tokenFromRequest(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		Client:      observability.ClientMetaFromRequest(c.Request),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, identity, info, h.cfg.SendBuffer)

	// The request context ends when Handle returns; the connection outlives it.
	connCtx := context.WithoutCancel(ctx)
	if err := h.gateway.Connect(connCtx, client); err != nil {
		h.logger.Error("websocket connect failed", "user_id", identity.UserID, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "try again later"),
			time.Now().Add(h.cfg.WriteWait))
		client.Close()
		return
	}

	observability.IncWSActive()
	h.publishLifecycle(connCtx, observability.EventWSConnect, client, "")

	go client.writePump(h.cfg)
	go h.serve(connCtx, client)
}

func (h *Handler) serve(ctx context.Context, client *Client) {
	err := client.readPump(h.cfg, func(message []byte) {
		h.gateway.Dispatch(ctx, client, message)
	})

	reason := ""
	if err != nil {
		reason = err.Error()
	}
	dropped := client.Dropped()
	if dropped {
		reason = "send queue overflow"
	}
	if dropped || !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.publishLifecycle(ctx, observability.EventWSError, client, reason)
	}

	h.publishLifecycle(ctx, observability.EventWSDisconnect, client, reason)
	h.gateway.Disconnect(ctx, client)
	observability.DecWSActive()
}

func (h *Handler) publishLifecycle(ctx context.Context, event string, client *Client, reason string) {
	observability.IncWSEvent("lifecycle", event)

	info := client.Info()
	rooms := len(h.gateway.router.RoomsOf(client))
	envelope := observability.NewLifecycleEnvelope(info.Lifecycle(event, rooms, reason, time.Now()), time.Now())
	_ = h.events.PublishEvent(ctx, lifecycleRoutingKey, envelope, observability.BuildHeaders(ctx, info.Client.RequestID))
}

func tokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return c.Query("token")
}
