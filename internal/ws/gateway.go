package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"groupchat-service/internal/apperr"
	"groupchat-service/internal/auth"
	"groupchat-service/internal/chat"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/presence"
)

// Directory answers membership questions for the gateway.
type Directory interface {
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	GroupsOf(ctx context.Context, userID int) ([]int, error)
}

// Messenger performs message operations requested over the socket.
type Messenger interface {
	SendMessage(ctx context.Context, identity auth.Identity, groupID int, content string, image *chat.Upload) (models.Message, error)
	DeleteMessage(ctx context.Context, identity auth.Identity, messageID int) (models.Message, error)
}

// Gateway owns the connection lifecycle and inbound event dispatch.
type Gateway struct {
	router    *Router
	tracker   *presence.Tracker
	groups    Directory
	messages  Messenger
	logger    *slog.Logger
	tracer    trace.Tracer
	opTimeout time.Duration
}

func NewGateway(router *Router, tracker *presence.Tracker, groups Directory, messages Messenger, logger *slog.Logger) *Gateway {
	return &Gateway{
		router:    router,
		tracker:   tracker,
		groups:    groups,
		messages:  messages,
		logger:    logger,
		tracer:    otel.Tracer("groupchat-service/ws"),
		opTimeout: 15 * time.Second,
	}
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomRequest struct {
	GroupID int `json:"group_id"`
}

type typingRequest struct {
	GroupID  int  `json:"group_id"`
	IsTyping bool `json:"is_typing"`
}

type sendRequest struct {
	GroupID int    `json:"group_id"`
	Content string `json:"content"`
	Ref     string `json:"ref"`
}

type deleteRequest struct {
	MessageID int    `json:"message_id"`
	Ref       string `json:"ref"`
}

// Connect registers c, subscribes it to the rooms of every group the user
// belongs to and announces the user process-wide.
func (g *Gateway) Connect(ctx context.Context, c *Client) error {
	ctx, span := g.tracer.Start(ctx, "ws.connect", trace.WithAttributes(attribute.Int("user.id", c.UserID())))
	defer span.End()

	groupIDs, err := g.groups.GroupsOf(ctx, c.UserID())
	if err != nil {
		span.RecordError(err)
		return apperr.Transient("failed to load memberships", err)
	}

	g.router.Register(c)
	for _, groupID := range groupIDs {
		g.router.Join(c, models.RoomID(groupID))
	}

	// A removal committed between the lookup and the joins above was evicted
	// before c was in the room, so memberships are read again.
	current, err := g.groups.GroupsOf(ctx, c.UserID())
	if err != nil {
		span.RecordError(err)
		g.router.Unregister(c)
		return apperr.Transient("failed to load memberships", err)
	}
	g.reconcileRooms(c, groupIDs, current)

	g.tracker.SetOnline(ctx, c.UserID())
	observability.SetPresenceOnline(g.tracker.OnlineCount())
	g.router.BroadcastAll(models.EventUserOnline, models.PresencePayload{UserID: c.UserID(), Username: c.Username()})

	g.logger.Info("ws connected", "conn_id", c.ID(), "user_id", c.UserID(), "rooms", len(current))
	return nil
}

func (g *Gateway) reconcileRooms(c *Client, joined, current []int) {
	keep := make(map[int]struct{}, len(current))
	for _, groupID := range current {
		keep[groupID] = struct{}{}
		g.router.Join(c, models.RoomID(groupID))
	}
	for _, groupID := range joined {
		if _, ok := keep[groupID]; !ok {
			g.router.Leave(c, models.RoomID(groupID))
		}
	}
}

// Disconnect releases every subscription of c and updates presence. Calls
// after the first one for the same connection only close it again.
func (g *Gateway) Disconnect(ctx context.Context, c *Client) {
	rooms, registered := g.router.Unregister(c)
	c.Close()
	if !registered {
		return
	}

	_, changed := g.tracker.SetOffline(ctx, c.UserID())
	observability.SetPresenceOnline(g.tracker.OnlineCount())
	if changed {
		g.router.BroadcastAll(models.EventUserOffline, models.PresencePayload{UserID: c.UserID(), Username: c.Username()})
	}

	g.logger.Info("ws disconnected", "conn_id", c.ID(), "user_id", c.UserID(), "rooms", len(rooms), "offline", changed)
}

// JoinGroupRoom subscribes c to the group's room when the user is a member.
// Non-members get an error event and the room sees nothing.
func (g *Gateway) JoinGroupRoom(ctx context.Context, c *Client, groupID int) error {
	member, err := g.groups.IsMember(ctx, groupID, c.UserID())
	if err != nil {
		return apperr.Transient("membership check failed", err)
	}
	if !member {
		return apperr.Forbidden("not a member of this group")
	}

	room := models.RoomID(groupID)
	g.router.Join(c, room)

	// Re-check after joining so a concurrent removal cannot leave c subscribed.
	member, err = g.groups.IsMember(ctx, groupID, c.UserID())
	if err != nil || !member {
		g.router.Leave(c, room)
		if err != nil {
			return apperr.Transient("membership check failed", err)
		}
		return apperr.Forbidden("not a member of this group")
	}
	g.router.Broadcast(room, models.EventGroupJoined, models.RoomPayload{GroupID: groupID, Username: c.Username()}, "")
	return nil
}

// LeaveGroupRoom unsubscribes c and tells the remaining room members.
func (g *Gateway) LeaveGroupRoom(ctx context.Context, c *Client, groupID int) error {
	room := models.RoomID(groupID)
	g.router.Leave(c, room)
	g.router.Broadcast(room, models.EventGroupLeft, models.RoomPayload{GroupID: groupID, Username: c.Username()}, "")
	return nil
}

// Typing relays a typing indicator to the room, excluding the sender.
func (g *Gateway) Typing(ctx context.Context, c *Client, groupID int, isTyping bool) error {
	room := models.RoomID(groupID)
	if !g.router.InRoom(c, room) {
		return apperr.Forbidden("join the group before typing")
	}
	g.router.Broadcast(room, models.EventUserTyping, models.TypingPayload{
		UserID:   c.UserID(),
		Username: c.Username(),
		IsTyping: isTyping,
	}, c.ID())
	return nil
}

// SendMessage stores and broadcasts a text message. The store and broadcast
// run detached from the connection so they complete after a disconnect.
func (g *Gateway) SendMessage(ctx context.Context, c *Client, groupID int, content string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opTimeout)
	defer cancel()
	_, err := g.messages.SendMessage(ctx, c.Identity(), groupID, content, nil)
	return err
}

// DeleteMessage removes a message on behalf of c.
func (g *Gateway) DeleteMessage(ctx context.Context, c *Client, messageID int) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opTimeout)
	defer cancel()
	_, err := g.messages.DeleteMessage(ctx, c.Identity(), messageID)
	return err
}

// Dispatch decodes one inbound frame and runs the matching operation.
// Failures are reported to c alone.
func (g *Gateway) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		g.sendError(c, apperr.InvalidInput("malformed frame"), "")
		return
	}
	observability.IncWSEvent("in", frame.Event)

	ctx, span := g.tracer.Start(ctx, "ws."+frame.Event, trace.WithAttributes(
		attribute.Int("user.id", c.UserID()),
		attribute.String("ws.conn_id", c.ID()),
	))
	defer span.End()

	var (
		err error
		ref string
	)
	switch frame.Event {
	case models.EventJoinGroup:
		var req roomRequest
		if err = decodeData(frame.Data, &req); err == nil {
			err = g.JoinGroupRoom(ctx, c, req.GroupID)
		}
	case models.EventLeaveGroup:
		var req roomRequest
		if err = decodeData(frame.Data, &req); err == nil {
			err = g.LeaveGroupRoom(ctx, c, req.GroupID)
		}
	case models.EventTypingGroup:
		var req typingRequest
		if err = decodeData(frame.Data, &req); err == nil {
			err = g.Typing(ctx, c, req.GroupID, req.IsTyping)
		}
	case models.EventSendMessage:
		var req sendRequest
		if err = decodeData(frame.Data, &req); err == nil {
			ref = req.Ref
			err = g.SendMessage(ctx, c, req.GroupID, req.Content)
		}
	case models.EventDeleteMessage:
		var req deleteRequest
		if err = decodeData(frame.Data, &req); err == nil {
			ref = req.Ref
			if req.MessageID <= 0 {
				err = apperr.InvalidInput("message_id is required")
			} else {
				err = g.DeleteMessage(ctx, c, req.MessageID)
			}
		}
	default:
		err = apperr.InvalidInput("unknown event " + frame.Event)
	}

	if err != nil {
		span.RecordError(err)
		g.sendError(c, err, ref)
	}
}

func (g *Gateway) sendError(c *Client, err error, ref string) {
	if apperr.CodeOf(err) == apperr.CodeUnknown || apperr.CodeOf(err) == apperr.CodeUnavailable {
		g.logger.Error("ws operation failed", "conn_id", c.ID(), "user_id", c.UserID(), "error", err)
	}
	g.router.Send(c, models.EventError, models.ErrorPayload{
		Code:    apperr.EventCode(err),
		Message: apperr.Message(err),
		Ref:     ref,
	})
}

// decodeData parses the data object of a frame. A group_id, when present,
// must be positive.
func decodeData(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return apperr.InvalidInput("missing data")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.InvalidInput("malformed data")
	}
	switch req := dst.(type) {
	case *roomRequest:
		return requireGroup(req.GroupID)
	case *typingRequest:
		return requireGroup(req.GroupID)
	case *sendRequest:
		return requireGroup(req.GroupID)
	}
	return nil
}

func requireGroup(groupID int) error {
	if groupID <= 0 {
		return apperr.InvalidInput("group_id is required")
	}
	return nil
}
