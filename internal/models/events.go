package models

// Server-to-client events.
const (
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventGroupJoined        = "group_joined"
	EventGroupLeft          = "group_left"
	EventUserTyping         = "user_typing"
	EventNewGroupMessage    = "new_group_message"
	EventDeleteGroupMessage = "delete_group_message"
	EventCleanupComplete    = "cleanup_complete"
	EventError              = "error"
)

// Client-to-server events.
const (
	EventJoinGroup     = "join_group"
	EventLeaveGroup    = "leave_group"
	EventTypingGroup   = "typing_group"
	EventSendMessage   = "send_message"
	EventDeleteMessage = "delete_message"
)

// Event is the frame exchanged over websocket connections.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data,omitempty"`
}

type PresencePayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

type RoomPayload struct {
	GroupID  int    `json:"group_id"`
	Username string `json:"username"`
}

type TypingPayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type MessageDeletedPayload struct {
	MessageID int `json:"message_id"`
	GroupID   int `json:"group_id"`
}

type CleanupPayload struct {
	DeletedCount int    `json:"deleted_count"`
	Timestamp    string `json:"timestamp"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}
