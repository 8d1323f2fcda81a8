package ws

import (
	"time"

	"groupchat-service/internal/observability"
)

// ConnInfo describes one websocket connection. It rides along on lifecycle
// events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	Client      observability.ClientMeta
	ConnectedAt time.Time
}

// Lifecycle builds the payload of a lifecycle event for this connection.
func (i ConnInfo) Lifecycle(event string, rooms int, reason string, now time.Time) observability.ConnLifecycle {
	var durationMs int64
	if event != observability.EventWSConnect {
		durationMs = now.Sub(i.ConnectedAt).Milliseconds()
	}
	return observability.ConnLifecycle{
		WS: observability.ConnState{
			Kind:       "group",
			Event:      event,
			ConnID:     i.ConnID,
			Rooms:      rooms,
			DurationMs: durationMs,
			Reason:     reason,
		},
		Identity: observability.ConnIdentity{
			UserID:    i.UserID,
			DeviceID:  i.Client.DeviceID,
			IP:        i.Client.IP,
			UserAgent: i.Client.UserAgent,
		},
	}
}
