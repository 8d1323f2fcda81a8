package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/models"
	"groupchat-service/internal/telemetry"
)

// RealtimeStats reports the state of this node's realtime layer.
type RealtimeStats interface {
	ConnectionCount() int
	RoomSize(room string) int
}

// OnlineCounter reports how many users have an open session on this node.
type OnlineCounter interface {
	OnlineCount() int
}

// DebugDeps are the collaborators of the debug endpoints. Nil fields
// answer 503.
type DebugDeps struct {
	Audit    *telemetry.AuditEmitter
	Realtime RealtimeStats
	Presence OnlineCounter
}

// RegisterDebugRoutes mounts the debug endpoints when enabled.
func RegisterDebugRoutes(router gin.IRoutes, deps DebugDeps, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if deps.Audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		deps.Audit.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestIDFromContext(c)})
	})

	// GET /debug/realtime?group_id=N adds the local subscriber count of that
	// group's room.
	router.GET("/debug/realtime", func(c *gin.Context) {
		if deps.Realtime == nil || deps.Presence == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime layer not configured"})
			return
		}
		body := gin.H{
			"connections":  deps.Realtime.ConnectionCount(),
			"online_users": deps.Presence.OnlineCount(),
		}
		if c.Query("group_id") != "" {
			groupID, err := queryInt(c, "group_id")
			if err != nil || groupID <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "group_id must be a positive integer"})
				return
			}
			body["group_id"] = groupID
			body["room_subscribers"] = deps.Realtime.RoomSize(models.RoomID(groupID))
		}
		c.JSON(http.StatusOK, body)
	})
}
