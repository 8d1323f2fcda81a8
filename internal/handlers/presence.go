package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/models"
)

// PresenceReader reports presence known to this node.
type PresenceReader interface {
	Get(userID int) models.Presence
}

// PresenceStore reports presence shared across nodes.
type PresenceStore interface {
	Load(ctx context.Context, userID int) (models.Presence, bool, error)
}

type PresenceHandler struct {
	local  PresenceReader
	shared PresenceStore
	logger *slog.Logger
}

// NewPresenceHandler builds the handler; shared may be nil on single-node setups.
func NewPresenceHandler(local PresenceReader, shared PresenceStore, logger *slog.Logger) *PresenceHandler {
	return &PresenceHandler{local: local, shared: shared, logger: logger}
}

// GetPresence handles GET /users/:user_id/presence.
func (h *PresenceHandler) GetPresence(c *gin.Context) {
	userID, err := idParam(c, "user_id")
	if err != nil {
		respondError(c, err)
		return
	}

	p := h.local.Get(userID)
	if !p.Online && h.shared != nil {
		remote, ok, err := h.shared.Load(c.Request.Context(), userID)
		switch {
		case err != nil:
			h.logger.Warn("shared presence lookup failed", "user_id", userID, "error", err)
		case ok && (remote.Online || remote.LastSeen.After(p.LastSeen)):
			p = remote
		}
	}

	resp := gin.H{"user_id": userID, "online": p.Online, "last_seen": nil}
	if !p.LastSeen.IsZero() {
		resp["last_seen"] = models.FormatTime(p.LastSeen)
	}
	c.JSON(http.StatusOK, resp)
}
