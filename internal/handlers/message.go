package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/apperr"
	"groupchat-service/internal/auth"
	"groupchat-service/internal/chat"
	"groupchat-service/internal/middleware"
	"groupchat-service/internal/models"
)

// MessageService is the message API shared with the socket gateway.
type MessageService interface {
	SendMessage(ctx context.Context, identity auth.Identity, groupID int, content string, image *chat.Upload) (models.Message, error)
	DeleteMessage(ctx context.Context, identity auth.Identity, messageID int) (models.Message, error)
	ListMessages(ctx context.Context, identity auth.Identity, groupID int, limit int, beforeID int) ([]models.Message, error)
	GetMessage(ctx context.Context, identity auth.Identity, messageID int) (models.Message, error)
}

// MessageHandler serves the ephemeral message endpoints.
type MessageHandler struct {
	messages     MessageService
	maxImageSize int64
}

func NewMessageHandler(messages MessageService, maxImageSize int64) *MessageHandler {
	return &MessageHandler{messages: messages, maxImageSize: maxImageSize}
}

func (h *MessageHandler) Register(rg gin.IRoutes) {
	rg.POST("/groups/:group_id/messages", h.PostMessage)
	rg.GET("/groups/:group_id/messages", h.ListMessages)
	rg.GET("/messages/:message_id", h.GetMessage)
	rg.DELETE("/messages/:message_id", h.DeleteMessage)
}

// PostMessage accepts multipart (content, image) or JSON ({"content": ...}).
func (h *MessageHandler) PostMessage(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		content string
		upload  *chat.Upload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		content = c.PostForm("content")
		if header, err := c.FormFile("image"); err == nil && header.Filename != "" {
			if h.maxImageSize > 0 && header.Size > h.maxImageSize {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
				return
			}
			file, err := header.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable image"})
				return
			}
			defer file.Close()
			upload = &chat.Upload{Reader: file, Filename: header.Filename}
		}
	} else {
		var req struct {
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		content = req.Content
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), middleware.Identity(c), groupID, content, upload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": models.NewMessageView(msg)})
}

// ListMessages handles GET /groups/:group_id/messages?limit=&before=.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	before, err := queryInt(c, "before")
	if err != nil {
		respondError(c, err)
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), middleware.Identity(c), groupID, limit, before)
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, models.NewMessageView(m))
	}
	c.JSON(http.StatusOK, gin.H{"messages": views})
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	messageID, err := idParam(c, "message_id")
	if err != nil {
		respondError(c, err)
		return
	}
	msg, err := h.messages.GetMessage(c.Request.Context(), middleware.Identity(c), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": models.NewMessageView(msg)})
}

// DeleteMessage removes a message for every member of its group.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, err := idParam(c, "message_id")
	if err != nil {
		respondError(c, err)
		return
	}
	removed, err := h.messages.DeleteMessage(c.Request.Context(), middleware.Identity(c), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "message_id": removed.ID, "group_id": removed.GroupID})
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.InvalidInput("invalid " + name)
	}
	return v, nil
}
