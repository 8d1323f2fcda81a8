package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"groupchat-service/internal/apperr"
	"groupchat-service/internal/auth"
	"groupchat-service/internal/filestore"
	"groupchat-service/internal/models"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
)

// Directory resolves groups and member roles.
type Directory interface {
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	Role(ctx context.Context, groupID int, userID int) (models.Role, error)
}

// Broadcaster fans an event out to a room.
type Broadcaster interface {
	Broadcast(room, event string, data interface{}, exclude string) int
}

// Upload is an image attached to a message.
type Upload struct {
	Reader   io.Reader
	Filename string
}

type Options struct {
	PageSize    int
	MaxPageSize int
}

// Service implements the message operations shared by the socket gateway
// and the HTTP API. Validation and authorization always run before any
// persistence or broadcast.
type Service struct {
	groups      Directory
	store       repositories.MessageRepository
	files       filestore.Store
	broadcaster Broadcaster
	logger      *slog.Logger
	tracer      trace.Tracer
	opts        Options
}

func NewService(groups Directory, store repositories.MessageRepository, files filestore.Store, broadcaster Broadcaster, logger *slog.Logger, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPageSize < opts.PageSize {
		opts.MaxPageSize = opts.PageSize
	}
	return &Service{
		groups:      groups,
		store:       store,
		files:       files,
		broadcaster: broadcaster,
		logger:      logger,
		tracer:      otel.Tracer("groupchat-service/chat"),
		opts:        opts,
	}
}

// SendMessage stores a message from identity in groupID and emits
// new_group_message to the group's room.
func (s *Service) SendMessage(ctx context.Context, identity auth.Identity, groupID int, content string, image *Upload) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.Int("group.id", groupID),
		attribute.Int("user.id", identity.UserID),
	))
	defer span.End()

	msg, err := s.send(ctx, identity, groupID, content, image)
	if err != nil {
		span.RecordError(err)
		observability.IncMessageOp("send", string(apperr.CodeOf(err)))
		return models.Message{}, err
	}
	observability.IncMessageOp("send", "ok")
	return msg, nil
}

func (s *Service) send(ctx context.Context, identity auth.Identity, groupID int, content string, image *Upload) (models.Message, error) {
	if _, err := s.requireMember(ctx, groupID, identity.UserID); err != nil {
		return models.Message{}, err
	}

	content = strings.TrimSpace(content)
	if image != nil && image.Reader == nil {
		image = nil
	}
	if content == "" && image == nil {
		return models.Message{}, apperr.InvalidInput("message content or image is required")
	}

	var imageRef string
	if image != nil {
		ref, err := s.files.Save(ctx, image.Reader, image.Filename, models.ImageCategory(groupID))
		if errors.Is(err, filestore.ErrDisabled) {
			return models.Message{}, apperr.InvalidInput("image uploads are disabled")
		}
		if err != nil {
			return models.Message{}, apperr.Transient("failed to store image", err)
		}
		imageRef = ref
	}

	msg, err := s.store.Insert(ctx, models.Message{
		GroupID:  groupID,
		UserID:   identity.UserID,
		Username: identity.Username,
		Content:  content,
		ImageURL: imageRef,
	})
	if err != nil {
		if imageRef != "" {
			s.deleteImage(ctx, imageRef, groupID)
		}
		return models.Message{}, apperr.Transient("failed to store message", err)
	}

	s.broadcaster.Broadcast(models.RoomID(groupID), models.EventNewGroupMessage, models.NewMessageView(msg), "")
	return msg, nil
}

// DeleteMessage removes a message when identity wrote it or may manage the
// group's messages, then emits delete_group_message.
func (s *Service) DeleteMessage(ctx context.Context, identity auth.Identity, messageID int) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "chat.delete", trace.WithAttributes(
		attribute.Int("message.id", messageID),
		attribute.Int("user.id", identity.UserID),
	))
	defer span.End()

	msg, err := s.delete(ctx, identity, messageID)
	if err != nil {
		span.RecordError(err)
		observability.IncMessageOp("delete", string(apperr.CodeOf(err)))
		return models.Message{}, err
	}
	observability.IncMessageOp("delete", "ok")
	return msg, nil
}

func (s *Service) delete(ctx context.Context, identity auth.Identity, messageID int) (models.Message, error) {
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, storeError(err)
	}

	if msg.UserID != identity.UserID {
		role, err := s.groups.Role(ctx, msg.GroupID, identity.UserID)
		if err != nil {
			return models.Message{}, apperr.Transient("membership check failed", err)
		}
		if !role.CanManageMessages() {
			return models.Message{}, apperr.Forbidden("not allowed to delete this message")
		}
	}

	removed, err := s.store.Delete(ctx, messageID)
	if err != nil {
		return models.Message{}, storeError(err)
	}
	if removed.ImageURL != "" {
		s.deleteImage(ctx, removed.ImageURL, removed.GroupID)
	}

	s.broadcaster.Broadcast(models.RoomID(removed.GroupID), models.EventDeleteGroupMessage, models.MessageDeletedPayload{
		MessageID: removed.ID,
		GroupID:   removed.GroupID,
	}, "")
	return removed, nil
}

// ListMessages returns live messages of groupID newest first. limit is
// clamped to the configured page sizes; a positive beforeID pages back.
func (s *Service) ListMessages(ctx context.Context, identity auth.Identity, groupID int, limit int, beforeID int) ([]models.Message, error) {
	if beforeID < 0 {
		return nil, apperr.InvalidInput("before must be a message id")
	}
	if _, err := s.requireMember(ctx, groupID, identity.UserID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListByGroup(ctx, groupID, s.pageSize(limit), beforeID)
	if err != nil {
		return nil, apperr.Transient("failed to load messages", err)
	}
	return msgs, nil
}

// GetMessage returns one live message visible to identity.
func (s *Service) GetMessage(ctx context.Context, identity auth.Identity, messageID int) (models.Message, error) {
	msg, err := s.store.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, storeError(err)
	}
	if _, err := s.requireMember(ctx, msg.GroupID, identity.UserID); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *Service) pageSize(limit int) int {
	if limit <= 0 {
		return s.opts.PageSize
	}
	if limit > s.opts.MaxPageSize {
		return s.opts.MaxPageSize
	}
	return limit
}

func (s *Service) requireMember(ctx context.Context, groupID int, userID int) (models.Role, error) {
	role, err := s.groups.Role(ctx, groupID, userID)
	if err != nil {
		return models.RoleNone, apperr.Transient("membership check failed", err)
	}
	if role != models.RoleNone {
		return role, nil
	}

	if _, err := s.groups.GetGroup(ctx, groupID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			return models.RoleNone, apperr.NotFound("group not found")
		}
		return models.RoleNone, apperr.Transient("failed to load group", err)
	}
	return models.RoleNone, apperr.Forbidden("not a member of this group")
}

func (s *Service) deleteImage(ctx context.Context, ref string, groupID int) {
	if _, err := s.files.Delete(ctx, ref, models.ImageCategory(groupID)); err != nil {
		s.logger.Warn("image delete failed", "group_id", groupID, "image", ref, "error", err)
	}
}

func storeError(err error) error {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return apperr.NotFound("message not found")
	}
	return apperr.Transient("message store unavailable", err)
}
