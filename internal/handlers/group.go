package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"groupchat-service/internal/apperr"
	"groupchat-service/internal/filestore"
	"groupchat-service/internal/middleware"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
)

// Rooms is the part of the realtime router the group endpoints drive.
type Rooms interface {
	Broadcast(room, event string, data interface{}, exclude string) int
	JoinUser(userID int, room string) int
	EvictUser(userID int, room string) int
	CloseRoom(room string) int
}

// GroupHandler manages group-related endpoints.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	files     filestore.Store
	rooms     Rooms
	audit     *telemetry.AuditEmitter
	logger    *slog.Logger
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, files filestore.Store, rooms Rooms, audit *telemetry.AuditEmitter, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{
		groupRepo: groupRepo,
		files:     files,
		rooms:     rooms,
		audit:     audit,
		logger:    logger,
	}
}

// Register mounts the group routes on rg.
func (h *GroupHandler) Register(rg gin.IRoutes) {
	rg.POST("/groups", h.CreateGroup)
	rg.GET("/groups", h.ListGroups)
	rg.POST("/groups/join/:invite_code", h.JoinByInvite)
	rg.GET("/groups/:group_id", h.GetGroup)
	rg.PATCH("/groups/:group_id", h.UpdateGroup)
	rg.DELETE("/groups/:group_id", h.DeleteGroup)
	rg.POST("/groups/:group_id/leave", h.LeaveGroup)
	rg.POST("/groups/:group_id/invite", h.RegenerateInvite)
	rg.GET("/groups/:group_id/members", h.ListMembers)
	rg.PUT("/groups/:group_id/members/:user_id/role", h.SetMemberRole)
	rg.DELETE("/groups/:group_id/members/:user_id", h.RemoveMember)
}

// CreateGroup handles POST /groups. The caller becomes the owner.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		IsPrivate   bool   `json:"is_private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, name, strings.TrimSpace(req.Description), req.IsPrivate, newInviteCode())
	if err != nil {
		h.logger.Error("create group failed", "user_id", userID, "error", err)
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.groupAction(c, "created", group.ID)
	c.JSON(http.StatusCreated, gin.H{"group": group})
}

// ListGroups returns the caller's groups and the public groups.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetInt(middleware.UserIDKey)
	mine, err := h.groupRepo.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	public, err := h.groupRepo.ListPublicGroups(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	for i := range public {
		public[i].InviteCode = ""
	}
	c.JSON(http.StatusOK, gin.H{"groups": mine, "public_groups": public})
}

// GetGroup returns a group. Viewing a public group joins the caller as a member.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	identity := middleware.Identity(c)
	ctx := c.Request.Context()

	group, err := h.groupRepo.GetGroup(ctx, groupID)
	if err != nil {
		respondError(c, groupError(err))
		return
	}
	role, err := h.groupRepo.Role(ctx, groupID, identity.UserID)
	if err != nil {
		respondError(c, apperr.Transient("membership check failed", err))
		return
	}

	if role == models.RoleNone {
		if group.IsPrivate {
			c.JSON(http.StatusForbidden, gin.H{"error": "this group is private"})
			return
		}
		if _, err := h.groupRepo.AddMember(ctx, groupID, identity.UserID, models.RoleMember); err != nil {
			respondError(c, apperr.Transient("failed to join group", err))
			return
		}
		role = models.RoleMember
		h.attach(groupID, identity.UserID, identity.Username)
	}

	if role != models.RoleOwner {
		group.InviteCode = ""
	}
	members, err := h.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		respondError(c, apperr.Transient("failed to load members", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "role": role, "members": members})
}

// UpdateGroup handles PATCH /groups/:group_id (owner only).
func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPrivate   *bool   `json:"is_private"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.requireOwner(c, groupID)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Name != nil {
		group.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		group.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsPrivate != nil {
		group.IsPrivate = *req.IsPrivate
	}
	if group.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	updated, err := h.groupRepo.UpdateGroup(c.Request.Context(), groupID, group.Name, group.Description, group.IsPrivate)
	if err != nil {
		respondError(c, groupError(err))
		return
	}
	h.groupAction(c, "updated", groupID)
	c.JSON(http.StatusOK, gin.H{"group": updated})
}

// DeleteGroup removes the group with its messages and memberships and closes its room.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.requireOwner(c, groupID); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	images, err := h.groupRepo.DeleteGroup(ctx, groupID)
	if err != nil {
		respondError(c, groupError(err))
		return
	}
	for _, ref := range images {
		if _, err := h.files.Delete(ctx, ref, models.ImageCategory(groupID)); err != nil {
			h.logger.Warn("image delete failed", "group_id", groupID, "image", ref, "error", err)
		}
	}
	h.rooms.CloseRoom(models.RoomID(groupID))

	h.groupAction(c, "deleted", groupID)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// JoinByInvite handles POST /groups/join/:invite_code.
func (h *GroupHandler) JoinByInvite(c *gin.Context) {
	identity := middleware.Identity(c)
	ctx := c.Request.Context()

	group, err := h.groupRepo.GetGroupByInvite(ctx, c.Param("invite_code"))
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid invite code"})
			return
		}
		respondError(c, groupError(err))
		return
	}

	added, err := h.groupRepo.AddMember(ctx, group.ID, identity.UserID, models.RoleMember)
	if err != nil {
		respondError(c, apperr.Transient("failed to join group", err))
		return
	}
	if added {
		h.attach(group.ID, identity.UserID, identity.Username)
	}

	group.InviteCode = ""
	c.JSON(http.StatusOK, gin.H{"group": group, "already_member": !added})
}

// LeaveGroup handles POST /groups/:group_id/leave. Owners cannot leave.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	identity := middleware.Identity(c)

	role, err := h.roleOf(c, groupID, identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if role == models.RoleOwner {
		respondError(c, apperr.Forbidden("the owner cannot leave the group"))
		return
	}
	if err := h.groupRepo.RemoveMember(c.Request.Context(), groupID, identity.UserID); err != nil {
		respondError(c, memberError(err))
		return
	}

	h.detach(groupID, identity.UserID, identity.Username)
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

// RegenerateInvite replaces the invite code (owner only).
func (h *GroupHandler) RegenerateInvite(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.requireOwner(c, groupID); err != nil {
		respondError(c, err)
		return
	}

	code := newInviteCode()
	if err := h.groupRepo.SetInviteCode(c.Request.Context(), groupID, code); err != nil {
		respondError(c, groupError(err))
		return
	}
	h.groupAction(c, "invite_regenerated", groupID)
	c.JSON(http.StatusOK, gin.H{"invite_code": code})
}

// ListMembers returns the members of a group the caller belongs to.
func (h *GroupHandler) ListMembers(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.requireRole(c, groupID, models.RoleMember); err != nil {
		respondError(c, err)
		return
	}

	members, err := h.groupRepo.ListMembers(c.Request.Context(), groupID)
	if err != nil {
		respondError(c, apperr.Transient("failed to load members", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// SetMemberRole handles PUT /groups/:group_id/members/:user_id/role (owner only).
func (h *GroupHandler) SetMemberRole(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	targetID, err := idParam(c, "user_id")
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Role models.Role `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || (req.Role != models.RoleAdmin && req.Role != models.RoleMember) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be admin or member"})
		return
	}

	group, err := h.requireOwner(c, groupID)
	if err != nil {
		respondError(c, err)
		return
	}
	if targetID == group.OwnerID {
		respondError(c, memberError(repositories.ErrOwnerProtected))
		return
	}
	if err := h.groupRepo.SetRole(c.Request.Context(), groupID, targetID, req.Role); err != nil {
		respondError(c, memberError(err))
		return
	}

	h.groupAction(c, "role_changed", groupID)
	c.JSON(http.StatusOK, gin.H{"user_id": targetID, "role": req.Role})
}

// RemoveMember handles DELETE /groups/:group_id/members/:user_id (admin or owner).
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID, err := idParam(c, "group_id")
	if err != nil {
		respondError(c, err)
		return
	}
	targetID, err := idParam(c, "user_id")
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.requireRole(c, groupID, models.RoleAdmin); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	members, err := h.groupRepo.ListMembers(ctx, groupID)
	if err != nil {
		respondError(c, apperr.Transient("failed to load members", err))
		return
	}
	var target *models.Member
	for i := range members {
		if members[i].UserID == targetID {
			target = &members[i]
			break
		}
	}
	if target == nil {
		respondError(c, memberError(repositories.ErrNotMember))
		return
	}
	if target.Role == models.RoleOwner {
		respondError(c, memberError(repositories.ErrOwnerProtected))
		return
	}

	if err := h.groupRepo.RemoveMember(ctx, groupID, targetID); err != nil {
		respondError(c, memberError(err))
		return
	}

	h.detach(groupID, targetID, target.Username)
	h.groupAction(c, "member_removed", groupID)
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// attach subscribes the open connections of a new member and tells the room.
func (h *GroupHandler) attach(groupID, userID int, username string) {
	room := models.RoomID(groupID)
	h.rooms.JoinUser(userID, room)
	h.rooms.Broadcast(room, models.EventGroupJoined, models.RoomPayload{GroupID: groupID, Username: username}, "")
}

// detach stops realtime delivery to a former member and tells the room.
func (h *GroupHandler) detach(groupID, userID int, username string) {
	room := models.RoomID(groupID)
	h.rooms.EvictUser(userID, room)
	h.rooms.Broadcast(room, models.EventGroupLeft, models.RoomPayload{GroupID: groupID, Username: username}, "")
}

func (h *GroupHandler) roleOf(c *gin.Context, groupID, userID int) (models.Role, error) {
	ctx := c.Request.Context()
	role, err := h.groupRepo.Role(ctx, groupID, userID)
	if err != nil {
		return models.RoleNone, apperr.Transient("membership check failed", err)
	}
	if role != models.RoleNone {
		return role, nil
	}
	if _, err := h.groupRepo.GetGroup(ctx, groupID); err != nil {
		return models.RoleNone, groupError(err)
	}
	return models.RoleNone, apperr.Forbidden("not a member of this group")
}

// requireRole checks that the caller holds at least min in the group.
func (h *GroupHandler) requireRole(c *gin.Context, groupID int, min models.Role) (models.Role, error) {
	role, err := h.roleOf(c, groupID, c.GetInt(middleware.UserIDKey))
	if err != nil {
		return models.RoleNone, err
	}
	switch min {
	case models.RoleOwner:
		if role != models.RoleOwner {
			return role, apperr.Forbidden("only the owner can do this")
		}
	case models.RoleAdmin:
		if !role.IsAdmin() {
			return role, apperr.Forbidden("admin rights required")
		}
	}
	return role, nil
}

func (h *GroupHandler) requireOwner(c *gin.Context, groupID int) (models.Group, error) {
	if _, err := h.requireRole(c, groupID, models.RoleOwner); err != nil {
		return models.Group{}, err
	}
	group, err := h.groupRepo.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		return models.Group{}, groupError(err)
	}
	return group, nil
}

func (h *GroupHandler) groupAction(c *gin.Context, action string, groupID int) {
	if h.audit == nil {
		return
	}
	h.audit.GroupAction(c.Request.Context(), action, groupID, requestIDFromContext(c), userIDFromContext(c))
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func groupError(err error) error {
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return apperr.NotFound("group not found")
	}
	return apperr.Transient("group store unavailable", err)
}

func memberError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrOwnerProtected):
		return apperr.Forbidden("the owner's membership cannot be changed")
	case errors.Is(err, repositories.ErrNotMember):
		return apperr.NotFound("member not found")
	default:
		return apperr.Transient("group store unavailable", err)
	}
}

func newInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
