package models

import (
	"fmt"
	"time"
)

// Role is a member's rank inside a group: owner > admin > member.
type Role string

const (
	RoleNone   Role = ""
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin || r == RoleOwner
}

func (r Role) IsAdmin() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (r Role) CanManageMessages() bool {
	return r.IsAdmin()
}

func (r Role) CanManageMembers() bool {
	return r.IsAdmin()
}

// Group represents a chat group.
type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	OwnerID     int       `db:"owner_id" json:"owner_id"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	InviteCode  string    `db:"invite_code" json:"invite_code,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Member is a membership row joined with the member's username.
type Member struct {
	GroupID  int       `db:"group_id" json:"group_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	Username string    `db:"username" json:"username"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// RoomID derives the broadcast room of a group.
func RoomID(groupID int) string {
	return fmt.Sprintf("group_%d", groupID)
}

// ImageCategory is the file-store category holding a group's attachments.
func ImageCategory(groupID int) string {
	return fmt.Sprintf("group_%d_images", groupID)
}
