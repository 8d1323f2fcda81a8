package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrNotMember      = errors.New("membership not found")
	ErrOwnerProtected = errors.New("owner membership cannot be changed")
)

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, ownerID int, name, description string, isPrivate bool, inviteCode string) (models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	GetGroupByInvite(ctx context.Context, inviteCode string) (models.Group, error)
	ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error)
	ListPublicGroups(ctx context.Context) ([]models.Group, error)
	UpdateGroup(ctx context.Context, groupID int, name, description string, isPrivate bool) (models.Group, error)
	DeleteGroup(ctx context.Context, groupID int) ([]string, error)
	SetInviteCode(ctx context.Context, groupID int, inviteCode string) error

	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	Role(ctx context.Context, groupID int, userID int) (models.Role, error)
	GroupsOf(ctx context.Context, userID int) ([]int, error)
	AddMember(ctx context.Context, groupID int, userID int, role models.Role) (bool, error)
	RemoveMember(ctx context.Context, groupID int, userID int) error
	SetRole(ctx context.Context, groupID int, userID int, role models.Role) error
	ListMembers(ctx context.Context, groupID int) ([]models.Member, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, name, description, owner_id, is_private, invite_code, created_at`

// CreateGroup creates a group and the owner's membership atomically.
func (r *GroupRepo) CreateGroup(ctx context.Context, ownerID int, name, description string, isPrivate bool, inviteCode string) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.GetContext(ctx, &group, `INSERT INTO groups (name, description, owner_id, is_private, invite_code)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+groupColumns, name, description, ownerID, isPrivate, inviteCode); err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)`, group.ID, ownerID, models.RoleOwner); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// GetGroupByInvite resolves an invite code.
func (r *GroupRepo) GetGroupByInvite(ctx context.Context, inviteCode string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE invite_code=$1`, inviteCode)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListGroupsForUser returns groups that include the user.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID int) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.description, g.owner_id, g.is_private, g.invite_code, g.created_at
        FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id
        WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID)
	return groups, err
}

// ListPublicGroups returns every non-private group.
func (r *GroupRepo) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := r.db.SelectContext(ctx, &groups, `SELECT `+groupColumns+` FROM groups WHERE is_private = FALSE ORDER BY created_at DESC`)
	return groups, err
}

// UpdateGroup edits the mutable group fields.
func (r *GroupRepo) UpdateGroup(ctx context.Context, groupID int, name, description string, isPrivate bool) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `UPDATE groups SET name=$2, description=$3, is_private=$4 WHERE id=$1 RETURNING `+groupColumns,
		groupID, name, description, isPrivate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// DeleteGroup removes the group with its messages and memberships and
// returns the image references of the removed messages.
func (r *GroupRepo) DeleteGroup(ctx context.Context, groupID int) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var images []string
	if err = tx.SelectContext(ctx, &images, `DELETE FROM messages WHERE group_id=$1 AND image_url IS NOT NULL RETURNING image_url`, groupID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE group_id=$1`, groupID); err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1`, groupID); err != nil {
		return nil, err
	}

	var res sql.Result
	if res, err = tx.ExecContext(ctx, `DELETE FROM groups WHERE id=$1`, groupID); err != nil {
		return nil, err
	}
	var count int64
	if count, err = res.RowsAffected(); err != nil {
		return nil, err
	}
	if count == 0 {
		err = ErrGroupNotFound
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return images, nil
}

// SetInviteCode replaces the group's invite code.
func (r *GroupRepo) SetInviteCode(ctx context.Context, groupID int, inviteCode string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE groups SET invite_code=$2 WHERE id=$1`, groupID, inviteCode)
	if err != nil {
		return err
	}
	return expectRow(res, ErrGroupNotFound)
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// Role returns the member's role or RoleNone when the user is not a member.
func (r *GroupRepo) Role(ctx context.Context, groupID int, userID int) (models.Role, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, `SELECT role FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoleNone, nil
	}
	return role, err
}

// GroupsOf lists the ids of every group the user belongs to.
func (r *GroupRepo) GroupsOf(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT group_id FROM group_members WHERE user_id=$1 ORDER BY group_id`, userID)
	return ids, err
}

// AddMember inserts a membership; it reports false when the user was already a member.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int, role models.Role) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)
        ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID, role)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RemoveMember deletes a non-owner membership.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=$1 AND user_id=$2 AND role <> 'owner'`, groupID, userID)
	if err != nil {
		return err
	}
	return expectRow(res, ErrNotMember)
}

// SetRole changes the role of a non-owner member.
func (r *GroupRepo) SetRole(ctx context.Context, groupID int, userID int, role models.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE group_members SET role=$3 WHERE group_id=$1 AND user_id=$2 AND role <> 'owner'`, groupID, userID, role)
	if err != nil {
		return err
	}
	return expectRow(res, ErrNotMember)
}

// ListMembers returns the members of a group with their usernames.
func (r *GroupRepo) ListMembers(ctx context.Context, groupID int) ([]models.Member, error) {
	var members []models.Member
	err := r.db.SelectContext(ctx, &members, `SELECT gm.group_id, gm.user_id, COALESCE(u.username, '') AS username, gm.role, gm.joined_at
        FROM group_members gm LEFT JOIN users u ON u.id = gm.user_id
        WHERE gm.group_id=$1 ORDER BY gm.joined_at ASC`, groupID)
	return members, err
}

func expectRow(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
