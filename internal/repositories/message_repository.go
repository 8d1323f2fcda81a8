package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository is the ephemeral message store. Expired rows are never
// returned even before a sweep removes them.
type MessageRepository interface {
	Insert(ctx context.Context, msg models.Message) (models.Message, error)
	ListByGroup(ctx context.Context, groupID int, limit int, beforeID int) ([]models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	Delete(ctx context.Context, messageID int) (models.Message, error)
	SweepExpired(ctx context.Context, now time.Time) ([]models.ExpiredMessage, error)
}

// MessageRepo is a sqlx-backed implementation of MessageRepository.
type MessageRepo struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

// NewMessageRepo constructs a MessageRepo whose messages live for ttl.
func NewMessageRepo(db *sqlx.DB, ttl time.Duration) *MessageRepo {
	return &MessageRepo{db: db, ttl: ttl, now: time.Now}
}

const messageColumns = `id, group_id, user_id, COALESCE(content, '') AS content, COALESCE(image_url, '') AS image_url, created_at, expires_at`

// Insert stores msg with created_at=now and expires_at=now+ttl.
func (r *MessageRepo) Insert(ctx context.Context, msg models.Message) (models.Message, error) {
	createdAt := r.now().UTC()
	expiresAt := createdAt.Add(r.ttl)

	var stored models.Message
	err := r.db.GetContext(ctx, &stored, `INSERT INTO messages (group_id, user_id, content, image_url, created_at, expires_at)
        VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6) RETURNING `+messageColumns,
		msg.GroupID, msg.UserID, msg.Content, msg.ImageURL, createdAt, expiresAt)
	if err != nil {
		return models.Message{}, err
	}
	stored.Username = msg.Username
	return stored, nil
}

// ListByGroup returns live messages newest first. A positive beforeID keeps
// only ids below it.
func (r *MessageRepo) ListByGroup(ctx context.Context, groupID int, limit int, beforeID int) ([]models.Message, error) {
	query := `SELECT m.id, m.group_id, m.user_id, COALESCE(u.username, '') AS username,
        COALESCE(m.content, '') AS content, COALESCE(m.image_url, '') AS image_url, m.created_at, m.expires_at
        FROM messages m LEFT JOIN users u ON u.id = m.user_id
        WHERE m.group_id=$1 AND m.expires_at > $2`
	args := []interface{}{groupID, r.now().UTC()}
	if beforeID > 0 {
		args = append(args, beforeID)
		query += fmt.Sprintf(" AND m.id < $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.id DESC LIMIT $%d", len(args))

	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// Get fetches a single live message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT m.id, m.group_id, m.user_id, COALESCE(u.username, '') AS username,
        COALESCE(m.content, '') AS content, COALESCE(m.image_url, '') AS image_url, m.created_at, m.expires_at
        FROM messages m LEFT JOIN users u ON u.id = m.user_id
        WHERE m.id=$1 AND m.expires_at > $2`, messageID, r.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Delete removes the row in a single statement. Only one of Delete and
// SweepExpired can ever report a given row.
func (r *MessageRepo) Delete(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `DELETE FROM messages WHERE id=$1 RETURNING `+messageColumns, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SweepExpired removes every message with expires_at <= now and returns the removed rows.
func (r *MessageRepo) SweepExpired(ctx context.Context, now time.Time) ([]models.ExpiredMessage, error) {
	removed := []models.ExpiredMessage{}
	err := r.db.SelectContext(ctx, &removed, `DELETE FROM messages WHERE expires_at <= $1
        RETURNING id, group_id, COALESCE(image_url, '') AS image_url`, now.UTC())
	return removed, err
}
