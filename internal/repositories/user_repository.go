package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

// UserRepo writes presence into the users table owned by the user directory.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// UpdatePresence stores the online flag and last-seen time together.
func (r *UserRepo) UpdatePresence(ctx context.Context, p models.Presence) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online=$2, last_seen=$3 WHERE id=$1`, p.UserID, p.Online, p.LastSeen.UTC())
	return err
}
