package models

import "time"

// Message is an ephemeral group message. Content or ImageURL is always set.
type Message struct {
	ID        int       `db:"id" json:"id"`
	GroupID   int       `db:"group_id" json:"group_id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"user"`
	Content   string    `db:"content" json:"content"`
	ImageURL  string    `db:"image_url" json:"image_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the message is past its expiry at now.
func (m Message) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// ExpiredMessage is a row removed by an expiry sweep.
type ExpiredMessage struct {
	ID       int    `db:"id"`
	GroupID  int    `db:"group_id"`
	ImageURL string `db:"image_url"`
}

// MessageView is the wire form of a message used by the API and new_group_message.
type MessageView struct {
	ID        int     `json:"id"`
	User      string  `json:"user"`
	UserID    int     `json:"user_id"`
	Content   string  `json:"content"`
	ImageURL  *string `json:"image_url"`
	CreatedAt string  `json:"created_at"`
	ExpiresAt string  `json:"expires_at"`
	GroupID   int     `json:"group_id"`
}

func NewMessageView(m Message) MessageView {
	view := MessageView{
		ID:        m.ID,
		User:      m.Username,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: FormatTime(m.CreatedAt),
		ExpiresAt: FormatTime(m.ExpiresAt),
		GroupID:   m.GroupID,
	}
	if m.ImageURL != "" {
		url := m.ImageURL
		view.ImageURL = &url
	}
	return view
}

// FormatTime renders timestamps as RFC 3339 UTC for every payload.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
