package models

import "time"

// Presence is the online state of a user.
type Presence struct {
	UserID   int       `json:"user_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
