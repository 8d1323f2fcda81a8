package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"groupchat-service/internal/models"
)

const redisKeyPrefix = "chat:presence:"

// RedisMirror publishes presence to Redis so other nodes and services can read it.
type RedisMirror struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisMirror(client redis.Cmdable, ttl time.Duration) *RedisMirror {
	return &RedisMirror{client: client, ttl: ttl}
}

func (m *RedisMirror) UpdatePresence(ctx context.Context, p models.Presence) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, presenceKey(p.UserID), body, m.ttl).Err()
}

// Load reads a mirrored presence entry; ok is false when no entry exists.
func (m *RedisMirror) Load(ctx context.Context, userID int) (models.Presence, bool, error) {
	body, err := m.client.Get(ctx, presenceKey(userID)).Bytes()
	if err == redis.Nil {
		return models.Presence{UserID: userID}, false, nil
	}
	if err != nil {
		return models.Presence{}, false, err
	}
	var p models.Presence
	if err := json.Unmarshal(body, &p); err != nil {
		return models.Presence{}, false, err
	}
	return p, true, nil
}

func presenceKey(userID int) string {
	return fmt.Sprintf("%s%d", redisKeyPrefix, userID)
}
