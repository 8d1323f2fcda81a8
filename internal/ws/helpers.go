package ws

import (
	"encoding/json"

	"github.com/google/uuid"

	"groupchat-service/internal/models"
)

func newConnID() string {
	return uuid.NewString()
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	return json.Marshal(models.Event{Name: event, Data: data})
}
