package eclesia

import (
	"time"

	"github.com/google/uuid"
)

// Role tags the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single turn in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Open is true while an assistant message is still receiving fragments.
	Open bool `json:"-"`
}

// NewUserMessage creates a user message stamped with now.
func NewUserMessage(content string, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Content:   content,
		Role:      RoleUser,
		Timestamp: now,
	}
}

// NewOpenAssistantMessage creates an empty assistant message ready to
// receive streamed fragments.
func NewOpenAssistantMessage(now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Timestamp: now,
		Open:      true,
	}
}
