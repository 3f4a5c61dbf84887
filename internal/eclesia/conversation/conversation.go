// Package conversation holds a user's conversations: each conversation's
// ordered message store, and the registry that creates, renames, deletes and
// groups them while mirroring every change to the remote store.
package conversation

import (
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrNoOpenMessage is returned when a fragment arrives but the last
	// message is not an open assistant message.
	ErrNoOpenMessage = errors.New("last message is not an open assistant message")

	// ErrMessageOpen is returned when appending while an assistant message is
	// still streaming.
	ErrMessageOpen = errors.New("an assistant message is still open")
)

// Conversation is a named, ordered collection of messages.
type Conversation struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"created_at"`
	Messages  []eclesia.Message `json:"messages"`
}

// New creates an empty conversation with the default name.
func New(now time.Time) *Conversation {
	return &Conversation{
		ID:        uuid.New().String(),
		Name:      eclesia.DefaultConversationName,
		CreatedAt: now,
		Messages:  []eclesia.Message{},
	}
}

// Append adds a message to the end. Nothing may follow an open message.
func (c *Conversation) Append(m eclesia.Message) error {
	if n := len(c.Messages); n > 0 && c.Messages[n-1].Open {
		return ErrMessageOpen
	}
	c.Messages = append(c.Messages, m)
	return nil
}

// AppendToLast concatenates a fragment to the open assistant message.
func (c *Conversation) AppendToLast(fragment string) error {
	last, err := c.openLast()
	if err != nil {
		return err
	}
	last.Content += fragment
	return nil
}

// ReplaceLast overwrites the content of the open assistant message.
func (c *Conversation) ReplaceLast(content string) error {
	last, err := c.openLast()
	if err != nil {
		return err
	}
	last.Content = content
	return nil
}

// Finalize closes the open assistant message and returns it.
func (c *Conversation) Finalize() (eclesia.Message, error) {
	last, err := c.openLast()
	if err != nil {
		return eclesia.Message{}, err
	}
	last.Open = false
	return *last, nil
}

func (c *Conversation) openLast() (*eclesia.Message, error) {
	n := len(c.Messages)
	if n == 0 {
		return nil, ErrNoOpenMessage
	}
	last := &c.Messages[n-1]
	if last.Role != eclesia.RoleAssistant || !last.Open {
		return nil, ErrNoOpenMessage
	}
	return last, nil
}

// Streaming reports whether an assistant message is still open.
func (c *Conversation) Streaming() bool {
	n := len(c.Messages)
	return n > 0 && c.Messages[n-1].Open
}

// GetShortID returns the shortened conversation ID (first 8 characters)
func (c *Conversation) GetShortID() string {
	if len(c.ID) >= 8 {
		return c.ID[:8]
	}
	return c.ID
}

// GetDisplayName returns the name, or the default label if it is blank.
func (c *Conversation) GetDisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return eclesia.DefaultConversationName
}

// MessageCount returns the number of messages in the conversation
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// Clone returns a deep copy.
func (c *Conversation) Clone() Conversation {
	cp := *c
	cp.Messages = append([]eclesia.Message(nil), c.Messages...)
	return cp
}
