// Package store defines the remote store contract for conversations,
// messages and push subscriptions, with supabase, SQL (gorm) and file
// backends.
package store

import (
	"context"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// Chat is a row of the chats table.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a row of the messages table.
type Message struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chat_id"`
	Content   string       `json:"content"`
	Role      eclesia.Role `json:"role"`
	Timestamp time.Time    `json:"timestamp"`
}

// PushKeys are the browser-provided encryption keys of a subscription.
type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushSubscription is a row of the push_subscriptions table.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	Keys      PushKeys  `json:"keys"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatStore persists conversations and their messages, keyed by owner.
type ChatStore interface {
	// ListChats returns the owner's chats, newest first.
	ListChats(ctx context.Context, userID string) ([]Chat, error)
	CreateChat(ctx context.Context, chat Chat) error
	RenameChat(ctx context.Context, id, name string) error
	DeleteChat(ctx context.Context, id string) error

	// ListMessages returns a chat's messages, oldest first.
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
	InsertMessage(ctx context.Context, msg Message) error
	DeleteMessages(ctx context.Context, chatID string) error
}

// SubscriptionStore persists Web Push subscriptions.
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context) ([]PushSubscription, error)
	// SavePushSubscription inserts or replaces the subscription with the
	// same endpoint.
	SavePushSubscription(ctx context.Context, sub PushSubscription) error
}

// Store is the full remote store.
type Store interface {
	ChatStore
	SubscriptionStore
}

// ToMessage converts a row into a message, rejecting unknown roles.
func (m Message) ToMessage() (eclesia.Message, error) {
	role, err := eclesia.ParseRole(string(m.Role))
	if err != nil {
		return eclesia.Message{}, errors.Wrapf(err, "message %s", m.ID)
	}
	return eclesia.Message{
		ID:        m.ID,
		Content:   m.Content,
		Role:      role,
		Timestamp: m.Timestamp,
	}, nil
}

// FromMessage converts a message into a row of the given chat.
func FromMessage(chatID string, m eclesia.Message) Message {
	return Message{
		ID:        m.ID,
		ChatID:    chatID,
		Content:   m.Content,
		Role:      m.Role,
		Timestamp: m.Timestamp,
	}
}
