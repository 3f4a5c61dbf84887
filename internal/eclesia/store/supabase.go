package store

import (
	"context"
	"net/url"
	"time"

	"github.com/devvluca/EclesIA/internal/supabase"
	"github.com/pkg/errors"
)

const (
	tableChats         = "chats"
	tableMessages      = "messages"
	tableSubscriptions = "push_subscriptions"
)

// Supabase stores rows in a hosted Supabase project. Row-level security on
// the project restricts each user to their own chats and messages.
type Supabase struct {
	client *supabase.Client
}

// NewSupabase wraps an authenticated supabase client.
func NewSupabase(client *supabase.Client) *Supabase {
	return &Supabase{client: client}
}

func (s *Supabase) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	q := url.Values{
		"select":  {"id,user_id,name,created_at"},
		"user_id": {supabase.Eq(userID)},
		"order":   {"created_at.desc"},
	}
	var chats []Chat
	if err := s.client.Select(ctx, tableChats, q, &chats); err != nil {
		return nil, errors.Wrap(err, "list chats")
	}
	return chats, nil
}

func (s *Supabase) CreateChat(ctx context.Context, chat Chat) error {
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	return errors.Wrap(s.client.Insert(ctx, tableChats, chat), "create chat")
}

func (s *Supabase) RenameChat(ctx context.Context, id, name string) error {
	filter := url.Values{"id": {supabase.Eq(id)}}
	return errors.Wrap(s.client.Update(ctx, tableChats, filter, map[string]string{"name": name}), "rename chat")
}

func (s *Supabase) DeleteChat(ctx context.Context, id string) error {
	filter := url.Values{"id": {supabase.Eq(id)}}
	return errors.Wrap(s.client.Delete(ctx, tableChats, filter), "delete chat")
}

func (s *Supabase) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	q := url.Values{
		"select":  {"id,chat_id,content,role,timestamp"},
		"chat_id": {supabase.Eq(chatID)},
		"order":   {"timestamp.asc,role.desc"},
	}
	var msgs []Message
	if err := s.client.Select(ctx, tableMessages, q, &msgs); err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return msgs, nil
}

func (s *Supabase) InsertMessage(ctx context.Context, msg Message) error {
	return errors.Wrap(s.client.Insert(ctx, tableMessages, msg), "insert message")
}

func (s *Supabase) DeleteMessages(ctx context.Context, chatID string) error {
	filter := url.Values{"chat_id": {supabase.Eq(chatID)}}
	return errors.Wrap(s.client.Delete(ctx, tableMessages, filter), "delete messages")
}

func (s *Supabase) ListPushSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	var subs []PushSubscription
	q := url.Values{"select": {"endpoint,keys,created_at"}}
	if err := s.client.Select(ctx, tableSubscriptions, q, &subs); err != nil {
		return nil, errors.Wrap(err, "list push subscriptions")
	}
	return subs, nil
}

func (s *Supabase) SavePushSubscription(ctx context.Context, sub PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	return errors.Wrap(s.client.Upsert(ctx, tableSubscriptions, "endpoint", sub), "save push subscription")
}
