package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// chatFile is the on-disk form of one chat: the chat row plus its messages.
type chatFile struct {
	Chat     Chat      `json:"chat"`
	Messages []Message `json:"messages"`
}

// File stores each chat as a JSON file under dir/chats and all push
// subscriptions in dir/push_subscriptions.json. It is meant for offline use
// and tests; it keeps no cache, so every read goes to disk.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile returns a file store rooted at dir.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) chatsDir() string {
	return filepath.Join(f.dir, "chats")
}

func (f *File) chatPath(id string) string {
	return filepath.Join(f.chatsDir(), id+".json")
}

func (f *File) readChat(id string) (*chatFile, error) {
	data, err := os.ReadFile(f.chatPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "chat %s", id)
		}
		return nil, fmt.Errorf("failed to read chat file: %w", err)
	}

	var cf chatFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse chat file %s: %w", id, err)
	}
	return &cf, nil
}

func (f *File) writeChat(cf *chatFile) error {
	if err := os.MkdirAll(f.chatsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create chat directory: %w", err)
	}

	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize chat: %w", err)
	}

	if err := os.WriteFile(f.chatPath(cf.Chat.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write chat file: %w", err)
	}
	return nil
}

func (f *File) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := os.ReadDir(f.chatsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read chat directory: %w", err)
	}

	var chats []Chat
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		cf, err := f.readChat(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip corrupted chat files
			continue
		}
		if cf.Chat.UserID == userID {
			chats = append(chats, cf.Chat)
		}
	}

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

func (f *File) CreateChat(ctx context.Context, chat Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.chatPath(chat.ID)); err == nil {
		return errors.Errorf("chat %s already exists", chat.ID)
	}
	return f.writeChat(&chatFile{Chat: chat, Messages: []Message{}})
}

func (f *File) RenameChat(ctx context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.readChat(id)
	if err != nil {
		return err
	}
	cf.Chat.Name = name
	return f.writeChat(cf)
}

func (f *File) DeleteChat(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.chatPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete chat file: %w", err)
	}
	return nil
}

func (f *File) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.readChat(chatID)
	if err != nil {
		return nil, err
	}
	msgs := append([]Message(nil), cf.Messages...)
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Role > msgs[j].Role
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (f *File) InsertMessage(ctx context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.readChat(msg.ChatID)
	if err != nil {
		return err
	}
	cf.Messages = append(cf.Messages, msg)
	return f.writeChat(cf)
}

func (f *File) DeleteMessages(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, err := f.readChat(chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	cf.Messages = []Message{}
	return f.writeChat(cf)
}

func (f *File) subscriptionsPath() string {
	return filepath.Join(f.dir, "push_subscriptions.json")
}

func (f *File) ListPushSubscriptions(ctx context.Context) ([]PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readSubscriptions()
}

func (f *File) readSubscriptions() ([]PushSubscription, error) {
	data, err := os.ReadFile(f.subscriptionsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read subscriptions file: %w", err)
	}

	var subs []PushSubscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return nil, fmt.Errorf("failed to parse subscriptions file: %w", err)
	}
	return subs, nil
}

func (f *File) SavePushSubscription(ctx context.Context, sub PushSubscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	subs, err := f.readSubscriptions()
	if err != nil {
		return err
	}

	replaced := false
	for i := range subs {
		if subs[i].Endpoint == sub.Endpoint {
			sub.CreatedAt = subs[i].CreatedAt
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subs = append(subs, sub)
	}

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize subscriptions: %w", err)
	}
	if err := os.WriteFile(f.subscriptionsPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write subscriptions file: %w", err)
	}
	return nil
}
