package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// loadConcurrency bounds the message fetches issued by Load.
const loadConcurrency = 8

var (
	// ErrNotFound is returned for unknown conversation ids.
	ErrNotFound = errors.New("conversation not found")

	// ErrEmpty is returned when the registry has no conversation and a new
	// one could not be persisted.
	ErrEmpty = errors.New("no conversation available")
)

// AmbiguousIDError is returned when multiple conversations match a prefix
type AmbiguousIDError struct {
	Prefix  string
	Matches []Conversation
}

func (e *AmbiguousIDError) Error() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Ambiguous conversation ID %q. Multiple matches found:", e.Prefix))
	for _, match := range e.Matches {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s, %d messages)",
			match.GetShortID(),
			match.GetDisplayName(),
			match.CreatedAt.Format("2006-01-02"),
			match.MessageCount()))
	}
	lines = append(lines, "")
	lines = append(lines, "Please use a longer prefix or run 'eclesia conversations list'.")
	return strings.Join(lines, "\n")
}

// Registry manages the conversations of one signed-in owner. The remote
// store is the source of truth; the registry is a write-through view of it.
// All methods are safe for concurrent use.
type Registry struct {
	store store.ChatStore
	owner string
	now   func() time.Time

	mu     sync.RWMutex
	convs  map[string]*Conversation
	active string
}

// NewRegistry creates an empty registry for owner. Call Load to populate it.
func NewRegistry(st store.ChatStore, owner string) *Registry {
	return &Registry{
		store: st,
		owner: owner,
		now:   time.Now,
		convs: make(map[string]*Conversation),
	}
}

// SetClock replaces the time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Owner returns the owner id.
func (r *Registry) Owner() string {
	return r.owner
}

// Load replaces the local view with the owner's conversations from the
// remote store. Messages with an unknown role are skipped. If the owner has
// no conversation, one is created and made active.
func (r *Registry) Load(ctx context.Context) error {
	chats, err := r.store.ListChats(ctx, r.owner)
	if err != nil {
		return errors.Wrap(err, "load conversations")
	}

	rows := make([][]store.Message, len(chats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, chat := range chats {
		g.Go(func() error {
			msgs, err := r.store.ListMessages(gctx, chat.ID)
			if err != nil {
				return errors.Wrapf(err, "load messages of %s", chat.ID)
			}
			rows[i] = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	convs := make(map[string]*Conversation, len(chats))
	for i, chat := range chats {
		conv := &Conversation{
			ID:        chat.ID,
			Name:      chat.Name,
			CreatedAt: chat.CreatedAt,
			Messages:  make([]eclesia.Message, 0, len(rows[i])),
		}
		for _, row := range rows[i] {
			msg, err := row.ToMessage()
			if err != nil {
				log.Warn().Err(err).Str("conversation", chat.ID).Msg("Skipping malformed message")
				continue
			}
			conv.Messages = append(conv.Messages, msg)
		}
		convs[conv.ID] = conv
	}

	r.mu.Lock()
	r.convs = convs
	if _, ok := convs[r.active]; !ok {
		r.active = newestID(convs)
	}
	empty := len(convs) == 0
	r.mu.Unlock()

	if empty {
		if _, err := r.Create(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Create persists a new conversation with the default name, inserts it and
// makes it active. On a store failure nothing changes locally.
func (r *Registry) Create(ctx context.Context) (string, error) {
	conv := New(r.now())
	chat := store.Chat{ID: conv.ID, UserID: r.owner, Name: conv.Name, CreatedAt: conv.CreatedAt}
	if err := r.store.CreateChat(ctx, chat); err != nil {
		return "", errors.Wrap(err, "create conversation")
	}

	r.mu.Lock()
	r.convs[conv.ID] = conv
	r.active = conv.ID
	r.mu.Unlock()

	log.Debug().Str("conversation", conv.ID).Msg("Conversation created")
	return conv.ID, nil
}

// Rename sets the display name locally, then remotely. Blank names become
// the default label. A remote failure is returned but the local name stays.
func (r *Registry) Rename(ctx context.Context, id, name string) error {
	name = NormalizeName(name)

	r.mu.Lock()
	conv, ok := r.convs[id]
	if ok {
		conv.Name = name
	}
	r.mu.Unlock()
	if !ok {
		return errors.Wrap(ErrNotFound, id)
	}

	if err := r.store.RenameChat(ctx, id, name); err != nil {
		return errors.Wrap(err, "rename conversation")
	}
	return nil
}

// Delete removes the conversation's messages and then the conversation from
// the remote store, then drops it locally. If it was active, the newest
// remaining conversation becomes active, or a new one is created when none
// remain. When only the message removal succeeds, the conversation is kept
// with its local messages cleared.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.RLock()
	_, ok := r.convs[id]
	r.mu.RUnlock()
	if !ok {
		return errors.Wrap(ErrNotFound, id)
	}

	if err := r.store.DeleteMessages(ctx, id); err != nil {
		return errors.Wrap(err, "delete conversation messages")
	}
	if err := r.store.DeleteChat(ctx, id); err != nil {
		// Messages are already gone remotely.
		r.mu.Lock()
		if conv, ok := r.convs[id]; ok {
			conv.Messages = conv.Messages[:0]
		}
		r.mu.Unlock()
		log.Warn().Err(err).Str("conversation", id).Msg("Conversation messages deleted but the conversation was kept")
		return errors.Wrap(err, "delete conversation")
	}

	r.mu.Lock()
	delete(r.convs, id)
	if r.active == id {
		r.active = newestID(r.convs)
	}
	empty := len(r.convs) == 0
	r.mu.Unlock()

	if empty {
		if _, err := r.Create(ctx); err != nil {
			return errors.Wrap(ErrEmpty, err.Error())
		}
	}
	return nil
}

// Get returns a copy of the conversation.
func (r *Registry) Get(id string) (Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.convs[id]
	if !ok {
		return Conversation{}, false
	}
	return conv.Clone(), true
}

// List returns copies of all conversations, newest first.
func (r *Registry) List() []Conversation {
	r.mu.RLock()
	out := make([]Conversation, 0, len(r.convs))
	for _, c := range r.convs {
		out = append(out, c.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of conversations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.convs)
}

// Active returns the active conversation id.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive switches the active conversation.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[id]; !ok {
		return errors.Wrap(ErrNotFound, id)
	}
	r.active = id
	return nil
}

// BucketByAge groups the conversations (newest first) into age bands.
func (r *Registry) BucketByAge(now time.Time) map[Bucket][]Conversation {
	return BucketByAge(r.List(), now)
}

// Update runs fn against the live conversation under the registry lock.
// fn must not block.
func (r *Registry) Update(id string, fn func(c *Conversation) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return errors.Wrap(ErrNotFound, id)
	}
	return fn(conv)
}

// Resolve finds a conversation by full ID, short ID prefix (minimum 4
// characters) or "latest" (the most recently created).
func (r *Registry) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	convs := r.List()

	if ref == "latest" {
		if len(convs) == 0 {
			return "", ErrNotFound
		}
		return convs[0].ID, nil
	}

	if len(ref) < 4 {
		return "", fmt.Errorf("conversation ID prefix must be at least 4 characters (got %d)", len(ref))
	}

	var matches []Conversation
	for _, c := range convs {
		if c.ID == ref {
			return c.ID, nil
		}
		if strings.HasPrefix(c.ID, ref) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return "", errors.Wrapf(ErrNotFound, "%s\n\nRun 'eclesia conversations list' to see available conversations.", ref)
	case 1:
		return matches[0].ID, nil
	default:
		return "", &AmbiguousIDError{Prefix: ref, Matches: matches}
	}
}

func newestID(convs map[string]*Conversation) string {
	var newest *Conversation
	for _, c := range convs {
		if newest == nil || c.CreatedAt.After(newest.CreatedAt) ||
			(c.CreatedAt.Equal(newest.CreatedAt) && c.ID < newest.ID) {
			newest = c
		}
	}
	if newest == nil {
		return ""
	}
	return newest.ID
}
