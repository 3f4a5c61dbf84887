// Package session orchestrates sending a message and receiving the streamed
// reply: the user message is appended and persisted, an open assistant
// message receives every decoded fragment, and the result is finalized,
// persisted and used to name a conversation that still has the default label.
package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/devvluca/EclesIA/internal/eclesia/conversation"
	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoIdentity is returned when nobody is signed in.
	ErrNoIdentity = errors.New("not signed in")

	// ErrSendInFlight is returned when the conversation is already waiting
	// for a reply.
	ErrSendInFlight = errors.New("a reply is still streaming for this conversation")

	// ErrCanceled is the cause attached to a stream canceled because its
	// conversation was deleted.
	ErrCanceled = errors.New("conversation deleted while streaming")
)

// EventKind identifies a notification.
type EventKind int

const (
	// EventFragment is emitted once per fragment applied to the open
	// assistant message.
	EventFragment EventKind = iota
	// EventCompleted is emitted when the reply was finalized.
	EventCompleted
	// EventFailed is emitted once when the reply was replaced by the apology.
	EventFailed
	// EventPersistFailed is emitted when a remote write failed. Local state
	// is kept.
	EventPersistFailed
	// EventRenamed is emitted when a conversation was named after its first
	// exchange.
	EventRenamed
)

func (k EventKind) String() string {
	switch k {
	case EventFragment:
		return "fragment"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventPersistFailed:
		return "persist_failed"
	case EventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind           EventKind
	ConversationID string
	MessageID      string
	Fragment       string
	Name           string
	Err            error
}

// State is an immutable snapshot of the manager.
type State struct {
	Active        string
	Conversations []conversation.Conversation
	Streaming     []string
}

// Manager is the entry point for sending messages. It is safe for
// concurrent use; at most one send per conversation is in flight.
type Manager struct {
	registry *conversation.Registry
	provider eclesia.ChatProvider
	store    store.ChatStore
	identity *eclesia.Identity
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]context.CancelCauseFunc

	obsMu     sync.RWMutex
	observers map[int]func(Event)
	nextObs   int
}

// NewManager creates a manager. identity may be nil, in which case every
// send fails with ErrNoIdentity.
func NewManager(registry *conversation.Registry, provider eclesia.ChatProvider, st store.ChatStore, identity *eclesia.Identity) *Manager {
	return &Manager{
		registry:  registry,
		provider:  provider,
		store:     st,
		identity:  identity,
		now:       time.Now,
		inFlight:  make(map[string]context.CancelCauseFunc),
		observers: make(map[int]func(Event)),
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Registry returns the underlying registry.
func (m *Manager) Registry() *conversation.Registry {
	return m.registry
}

// Subscribe registers fn for every event. Events of one send are delivered
// in order on the sending goroutine. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.obsMu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Manager) emit(ev Event) {
	m.obsMu.RLock()
	fns := make([]func(Event), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	streaming := make([]string, 0, len(m.inFlight))
	for id := range m.inFlight {
		streaming = append(streaming, id)
	}
	m.mu.Unlock()

	return State{
		Active:        m.registry.Active(),
		Conversations: m.registry.List(),
		Streaming:     streaming,
	}
}

// Delete cancels any reply streaming into the conversation, then deletes it
// through the registry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	cancel, ok := m.inFlight[id]
	m.mu.Unlock()
	if ok {
		cancel(ErrCanceled)
	}
	return m.registry.Delete(ctx, id)
}

func (m *Manager) begin(ctx context.Context, id string) (context.Context, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[id]; busy {
		return nil, nil, ErrSendInFlight
	}
	sctx, cancel := context.WithCancelCause(ctx)
	m.inFlight[id] = cancel
	return sctx, func() {
		m.mu.Lock()
		delete(m.inFlight, id)
		m.mu.Unlock()
		cancel(nil)
	}, nil
}

// Send sends text to the conversation with the given id (the active one
// when id is empty) and blocks until the reply completed or failed. The
// returned message is the finalized assistant message; on failure its
// content is eclesia.ApologyMessage and the error is returned alongside.
//
// The reply is written to the conversation it was started in, regardless of
// which conversation is active by the time it finishes.
func (m *Manager) Send(ctx context.Context, id, text string) (eclesia.Message, error) {
	if strings.TrimSpace(text) == "" {
		return eclesia.Message{}, ErrEmptyMessage
	}
	if !m.identity.Valid() {
		return eclesia.Message{}, ErrNoIdentity
	}
	if id == "" {
		id = m.registry.Active()
	}

	sctx, done, err := m.begin(ctx, id)
	if err != nil {
		return eclesia.Message{}, err
	}
	defer done()

	// Sending
	userMsg := eclesia.NewUserMessage(text, m.now())
	var history []eclesia.Message
	unnamed := false
	err = m.registry.Update(id, func(c *conversation.Conversation) error {
		unnamed = conversation.NormalizeName(c.Name) == eclesia.DefaultConversationName
		history = append(history, c.Messages...)
		if err := c.Append(userMsg); err != nil {
			return err
		}
		return c.Append(eclesia.NewOpenAssistantMessage(m.now()))
	})
	if err != nil {
		return eclesia.Message{}, errors.Wrap(err, "send")
	}

	if err := m.store.InsertMessage(sctx, store.FromMessage(id, userMsg)); err != nil {
		m.persistFailed(id, userMsg.ID, errors.Wrap(err, "persist user message"))
	}

	// Streaming
	query := BuildQuery(history, text)
	stream, err := m.provider.StreamChat(sctx, eclesia.ChatRequest{Query: query, User: m.identity.UserID})
	if err != nil {
		return m.fail(sctx, id, err)
	}
	defer stream.Close()

	for {
		fragment, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return m.fail(sctx, id, err)
		}

		var msgID string
		err = m.registry.Update(id, func(c *conversation.Conversation) error {
			m.stampReply(c)
			if err := c.AppendToLast(fragment); err != nil {
				return err
			}
			msgID = c.Messages[len(c.Messages)-1].ID
			return nil
		})
		if err != nil {
			return m.fail(sctx, id, err)
		}
		m.emit(Event{Kind: EventFragment, ConversationID: id, MessageID: msgID, Fragment: fragment})
	}

	// Completed
	var reply eclesia.Message
	err = m.registry.Update(id, func(c *conversation.Conversation) error {
		m.stampReply(c)
		var err error
		reply, err = c.Finalize()
		return err
	})
	if err != nil {
		return m.fail(sctx, id, err)
	}

	if err := m.store.InsertMessage(sctx, store.FromMessage(id, reply)); err != nil {
		m.persistFailed(id, reply.ID, errors.Wrap(err, "persist assistant message"))
	}

	if unnamed {
		m.nameAfterFirstQuestion(sctx, id, userMsg)
	}

	m.emit(Event{Kind: EventCompleted, ConversationID: id, MessageID: reply.ID})
	return reply, nil
}

// nameAfterFirstQuestion names a conversation still carrying the default
// label after its earliest user message, so a conversation whose first
// exchange failed is named by the first one that completes.
func (m *Manager) nameAfterFirstQuestion(ctx context.Context, id string, fallback eclesia.Message) {
	first := fallback
	if conv, ok := m.registry.Get(id); ok {
		for _, msg := range conv.Messages {
			if msg.Role == eclesia.RoleUser {
				first = msg
				break
			}
		}
	}
	name := conversation.DeriveName(first.Content)
	if name == eclesia.DefaultConversationName {
		return
	}
	if err := m.registry.Rename(ctx, id, name); err != nil {
		m.persistFailed(id, "", errors.Wrap(err, "name conversation"))
	}
	m.emit(Event{Kind: EventRenamed, ConversationID: id, Name: name})
}

// stampReply dates the open assistant reply when its first content arrives.
// The stamp always falls strictly after the question it answers.
func (m *Manager) stampReply(c *conversation.Conversation) {
	n := len(c.Messages)
	if n < 2 {
		return
	}
	last := &c.Messages[n-1]
	if !last.Open || last.Content != "" {
		return
	}
	stamp := m.now()
	if floor := c.Messages[n-2].Timestamp.Add(time.Millisecond); stamp.Before(floor) {
		stamp = floor
	}
	last.Timestamp = stamp
}

// fail replaces the open reply with the apology and finalizes it. A stream
// canceled by Delete is not reported as a failure.
func (m *Manager) fail(ctx context.Context, id string, cause error) (eclesia.Message, error) {
	if errors.Is(context.Cause(ctx), ErrCanceled) {
		log.Debug().Str("conversation", id).Msg("Reply canceled, conversation deleted")
		return eclesia.Message{}, ErrCanceled
	}

	var reply eclesia.Message
	err := m.registry.Update(id, func(c *conversation.Conversation) error {
		m.stampReply(c)
		if err := c.ReplaceLast(eclesia.ApologyMessage); err != nil {
			return err
		}
		var err error
		reply, err = c.Finalize()
		return err
	})
	if err != nil {
		log.Warn().Err(err).Str("conversation", id).Msg("Could not close failed reply")
		reply = eclesia.Message{Role: eclesia.RoleAssistant, Content: eclesia.ApologyMessage, Timestamp: m.now()}
	}

	log.Error().Err(cause).Str("conversation", id).Msg("Reply failed")
	m.emit(Event{Kind: EventFailed, ConversationID: id, MessageID: reply.ID, Err: cause})
	return reply, errors.Wrap(cause, "reply failed")
}

func (m *Manager) persistFailed(id, msgID string, err error) {
	log.Warn().Err(err).Str("conversation", id).Msg("Remote write failed")
	m.emit(Event{Kind: EventPersistFailed, ConversationID: id, MessageID: msgID, Err: err})
}
