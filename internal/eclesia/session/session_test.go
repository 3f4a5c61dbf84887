package session

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devvluca/EclesIA/internal/dify"
	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/devvluca/EclesIA/internal/eclesia/conversation"
	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	ctx       context.Context
	fragments []string
	err       error
	wait      <-chan struct{}
}

func (s *fakeStream) Next() (string, error) {
	if s.wait != nil {
		select {
		case <-s.wait:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
		s.wait = nil
	}
	if len(s.fragments) > 0 {
		f := s.fragments[0]
		s.fragments = s.fragments[1:]
		return f, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

type fakeProvider struct {
	mu      sync.Mutex
	queries []string
	openErr error
	build   func(ctx context.Context) eclesia.FragmentStream
	started chan struct{}
}

func (p *fakeProvider) StreamChat(ctx context.Context, req eclesia.ChatRequest) (eclesia.FragmentStream, error) {
	p.mu.Lock()
	p.queries = append(p.queries, req.Query)
	p.mu.Unlock()
	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.build(ctx), nil
}

func (p *fakeProvider) lastQuery() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[len(p.queries)-1]
}

func replying(fragments ...string) *fakeProvider {
	return &fakeProvider{build: func(ctx context.Context) eclesia.FragmentStream {
		return &fakeStream{ctx: ctx, fragments: append([]string(nil), fragments...)}
	}}
}

// failingStore fails every message insert.
type failingStore struct {
	store.ChatStore
}

func (failingStore) InsertMessage(context.Context, store.Message) error {
	return errors.New("remote unavailable")
}

var identity = &eclesia.Identity{UserID: "user-1", Email: "fiel@iecb.org.br"}

func newTestManager(t *testing.T, provider eclesia.ChatProvider, wrap func(store.ChatStore) store.ChatStore) (*Manager, store.ChatStore) {
	t.Helper()
	var st store.ChatStore = store.NewFile(t.TempDir())
	if wrap != nil {
		st = wrap(st)
	}
	reg := conversation.NewRegistry(st, identity.UserID)
	require.NoError(t, reg.Load(context.Background()))
	return NewManager(reg, provider, st, identity), st
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestSendFirstExchangeNamesConversation(t *testing.T) {
	provider := replying("A IECB é ", "a Igreja Episcopal ", "Carismática do Brasil.")
	m, st := newTestManager(t, provider, nil)
	rec := &recorder{}
	m.Subscribe(rec.record)
	ctx := context.Background()
	id := m.Registry().Active()

	reply, err := m.Send(ctx, id, "O que é a IECB?")
	require.NoError(t, err)
	assert.Equal(t, "A IECB é a Igreja Episcopal Carismática do Brasil.", reply.Content)
	assert.False(t, reply.Open)

	conv, ok := m.Registry().Get(id)
	require.True(t, ok)
	assert.Equal(t, "IECB", conv.Name)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, eclesia.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "O que é a IECB?", conv.Messages[0].Content)
	assert.Equal(t, eclesia.RoleAssistant, conv.Messages[1].Role)
	assert.NotEmpty(t, conv.Messages[1].Content)

	assert.Equal(t, 3, rec.count(EventFragment))
	assert.Equal(t, 1, rec.count(EventRenamed))
	assert.Equal(t, 1, rec.count(EventCompleted))
	assert.Zero(t, rec.count(EventFailed))

	rows, err := st.ListMessages(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, reply.Content, rows[1].Content)

	chats, err := st.ListChats(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, "IECB", chats[0].Name)

	assert.Equal(t, "O que é a IECB?", provider.lastQuery())
}

func TestSendStreamsThreeChunkReply(t *testing.T) {
	provider := &fakeProvider{build: func(ctx context.Context) eclesia.FragmentStream {
		r := io.MultiReader(
			strings.NewReader("data: {\"answer\":\"Ol"),
			strings.NewReader("á\"}\ndata: {\"answer\":\" mundo\"}\n"),
			strings.NewReader("data: [DONE]\n"),
		)
		return dify.NewStream(io.NopCloser(r))
	}}
	m, _ := newTestManager(t, provider, nil)
	rec := &recorder{}
	m.Subscribe(rec.record)

	reply, err := m.Send(context.Background(), "", "Oi")
	require.NoError(t, err)
	assert.Equal(t, "Olá mundo", reply.Content)
	assert.Equal(t, 2, rec.count(EventFragment))

	rec.mu.Lock()
	var fragments []string
	for _, ev := range rec.events {
		if ev.Kind == EventFragment {
			fragments = append(fragments, ev.Fragment)
		}
	}
	rec.mu.Unlock()
	assert.Equal(t, []string{"Olá", " mundo"}, fragments)
}

func TestSendFailureReplacesReplyWithApology(t *testing.T) {
	provider := &fakeProvider{build: func(ctx context.Context) eclesia.FragmentStream {
		return &fakeStream{ctx: ctx, fragments: []string{"Resposta parc"}, err: errors.New("connection reset")}
	}}
	m, st := newTestManager(t, provider, nil)
	rec := &recorder{}
	m.Subscribe(rec.record)
	id := m.Registry().Active()

	reply, err := m.Send(context.Background(), id, "Quem fundou a igreja?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, eclesia.ApologyMessage, reply.Content)
	assert.Equal(t, 1, rec.count(EventFailed))
	assert.Zero(t, rec.count(EventCompleted))

	conv, _ := m.Registry().Get(id)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, eclesia.ApologyMessage, conv.Messages[1].Content)
	assert.False(t, conv.Streaming())
	assert.Equal(t, eclesia.DefaultConversationName, conv.Name)

	rows, err := st.ListMessages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, rows, 1, "only the user message is persisted")
}

func TestSendOpenFailure(t *testing.T) {
	provider := &fakeProvider{openErr: &dify.StatusError{StatusCode: 502, Body: "bad gateway"}}
	m, _ := newTestManager(t, provider, nil)
	rec := &recorder{}
	m.Subscribe(rec.record)

	reply, err := m.Send(context.Background(), "", "Oi")
	var statusErr *dify.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, eclesia.ApologyMessage, reply.Content)
	assert.Equal(t, 1, rec.count(EventFailed))
}

func TestSendPersistFailureDoesNotAbort(t *testing.T) {
	m, _ := newTestManager(t, replying("Amém"), func(s store.ChatStore) store.ChatStore {
		return failingStore{ChatStore: s}
	})
	rec := &recorder{}
	m.Subscribe(rec.record)
	id := m.Registry().Active()

	reply, err := m.Send(context.Background(), id, "Oração")
	require.NoError(t, err)
	assert.Equal(t, "Amém", reply.Content)
	assert.Equal(t, 2, rec.count(EventPersistFailed))

	conv, _ := m.Registry().Get(id)
	assert.Len(t, conv.Messages, 2)
}

func TestSendRejectsInvalidInput(t *testing.T) {
	m, _ := newTestManager(t, replying("x"), nil)

	for _, blank := range []string{"", "   ", "\n\t"} {
		_, err := m.Send(context.Background(), "", blank)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}

	m.identity = nil
	_, err := m.Send(context.Background(), "", "Oi")
	assert.ErrorIs(t, err, ErrNoIdentity)

	m.identity = &eclesia.Identity{}
	_, err = m.Send(context.Background(), "", "Oi")
	assert.ErrorIs(t, err, ErrNoIdentity)

	conv, _ := m.Registry().Get(m.Registry().Active())
	assert.Empty(t, conv.Messages)
}

func TestSendUnknownConversation(t *testing.T) {
	m, _ := newTestManager(t, replying("x"), nil)
	_, err := m.Send(context.Background(), "missing", "Oi")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestSendIncludesHistory(t *testing.T) {
	provider := replying("Resposta")
	m, _ := newTestManager(t, provider, nil)
	rec := &recorder{}
	m.Subscribe(rec.record)
	id := m.Registry().Active()

	_, err := m.Send(context.Background(), id, "Primeira pergunta")
	require.NoError(t, err)
	_, err = m.Send(context.Background(), id, "Segunda pergunta")
	require.NoError(t, err)

	assert.Equal(t,
		"Histórico da conversa:\nuser: Primeira pergunta\nassistant: Resposta\n\nPergunta atual: Segunda pergunta",
		provider.lastQuery())
	assert.Equal(t, 1, rec.count(EventRenamed))

	conv, _ := m.Registry().Get(id)
	assert.Equal(t, "Primeira pergunta", conv.Name)
	assert.Len(t, conv.Messages, 4)
}

func TestSendReplyOrderSurvivesReload(t *testing.T) {
	ctx := context.Background()
	st, err := store.OpenSQL("sqlite", filepath.Join(t.TempDir(), "eclesia.db"))
	require.NoError(t, err)
	reg := conversation.NewRegistry(st, identity.UserID)
	require.NoError(t, reg.Load(ctx))

	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(reg, replying("Amém"), st, identity)
	m.SetClock(func() time.Time { return fixed })
	id := reg.Active()

	_, err = m.Send(ctx, id, "Oração da manhã")
	require.NoError(t, err)

	conv, _ := reg.Get(id)
	require.Len(t, conv.Messages, 2)
	assert.True(t, conv.Messages[1].Timestamp.After(conv.Messages[0].Timestamp))

	reloaded := conversation.NewRegistry(st, identity.UserID)
	require.NoError(t, reloaded.Load(ctx))
	got, ok := reloaded.Get(id)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, eclesia.RoleUser, got.Messages[0].Role)
	assert.Equal(t, "Oração da manhã", got.Messages[0].Content)
	assert.Equal(t, eclesia.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "Amém", got.Messages[1].Content)
}

func TestSendNamesAfterFailedFirstExchange(t *testing.T) {
	var calls int
	provider := &fakeProvider{build: func(ctx context.Context) eclesia.FragmentStream {
		calls++
		if calls == 1 {
			return &fakeStream{ctx: ctx, err: errors.New("connection reset")}
		}
		return &fakeStream{ctx: ctx, fragments: []string{"Pela fé."}}
	}}
	m, st := newTestManager(t, provider, nil)
	rec := &recorder{}
	m.Subscribe(rec.record)
	ctx := context.Background()
	id := m.Registry().Active()

	_, err := m.Send(ctx, id, "Como somos salvos?")
	require.Error(t, err)
	conv, _ := m.Registry().Get(id)
	assert.Equal(t, eclesia.DefaultConversationName, conv.Name)

	_, err = m.Send(ctx, id, "Pode repetir?")
	require.NoError(t, err)

	conv, _ = m.Registry().Get(id)
	assert.Equal(t, "somos salvos", conv.Name)
	assert.Equal(t, 1, rec.count(EventRenamed))

	chats, err := st.ListChats(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, "somos salvos", chats[0].Name)
}

func TestSendKeepsManualName(t *testing.T) {
	m, _ := newTestManager(t, replying("Sim"), nil)
	rec := &recorder{}
	m.Subscribe(rec.record)
	ctx := context.Background()
	id := m.Registry().Active()
	require.NoError(t, m.Registry().Rename(ctx, id, "Catequese"))

	_, err := m.Send(ctx, id, "Existe batismo infantil?")
	require.NoError(t, err)

	conv, _ := m.Registry().Get(id)
	assert.Equal(t, "Catequese", conv.Name)
	assert.Zero(t, rec.count(EventRenamed))
}

func TestSendRejectsSecondInFlight(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{
		started: make(chan struct{}, 1),
		build: func(ctx context.Context) eclesia.FragmentStream {
			return &fakeStream{ctx: ctx, fragments: []string{"ok"}, wait: release}
		},
	}
	m, _ := newTestManager(t, provider, nil)
	id := m.Registry().Active()

	errc := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), id, "Primeira")
		errc <- err
	}()
	<-provider.started

	assert.Equal(t, []string{id}, m.Snapshot().Streaming)
	_, err := m.Send(context.Background(), id, "Segunda")
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(release)
	require.NoError(t, <-errc)
	assert.Empty(t, m.Snapshot().Streaming)

	conv, _ := m.Registry().Get(id)
	assert.Len(t, conv.Messages, 2)
}

func TestReplyLandsInOriginatingConversation(t *testing.T) {
	release := make(chan struct{})
	provider := &fakeProvider{
		started: make(chan struct{}, 1),
		build: func(ctx context.Context) eclesia.FragmentStream {
			return &fakeStream{ctx: ctx, fragments: []string{"Resposta"}, wait: release}
		},
	}
	m, _ := newTestManager(t, provider, nil)
	ctx := context.Background()
	first := m.Registry().Active()

	errc := make(chan error, 1)
	go func() {
		_, err := m.Send(ctx, first, "Pergunta")
		errc <- err
	}()
	<-provider.started

	second, err := m.Registry().Create(ctx)
	require.NoError(t, err)
	require.Equal(t, second, m.Registry().Active())

	close(release)
	require.NoError(t, <-errc)

	conv, _ := m.Registry().Get(first)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Resposta", conv.Messages[1].Content)
	other, _ := m.Registry().Get(second)
	assert.Empty(t, other.Messages)
}

func TestDeleteCancelsInFlightReply(t *testing.T) {
	provider := &fakeProvider{
		started: make(chan struct{}, 1),
		build: func(ctx context.Context) eclesia.FragmentStream {
			return &fakeStream{ctx: ctx, wait: make(chan struct{})}
		},
	}
	m, _ := newTestManager(t, provider, nil)
	rec := &recorder{}
	m.Subscribe(rec.record)
	ctx := context.Background()
	id := m.Registry().Active()

	errc := make(chan error, 1)
	go func() {
		_, err := m.Send(ctx, id, "Pergunta")
		errc <- err
	}()
	<-provider.started

	require.NoError(t, m.Delete(ctx, id))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrCanceled)
	case <-time.After(5 * time.Second):
		t.Fatal("send did not return after delete")
	}
	assert.Zero(t, rec.count(EventFailed))
	_, ok := m.Registry().Get(id)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Registry().Len())
}

func TestUnsubscribe(t *testing.T) {
	m, _ := newTestManager(t, replying("a", "b"), nil)
	rec := &recorder{}
	unsubscribe := m.Subscribe(rec.record)
	unsubscribe()

	_, err := m.Send(context.Background(), "", "Oi")
	require.NoError(t, err)
	assert.Empty(t, rec.events)
}

func TestBuildPassageQuery(t *testing.T) {
	assert.Equal(t,
		`Texto selecionado: "No princípio criou Deus os céus e a terra.". Pergunta: "O que significa?"`,
		BuildPassageQuery("No princípio criou Deus os céus e a terra.", "O que significa?"))
}
