package dify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamChat(t *testing.T) {
	var got ChatMessageRequest
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		require.NoError(t, json.Unmarshal(body, &raw))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{
			"data: {\"event\":\"message\",\"answer\":\"A IECB \"}\n",
			"data: {\"event\":\"message\",\"answer\":\"é uma igreja\"}\n",
			"data: [DONE]\n",
		} {
			_, _ = io.WriteString(w, chunk)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "app-token")
	stream, err := client.StreamChat(context.Background(), eclesia.ChatRequest{Query: "O que é a IECB?", User: "user-1"})
	require.NoError(t, err)
	defer stream.Close()

	var sb strings.Builder
	for {
		f, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		sb.WriteString(f)
	}

	assert.Equal(t, "A IECB é uma igreja", sb.String())
	assert.Equal(t, "O que é a IECB?", got.Query)
	assert.Equal(t, "streaming", got.ResponseMode)
	assert.Equal(t, "user-1", got.User)
	assert.Equal(t, "", got.ConversationID)
	assert.Contains(t, raw, "conversation_id")
	assert.NotNil(t, got.Inputs)
}

func TestStreamChatStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":"unauthorized","message":"Access token is invalid"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "bad").StreamChat(context.Background(), eclesia.ChatRequest{Query: "oi", User: "u"})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "Access token is invalid")
}

func TestStreamChatTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "t").StreamChat(context.Background(), eclesia.ChatRequest{Query: "oi", User: "u"})
	assert.Error(t, err)
}
