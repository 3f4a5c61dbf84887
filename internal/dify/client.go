// Package dify implements eclesia.ChatProvider for Dify-compatible chat
// completion endpoints that stream newline-delimited `data:` records.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const ProviderName = "dify"

// ChatMessageRequest is the request body of the chat-messages endpoint.
// ConversationID is always sent empty: prior turns travel inside Query.
type ChatMessageRequest struct {
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	ResponseMode   string         `json:"response_mode"`
	User           string         `json:"user"`
	ConversationID string         `json:"conversation_id"`
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat API error (HTTP %d): %s", e.StatusCode, e.Body)
}

// Client implements the eclesia.ChatProvider interface
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

var _ eclesia.ChatProvider = (*Client)(nil)

// NewClient creates a client for the full chat-messages endpoint URL.
// Streaming responses are long-lived, so the HTTP client has no timeout;
// cancel the context instead.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{},
	}
}

// SetHTTPClient replaces the HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// StreamChat opens a streaming completion. The returned stream must be
// closed by the caller.
func (c *Client) StreamChat(ctx context.Context, req eclesia.ChatRequest) (eclesia.FragmentStream, error) {
	body := ChatMessageRequest{
		Query:        req.Query,
		Inputs:       map[string]any{},
		ResponseMode: "streaming",
		User:         req.User,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "error creating request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "error sending request")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Debug().Int("status", resp.StatusCode).Str("body", string(data)).Msg("Chat API returned an error")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}

	return NewStream(resp.Body), nil
}

// Stream is an open streaming response.
type Stream struct {
	*Decoder
	body io.Closer
}

// NewStream decodes body and closes it on Close.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{Decoder: NewDecoder(body), body: body}
}

// Close releases the response body.
func (s *Stream) Close() error {
	return s.body.Close()
}
