// Package supabase is a small client for the hosted auth (GoTrue) and row
// storage (PostgREST) endpoints used by EclesIA.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase: HTTP %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase: HTTP %d: %s", e.StatusCode, e.Message)
}

// Client talks to one Supabase project.
type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client authenticated with the project's API key. The
// key doubles as the bearer token until WithToken is used, which is what the
// service-role key needs.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		token:      apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client that sends the given user access
// token, so row-level security applies to that user.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Eq builds a PostgREST equality filter value.
func Eq(v string) string { return "eq." + v }

// Select runs GET /rest/v1/{table} and decodes the rows into out.
func (c *Client) Select(ctx context.Context, table string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, "/rest/v1/"+table, query, nil, nil, out)
}

// Insert adds rows to table.
func (c *Client) Insert(ctx context.Context, table string, rows any) error {
	return c.do(ctx, http.MethodPost, "/rest/v1/"+table, nil, rows,
		map[string]string{"Prefer": "return=minimal"}, nil)
}

// Upsert inserts rows, merging on the onConflict column.
func (c *Client) Upsert(ctx context.Context, table, onConflict string, rows any) error {
	q := url.Values{}
	if onConflict != "" {
		q.Set("on_conflict", onConflict)
	}
	return c.do(ctx, http.MethodPost, "/rest/v1/"+table, q, rows,
		map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}, nil)
}

// Update patches the rows matching filter.
func (c *Client) Update(ctx context.Context, table string, filter url.Values, patch any) error {
	if len(filter) == 0 {
		return errors.New("supabase: refusing to update without a filter")
	}
	return c.do(ctx, http.MethodPatch, "/rest/v1/"+table, filter, patch,
		map[string]string{"Prefer": "return=minimal"}, nil)
}

// Delete removes the rows matching filter.
func (c *Client) Delete(ctx context.Context, table string, filter url.Values) error {
	if len(filter) == 0 {
		return errors.New("supabase: refusing to delete without a filter")
	}
	return c.do(ctx, http.MethodDelete, "/rest/v1/"+table, filter, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, headers map[string]string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "supabase: marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return errors.Wrap(err, "supabase: create request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "supabase: %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "supabase: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "supabase: decode response")
	}
	return nil
}

// parseAPIError understands both PostgREST ({code, message}) and GoTrue
// ({error, error_description} or {msg}) error bodies.
func parseAPIError(status int, body []byte) error {
	var payload struct {
		Code             any    `json:"code"`
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(body, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	switch code := payload.Code.(type) {
	case string:
		apiErr.Code = code
	case float64:
		apiErr.Code = fmt.Sprintf("%d", int(code))
	}
	for _, m := range []string{payload.Message, payload.Msg, payload.ErrorDescription, payload.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Code == "" {
		apiErr.Code = payload.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
