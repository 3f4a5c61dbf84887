package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// User is the authenticated account.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a signed-in auth session.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         User   `json:"user"`
}

// Expired reports whether the access token is past its expiry, with a
// minute of slack.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return now.Add(time.Minute).Unix() >= s.ExpiresAt
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers a new account. Depending on project settings the account
// may need email confirmation before SignInWithPassword succeeds.
func (c *Client) SignUp(ctx context.Context, email, password string) (*User, error) {
	var resp struct {
		User
		Nested *User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, credentials{email, password}, nil, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "sign up")
	}
	if resp.Nested != nil && resp.Nested.ID != "" {
		return resp.Nested, nil
	}
	return &resp.User, nil
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{"grant_type": {"password"}}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, credentials{email, password}, nil, &s); err != nil {
		return nil, errors.Wrap(err, "sign in")
	}
	return c.normalize(&s), nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	q := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": refreshToken}
	var s Session
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token", q, body, nil, &s); err != nil {
		return nil, errors.Wrap(err, "refresh session")
	}
	return c.normalize(&s), nil
}

// Recover sends a password reset email.
func (c *Client) Recover(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return errors.Wrap(c.do(ctx, http.MethodPost, "/auth/v1/recover", nil, body, nil, nil), "recover password")
}

// UpdatePassword changes the password of the user owning the client's token.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	body := map[string]string{"password": password}
	return errors.Wrap(c.do(ctx, http.MethodPut, "/auth/v1/user", nil, body, nil, nil), "update password")
}

// SignOut revokes the client's token.
func (c *Client) SignOut(ctx context.Context) error {
	return errors.Wrap(c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, nil, nil), "sign out")
}

func (c *Client) normalize(s *Session) *Session {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	return s
}
