// Package bible is a client for the abibliadigital scripture API.
package bible

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"
)

// ErrBookNotFound is returned by FindBook when nothing matches.
var ErrBookNotFound = errors.New("book not found")

// Abbrev holds a book's abbreviations.
type Abbrev struct {
	PT string `json:"pt"`
	EN string `json:"en"`
}

// Book is an entry of the book list.
type Book struct {
	Abbrev    Abbrev `json:"abbrev"`
	Name      string `json:"name"`
	Author    string `json:"author,omitempty"`
	Group     string `json:"group,omitempty"`
	Testament string `json:"testament,omitempty"`
	Chapters  int    `json:"chapters"`
}

// Verse is one numbered verse.
type Verse struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Chapter is a book chapter with its verses in the order the API returned
// them.
type Chapter struct {
	Book   Book    `json:"book"`
	Number int     `json:"-"`
	Verses []Verse `json:"verses"`
}

// Text joins the verses in the inclusive range [from, to]. Zero bounds
// select the whole chapter.
func (c *Chapter) Text(from, to int) string {
	var parts []string
	for _, v := range c.Verses {
		if from > 0 && v.Number < from {
			continue
		}
		if to > 0 && v.Number > to {
			continue
		}
		parts = append(parts, strings.TrimSpace(v.Text))
	}
	return strings.Join(parts, " ")
}

// RandomVerse is a single verse with its location.
type RandomVerse struct {
	Book    Book   `json:"book"`
	Chapter int    `json:"chapter"`
	Number  int    `json:"number"`
	Text    string `json:"text"`
}

// Reference formats the verse location, e.g. "João 3:16".
func (v *RandomVerse) Reference() string {
	return fmt.Sprintf("%s %d:%d", v.Book.Name, v.Chapter, v.Number)
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bible API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client talks to the scripture API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRatePerMinute throttles requests client side. n <= 0 disables it.
func WithRatePerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
	}
}

// NewClient creates a client for baseURL (e.g. https://www.abibliadigital.com.br/api).
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Books lists the books of the canon.
func (c *Client) Books(ctx context.Context) ([]Book, error) {
	var books []Book
	if err := c.get(ctx, "/books", &books); err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	return books, nil
}

// Chapter fetches one chapter of a book by its Portuguese abbreviation.
func (c *Client) Chapter(ctx context.Context, version, abbrev string, number int) (*Chapter, error) {
	if number < 1 {
		return nil, errors.Errorf("invalid chapter %d", number)
	}
	path := fmt.Sprintf("/verses/%s/%s/%d", url.PathEscape(version), url.PathEscape(abbrev), number)

	var ch Chapter
	if err := c.get(ctx, path, &ch); err != nil {
		return nil, errors.Wrapf(err, "read %s %d", abbrev, number)
	}
	ch.Number = number
	return &ch, nil
}

// RandomVerse fetches a random verse.
func (c *Client) RandomVerse(ctx context.Context, version string) (*RandomVerse, error) {
	var v RandomVerse
	if err := c.get(ctx, "/verses/"+url.PathEscape(version)+"/random", &v); err != nil {
		return nil, errors.Wrap(err, "random verse")
	}
	return &v, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "error creating request")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Debug().Str("path", path).Msg("Bible API request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "error sending request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "error reading response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Msg string `json:"msg"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			msg = apiErr.Msg
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "error parsing response")
	}
	return nil
}

// FindBook looks a book up by name or abbreviation, ignoring case and
// accents: "Gênesis", "genesis" and "gn" all find Genesis. A match that
// also agrees on accents wins, so "jó" and "jo" tell Jó and João apart.
func FindBook(books []Book, query string) (Book, error) {
	if strings.TrimSpace(query) == "" {
		return Book{}, errors.Wrap(ErrBookNotFound, "empty name")
	}

	for _, key := range []func(string) string{lower, fold} {
		q := key(query)
		for _, b := range books {
			if key(b.Name) == q || key(b.Abbrev.PT) == q || key(b.Abbrev.EN) == q {
				return b, nil
			}
		}
	}

	q := fold(query)
	var prefixed []Book
	for _, b := range books {
		if strings.HasPrefix(fold(b.Name), q) {
			prefixed = append(prefixed, b)
		}
	}
	if len(prefixed) == 1 {
		return prefixed[0], nil
	}
	return Book{}, errors.Wrap(ErrBookNotFound, query)
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// fold lowercases s and strips diacritics.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return lower(out)
}
