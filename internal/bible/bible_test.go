package bible

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testBooks = []Book{
	{Abbrev: Abbrev{PT: "gn", EN: "gn"}, Name: "Gênesis", Chapters: 50, Testament: "VT"},
	{Abbrev: Abbrev{PT: "ex", EN: "ex"}, Name: "Êxodo", Chapters: 40, Testament: "VT"},
	{Abbrev: Abbrev{PT: "jó", EN: "job"}, Name: "Jó", Chapters: 42, Testament: "VT"},
	{Abbrev: Abbrev{PT: "jo", EN: "jn"}, Name: "João", Chapters: 21, Testament: "NT"},
	{Abbrev: Abbrev{PT: "jd", EN: "jud"}, Name: "Judas", Chapters: 1, Testament: "NT"},
}

func TestFindBook(t *testing.T) {
	tests := []struct {
		query   string
		want    string
		wantErr bool
	}{
		{query: "Gênesis", want: "gn"},
		{query: "genesis", want: "gn"},
		{query: "GN", want: "gn"},
		{query: "  exodo ", want: "ex"},
		{query: "jó", want: "jó"},
		{query: "jo", want: "jo"},
		{query: "joao", want: "jo"},
		{query: "jud", want: "jd"},
		{query: "gen", want: "gn"},
		{query: "j", wantErr: true},
		{query: "Apocalipse", wantErr: true},
		{query: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := FindBook(testBooks, tt.query)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBookNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Abbrev.PT)
		})
	}
}

func TestChapterRequestsAbbreviationAndKeepsOrder(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{
			"book": {"abbrev": {"pt": "gn", "en": "gn"}, "name": "Gênesis", "chapters": 50},
			"chapter": {"number": 1, "verses": 3},
			"verses": [
				{"number": 1, "text": "No princípio criou Deus os céus e a terra."},
				{"number": 2, "text": "Era a terra sem forma e vazia."},
				{"number": 3, "text": "Disse Deus: Haja luz, e houve luz."}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok")
	book, err := FindBook(testBooks, "Gênesis")
	require.NoError(t, err)

	ch, err := c.Chapter(context.Background(), "nvi", book.Abbrev.PT, 1)
	require.NoError(t, err)

	assert.Equal(t, "/verses/nvi/gn/1", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, 1, ch.Number)
	require.Len(t, ch.Verses, 3)
	for i, v := range ch.Verses {
		assert.Equal(t, i+1, v.Number)
	}
	assert.Equal(t, "Era a terra sem forma e vazia. Disse Deus: Haja luz, e houve luz.", ch.Text(2, 3))
	assert.Len(t, ch.Text(0, 0), len(ch.Verses[0].Text)+len(ch.Verses[1].Text)+len(ch.Verses[2].Text)+2)
}

func TestBooksAndRandomVerse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/books":
			_, _ = io.WriteString(w, `[{"abbrev":{"pt":"gn","en":"gn"},"name":"Gênesis","chapters":50}]`)
		case "/verses/nvi/random":
			_, _ = io.WriteString(w, `{"book":{"abbrev":{"pt":"jo"},"name":"João"},"chapter":3,"number":16,"text":"Porque Deus tanto amou o mundo..."}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	books, err := c.Books(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, 50, books[0].Chapters)

	v, err := c.RandomVerse(context.Background(), "nvi")
	require.NoError(t, err)
	assert.Equal(t, "João 3:16", v.Reference())
	assert.Contains(t, v.Text, "Deus tanto amou")
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"msg":"Too many accounts created from this IP"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Books(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "Too many accounts created from this IP", apiErr.Message)

	_, err = NewClient(srv.URL, "").Chapter(context.Background(), "nvi", "gn", 0)
	assert.Error(t, err)
}

func TestRateLimitHonorsContext(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", WithRatePerMinute(1))
	_, err := c.Books(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Books(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
