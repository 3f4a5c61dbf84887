package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/devvluca/EclesIA/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	subs   *store.File
}

func newTestServer(t *testing.T, staticDir string) *testServer {
	t.Helper()
	db, err := store.Dial("sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo, err := events.NewRepository(db)
	require.NoError(t, err)
	_, err = repo.Seed(context.Background())
	require.NoError(t, err)

	subs := store.NewFile(t.TempDir())
	router, err := NewRouter(Options{
		Events:        repo,
		Subscriptions: subs,
		StaticDir:     staticDir,
		Now:           func() time.Time { return time.Date(2024, 7, 7, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &testServer{router: router, subs: subs}
}

func (s *testServer) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRootAndHealth(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EclesIA backend is running", decode[map[string]string](t, w)["message"])

	w = s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsLifecycle(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]events.Event](t, w), 7)

	w = s.do(http.MethodPost, "/events", `{"title":"Vigília","date":"2024-07-10","location":"Catedral","description":"Noite de oração","total_slots":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	created := decode[events.Event](t, w)
	assert.Equal(t, 1, created.AvailableSlots)
	id := created.ID

	path := "/events/" + strconv.FormatUint(uint64(id), 10)
	w = s.do(http.MethodGet, path+"/slots", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, events.Slots{EventID: id, Title: "Vigília", AvailableSlots: 1, TotalSlots: 1}, decode[events.Slots](t, w))

	w = s.do(http.MethodPost, path+"/register", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Inscrição realizada para Vigília. Vagas restantes: 0", decode[map[string]string](t, w)["detail"])

	w = s.do(http.MethodPost, path+"/register", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Não há vagas disponíveis para este evento.", decode[map[string]string](t, w)["detail"])

	w = s.do(http.MethodPut, path, `{"title":"Vigília de Oração","date":"2024-07-10","location":"Catedral","description":"","total_slots":5}`)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[events.Event](t, w)
	assert.Equal(t, "Vigília de Oração", updated.Title)
	assert.Equal(t, 0, updated.AvailableSlots)

	w = s.do(http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Evento não encontrado", decode[map[string]string](t, w)["detail"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, path+"/register", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodGet, "/events/abc", "").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodPost, "/events", `{"title":"x","date":"amanhã"}`).Code)
}

func TestCalendar(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/calendar/weekly", "")
	require.Equal(t, http.StatusOK, w.Code)
	week := decode[[]events.CalendarEntry](t, w)
	require.Len(t, week, 2)
	assert.Equal(t, "Culto Dominical", week[0].Title)

	w = s.do(http.MethodGet, "/calendar/weekly?start_date=2024-08-05", "")
	require.Equal(t, http.StatusOK, w.Code)
	week = decode[[]events.CalendarEntry](t, w)
	require.Len(t, week, 1)
	assert.Equal(t, "EJC", week[0].Title)

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodGet, "/calendar/weekly?start_date=05/08/2024", "").Code)

	w = s.do(http.MethodGet, "/calendar/monthly", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]events.CalendarEntry](t, w), 2)

	w = s.do(http.MethodGet, "/calendar/monthly?month=12&year=2024", "")
	require.Equal(t, http.StatusOK, w.Code)
	dec := decode[[]events.CalendarEntry](t, w)
	require.Len(t, dec, 1)
	assert.Equal(t, "Viva!", dec[0].Title)

	assert.Equal(t, http.StatusUnprocessableEntity, s.do(http.MethodGet, "/calendar/monthly?month=13", "").Code)
}

func TestPushSubscription(t *testing.T) {
	s := newTestServer(t, "")

	body := `{"endpoint":"https://fcm.googleapis.com/fcm/send/abc","keys":{"p256dh":"BKX","auth":"xyz"}}`
	w := s.do(http.MethodPost, "/push/subscriptions", body)
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/push/subscriptions", body)
	require.Equal(t, http.StatusCreated, w.Code)

	subs, err := s.subs.ListPushSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "xyz", subs[0].Keys.Auth)

	w = s.do(http.MethodPost, "/push/subscriptions", `{"endpoint":"http://insecure","keys":{}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestManifestAndMetrics(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(http.MethodGet, "/manifest.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[Manifest](t, w)
	assert.Equal(t, "standalone", m.Display)
	assert.Equal(t, "EclesIA", m.ShortName)
	assert.NotEmpty(t, m.Icons)

	s.do(http.MethodGet, "/events", "")
	w = s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `eclesia_http_requests_total{method="GET",route="/events",status="200"} 1`)
}

func TestAppShellFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>EclesIA</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "img"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "img", "app_logo.jpeg"), []byte("jpeg"), 0o644))
	s := newTestServer(t, dir)

	w := s.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "EclesIA</html>")

	w = s.do(http.MethodGet, "/img/app_logo.jpeg", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jpeg", w.Body.String())

	w = s.do(http.MethodGet, "/chat", "", "Accept", "text/html,application/xhtml+xml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "EclesIA</html>")

	w = s.do(http.MethodGet, "/img/missing.png", "", "Accept", "image/png")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/chat", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
