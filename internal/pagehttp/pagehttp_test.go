package pagehttp

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/pageman/internal/auth"
	"github.com/keithlinneman/pageman/internal/dispatch"
	"github.com/keithlinneman/pageman/internal/httpmw"
	"github.com/keithlinneman/pageman/internal/pages"
)

const adminToken = "admin-token-0001"

type countingThrottle struct {
	mu       sync.Mutex
	failures map[string]int
	limit    int
}

func (c *countingThrottle) Blocked(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures[ip] >= c.limit
}

func (c *countingThrottle) Fail(ip string) {
	c.mu.Lock()
	c.failures[ip]++
	c.mu.Unlock()
}

type server struct {
	h        http.Handler
	store    *pages.FSStore
	throttle *countingThrottle
	route    string
}

func newServer(t *testing.T) *server {
	t.Helper()
	dir := t.TempDir()
	st, err := pages.NewFSStore(filepath.Join(dir, "pages"), filepath.Join(dir, "trash"))
	require.NoError(t, err)
	admin, err := auth.NewAdminSecret(adminToken)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	opts := []pages.Option{pages.WithClock(clock)}
	engine := pages.NewEngine(st, opts...)
	life := pages.NewLifecycle(st, opts, pages.WithAdminCheck(admin.IsAdmin))
	disp := dispatch.New(dispatch.Options{
		Authorizer: auth.NewAuthorizer(admin, life),
		Engine:     engine,
		Lifecycle:  life,
	})

	th := &countingThrottle{failures: map[string]int{}, limit: 3}
	s := &server{store: st, throttle: th}
	r := chi.NewRouter()
	r.Use(httpmw.ClientIP(httpmw.ClientIPOptions{}))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			s.route = chi.RouteContext(r.Context()).RoutePattern()
		})
	})
	NewAPI(Options{Dispatcher: disp, Engine: engine, Lifecycle: life, Throttle: th}).RegisterRoutes(r)
	NewSite(engine, nil).RegisterRoutes(r)
	s.h = r
	return s
}

func (s *server) do(method, path, cred, contentType string, body io.Reader) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, body)
	r.RemoteAddr = "198.51.100.20:5555"
	if cred != "" {
		r.Header.Set("Authorization", "Bearer "+cred)
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, r)
	return rec
}

func (s *server) json(method, path, cred string, v any) *httptest.ResponseRecorder {
	var body io.Reader
	if v != nil {
		b, _ := json.Marshal(v)
		body = strings.NewReader(string(b))
	}
	return s.do(method, path, cred, "application/json", body)
}

func (s *server) form(cred string, vals url.Values) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/api/actions", cred, "application/x-www-form-urlencoded", strings.NewReader(vals.Encode()))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHTTP_EndToEndREST(t *testing.T) {
	s := newServer(t)

	rec := s.json(http.MethodPost, "/api/pages", adminToken, map[string]string{"name": "my page"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "my-page", decode[dispatch.Outcome](t, rec).Page)

	rec = s.json(http.MethodPost, "/api/pages", adminToken, map[string]string{"name": "my-page"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.json(http.MethodPost, "/api/pages/my-page/secret", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	secret := decode[dispatch.Outcome](t, rec).Secret
	require.NotEmpty(t, secret)

	rec = s.do(http.MethodPut, "/api/pages/my-page/draft", secret, "text/html", strings.NewReader("<p>draft</p>"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/pages/my-page/draft", secret, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>draft</p>", rec.Body.String())

	rec = s.json(http.MethodPost, "/api/pages/my-page/publish", secret, map[string]string{"content": "<p>v1</p>", "comment": " first "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v1 := decode[dispatch.Outcome](t, rec).Version
	require.True(t, v1.Valid())

	rec = s.json(http.MethodPost, "/api/pages/my-page/publish", secret, map[string]string{"content": "<p>v2</p>"})
	require.Equal(t, http.StatusCreated, rec.Code)
	v2 := decode[dispatch.Outcome](t, rec).Version

	rec = s.do(http.MethodGet, "/p/my-page/", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>v2</p>", rec.Body.String())
	assert.Equal(t, v2.String(), rec.Header().Get(PageVersionHeader))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	rec = s.json(http.MethodPost, "/api/pages/my-page/versions/"+v1.String()+"/restore", secret, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "<p>v1</p>", s.do(http.MethodGet, "/p/my-page/", "", "", nil).Body.String())

	rec = s.json(http.MethodPut, "/api/pages/my-page/versions/"+v1.String()+"/comment", secret, map[string]string{"comment": "restored"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/pages/my-page/", secret, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[pageView](t, rec)
	assert.Equal(t, v1, view.State.PublishedVersion)
	assert.Equal(t, pages.DraftClean, view.State.Draft)
	require.Len(t, view.Versions, 2)
	assert.Equal(t, v2, view.Versions[0].ID)
	assert.Equal(t, "restored", view.Versions[1].Comment)

	rec = s.json(http.MethodPost, "/api/pages/my-page/draft/load", secret, map[string]string{"source": v2.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>v2</p>", s.do(http.MethodGet, "/api/pages/my-page/draft", secret, "", nil).Body.String())

	rec = s.do(http.MethodDelete, "/api/pages/my-page/versions/"+v1.String(), secret, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/pages/my-page/versions/"+v1.String(), secret, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/pages", adminToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []PageSummary{{Name: "my-page", Secret: secret}}, decode[[]PageSummary](t, rec))

	rec = s.do(http.MethodDelete, "/api/pages/my-page/", adminToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[dispatch.Outcome](t, rec).Trash)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/p/my-page/", "", "", nil).Code)
}

func TestHTTP_ActionFormCompat(t *testing.T) {
	s := newServer(t)

	rec := s.form(adminToken, url.Values{"action": {"create_page"}, "new_page_name": {"blog"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.form(adminToken, url.Values{"action": {"publish"}, "page": {"blog"}, "content": {"<h1>x</h1>"}, "comment": {"c"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[dispatch.Outcome](t, rec).Version

	rec = s.form(adminToken, url.Values{"action": {"restore"}, "page": {"blog"}, "file": {"index.html"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// no new_comment field leaves the comment alone
	rec = s.form(adminToken, url.Values{"action": {"edit_comment"}, "page": {"blog"}, "file": {v.String()}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.json(http.MethodPut, "/api/pages/blog/versions/"+v.String()+"/comment", adminToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	c, ok, err := s.store.ReadComment(context.Background(), "blog", v)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", c)

	rec = s.form(adminToken, url.Values{"action": {"edit_comment"}, "page": {"blog"}, "file": {v.String()}, "new_comment": {""}})
	require.Equal(t, http.StatusOK, rec.Code)
	_, ok, err = s.store.ReadComment(context.Background(), "blog", v)
	require.NoError(t, err)
	assert.False(t, ok)

	rec = s.form(adminToken, url.Values{"action": {"generate_page_password"}, "page_to_manage": {"blog"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[dispatch.Outcome](t, rec).Secret)

	// missing content field is a validation error, not an empty publish
	rec = s.form(adminToken, url.Values{"action": {"publish"}, "page": {"blog"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_ActionMultipartAndJSON(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/pages", adminToken, map[string]string{"name": "m"}).Code)

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("action", "save_draft"))
	require.NoError(t, mw.WriteField("page", "m"))
	require.NoError(t, mw.WriteField("content", "<b>mp</b>"))
	require.NoError(t, mw.Close())
	rec := s.do(http.MethodPost, "/api/actions", adminToken, mw.FormDataContentType(), strings.NewReader(buf.String()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.json(http.MethodPost, "/api/actions", adminToken, map[string]any{"action": "publish", "page": "m", "content": ""})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "", s.do(http.MethodGet, "/p/m/", "", "", nil).Body.String())

	rec = s.do(http.MethodPost, "/api/actions", adminToken, "application/json", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_UnauthorizedIsUniform(t *testing.T) {
	s := newServer(t)
	s.throttle.limit = 100
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/pages", adminToken, map[string]string{"name": "real"}).Code)

	existing := s.do(http.MethodGet, "/api/pages/real/draft", "wrong", "", nil)
	missing := s.do(http.MethodGet, "/api/pages/ghost/draft", "wrong", "", nil)
	assert.Equal(t, http.StatusForbidden, existing.Code)
	assert.Equal(t, existing.Code, missing.Code)
	assert.Equal(t, existing.Body.String(), missing.Body.String())

	rec := s.form("", url.Values{"action": {"nonsense"}, "page": {"real"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/pages/ghost/draft", adminToken, "", nil).Code)
}

func TestHTTP_PageSecretCannotManageLifecycle(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/pages", adminToken, map[string]string{"name": "a"}).Code)
	secret := decode[dispatch.Outcome](t, s.json(http.MethodPost, "/api/pages/a/secret", adminToken, nil)).Secret

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, "/api/pages/a/", secret, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/pages", secret, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.json(http.MethodPost, "/api/pages", secret, map[string]string{"name": "b"}).Code)
}

func TestHTTP_FailedCredentialsThrottled(t *testing.T) {
	s := newServer(t)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/pages", "bad", "", nil).Code)
	}
	rec := s.do(http.MethodGet, "/api/pages", adminToken, "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/p/nothing/", "", "", nil).Code, "site is not throttled")
}

func TestHTTP_ValidationErrors(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/pages", adminToken, map[string]string{"name": "v"}).Code)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad version id", http.MethodGet, "/api/pages/v/versions/latest", nil, http.StatusBadRequest},
		{"unknown version", http.MethodDelete, "/api/pages/v/versions/2024-01-01_00-00-00", nil, http.StatusNotFound},
		{"publish without content", http.MethodPost, "/api/pages/v/publish", map[string]string{"comment": "x"}, http.StatusBadRequest},
		{"load bad source", http.MethodPost, "/api/pages/v/draft/load", map[string]string{"source": "../etc"}, http.StatusBadRequest},
		{"no published yet", http.MethodGet, "/api/pages/v/published", nil, http.StatusNotFound},
		{"unnamed page", http.MethodPost, "/api/pages", map[string]string{"name": "!!"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.json(tc.method, tc.path, adminToken, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestSite(t *testing.T) {
	s := newServer(t)
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/pages", adminToken, map[string]string{"name": "home"}).Code)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/p/home/", "", "", nil).Code, "nothing published")

	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/pages/home/publish", adminToken, map[string]string{"content": "<p>hello</p>"}).Code)

	rec := s.do(http.MethodGet, "/p/home", "", "", nil)
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/p/home/", rec.Header().Get("Location"))
	redirectRoute := s.route

	rec = s.do(http.MethodGet, "/p/home/", "", "", nil)
	assert.Equal(t, "<p>hello</p>", rec.Body.String())
	assert.NotEqual(t, redirectRoute, s.route, "redirect and page share a route label")

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/p/home/extra", "", "", nil).Code)

	rec = s.do(http.MethodHead, "/p/home/", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/p/ho%20me/", "", "", nil).Code)
}
