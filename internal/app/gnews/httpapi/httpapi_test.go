package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gnlink.local/internal/app/gnews"
	"gnlink.local/internal/app/gnews/batch"
	"gnlink.local/internal/app/gnews/repo"
	"gnlink.local/internal/app/gnews/resolver"
	"gnlink.local/internal/platform/auth"
	"gnlink.local/internal/platform/httpmiddleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodable(target string) string {
	b := []byte{0x08, 0x13, 0x22, byte(len(target))}
	b = append(b, target...)
	b = append(b, 0xd2, 0x01, 0x00)
	return "https://news.google.com/rss/articles/" + base64.RawURLEncoding.EncodeToString(b) + "?oc=5"
}

type fakeService struct {
	mu          sync.Mutex
	results     map[string]gnews.Resolution
	errs        map[string]error
	lastOpts    gnews.ResolveOptions
	invalidated []string
}

func newFakeService() *fakeService {
	return &fakeService{results: map[string]gnews.Resolution{}, errs: map[string]error{}}
}

func (f *fakeService) Resolve(_ context.Context, rawURL string, opts gnews.ResolveOptions) (gnews.Resolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	if err, ok := f.errs[rawURL]; ok {
		return gnews.Resolution{}, err
	}
	if r, ok := f.results[rawURL]; ok {
		return r, nil
	}
	if err := gnews.ValidateSourceURL(rawURL); err != nil {
		return gnews.Resolution{}, err
	}
	return gnews.Resolution{}, gnews.ErrUnresolvable
}

func (f *fakeService) Invalidate(_ context.Context, sourceURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, sourceURL)
	return nil
}

// fakeBatch 逐条调用 fakeService，保持顺序。
type fakeBatch struct{ svc *fakeService }

func (b fakeBatch) ResolveAll(ctx context.Context, urls []string, opts gnews.ResolveOptions) []batch.Outcome {
	out := make([]batch.Outcome, len(urls))
	for i, u := range urls {
		res, err := b.svc.Resolve(ctx, u, opts)
		out[i] = batch.Outcome{URL: u, Attempts: 1, Err: err}
		if err == nil {
			out[i].Resolution = &res
		}
	}
	return out
}

type fakePages struct {
	image   string
	preview resolver.Preview
	err     error
}

func (p fakePages) ExtractOgImage(context.Context, string) (string, error) { return p.image, p.err }
func (p fakePages) Preview(context.Context, string) (resolver.Preview, error) {
	return p.preview, p.err
}

type fakeStore struct {
	rows map[int64]gnews.Resolution
	err  error
}

func (s *fakeStore) FindByID(_ context.Context, id int64) (*gnews.Resolution, error) {
	if s.err != nil {
		return nil, s.err
	}
	r, ok := s.rows[id]
	if !ok {
		return nil, gnews.ErrNotFound
	}
	return &r, nil
}

func (s *fakeStore) ListRecent(_ context.Context, limit int, cursor int64) (*repo.Page, error) {
	if s.err != nil {
		return nil, s.err
	}
	page := &repo.Page{}
	for id := int64(1000); id > 0 && len(page.Items) < limit; id-- {
		if cursor != 0 && id >= cursor {
			continue
		}
		if r, ok := s.rows[id]; ok {
			page.Items = append(page.Items, r)
		}
	}
	if len(page.Items) == limit {
		next := page.Items[len(page.Items)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) (string, error) {
	r, ok := s.rows[id]
	if !ok {
		return "", gnews.ErrNotFound
	}
	delete(s.rows, id)
	return r.SourceURL, nil
}

type fakeUsers map[string]repo.User

func (u fakeUsers) FindByUsername(_ context.Context, username string) (repo.User, error) {
	if user, ok := u[username]; ok {
		return user, nil
	}
	return repo.User{}, repo.ErrUserNotFound
}

type fakeQueue struct{ enqueued []string }

func (q *fakeQueue) Enqueue(_ context.Context, feedURL string) (string, error) {
	q.enqueued = append(q.enqueued, feedURL)
	return fmt.Sprintf("%d-0", len(q.enqueued)), nil
}

type fixture struct {
	engine *gin.Engine
	svc    *fakeService
	store  *fakeStore
	queue  *fakeQueue
	tokens *auth.HS256Service
	pages  *fakePages
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ts, err := auth.NewHS256Service("secret", "gnlink", time.Hour)
	require.NoError(t, err)
	hash, err := auth.HashPassword("correct-horse")
	require.NoError(t, err)

	f := &fixture{
		svc:    newFakeService(),
		store:  &fakeStore{rows: map[int64]gnews.Resolution{}},
		queue:  &fakeQueue{},
		tokens: ts,
		pages:  &fakePages{},
	}
	f.engine = gin.New()
	f.engine.Use(httpmiddleware.RequestID())
	Register(f.engine, Deps{
		Service:     f.svc,
		Batch:       fakeBatch{svc: f.svc},
		Pages:       f.pages,
		Resolutions: f.store,
		Users: fakeUsers{
			"ops": {ID: 1, Username: "ops", PasswordHash: hash, Role: auth.RoleAdmin},
		},
		Tokens: ts,
		Queue:  f.queue,
	})
	return f
}

func (f *fixture) do(method, target string, body any, token string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *fixture) adminToken(t *testing.T) string {
	t.Helper()
	tok, err := f.tokens.Sign("1", auth.RoleAdmin)
	require.NoError(t, err)
	return tok
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestDecode(t *testing.T) {
	f := newFixture(t)
	target := "https://example.com/story"

	w := f.do(http.MethodGet, "/api/v1/decode?url="+decodable(target), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[DecodeResponse](t, w)
	assert.True(t, resp.OK)
	assert.Equal(t, target, resp.DecodedURL)

	w = f.do(http.MethodGet, "/api/v1/decode?url=https://example.com/x", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[DecodeResponse](t, w)
	assert.False(t, resp.OK)
	assert.Equal(t, gnews.ErrNotGoogleNews.Error(), resp.Reason)

	w = f.do(http.MethodGet, "/api/v1/decode", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolve_SuccessAndErrorMapping(t *testing.T) {
	f := newFixture(t)
	src := "https://news.google.com/rss/articles/abc"
	f.svc.results[src] = gnews.Resolution{ID: 7, SourceURL: src, ResolvedURL: "https://example.com/a", Method: gnews.MethodRedirect}

	w := f.do(http.MethodPost, "/api/v1/resolve", ResolveRequest{URL: src, FetchImage: true, Verify: true}, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[ResolutionResponse](t, w)
	assert.Equal(t, "https://example.com/a", resp.ResolvedURL)
	assert.Equal(t, gnews.MethodRedirect, resp.Method)
	wantID, _ := gnews.EncodeID(7)
	assert.Equal(t, wantID, resp.ID)
	assert.Equal(t, gnews.ResolveOptions{FetchImage: true, Verify: true}, f.svc.lastOpts)

	f.svc.errs["https://timeout.example/"] = fmt.Errorf("resolve redirect: %w", context.DeadlineExceeded)
	f.svc.errs["https://down.example/"] = fmt.Errorf("resolve redirect: %w", errors.New("connection refused"))
	f.svc.errs["https://internal.example/"] = fmt.Errorf("resolve redirect: %w", resolver.ErrForbiddenAddress)

	cases := []struct {
		url  string
		want int
	}{
		{"ftp://example.com", http.StatusBadRequest},
		{"https://news.google.com/rss/articles/opaque", http.StatusUnprocessableEntity},
		{"https://timeout.example/", http.StatusGatewayTimeout},
		{"https://down.example/", http.StatusBadGateway},
		{"https://internal.example/", http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := f.do(http.MethodPost, "/api/v1/resolve", ResolveRequest{URL: tc.url}, "")
		assert.Equal(t, tc.want, w.Code, tc.url)
		body := decodeBody[httpmiddleware.ErrorResponse](t, w)
		assert.Equal(t, tc.want, body.Code)
		assert.NotEmpty(t, body.RequestID)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatch(t *testing.T) {
	f := newFixture(t)
	f.svc.results["https://a.example/"] = gnews.Resolution{SourceURL: "https://a.example/", ResolvedURL: "https://x.example/1", Method: gnews.MethodDecoded}

	w := f.do(http.MethodPost, "/api/v1/resolve/batch", BatchRequest{URLs: []string{"https://a.example/", "nope"}}, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[BatchResponse](t, w)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Resolved)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].OK)
	assert.Equal(t, "https://x.example/1", resp.Results[0].Resolution.ResolvedURL)
	assert.Equal(t, "nope", resp.Results[1].URL)
	assert.Equal(t, gnews.ErrInvalidURL.Error(), resp.Results[1].Error)

	w = f.do(http.MethodPost, "/api/v1/resolve/batch", BatchRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	many := make([]string, maxBatchURLs+1)
	for i := range many {
		many[i] = fmt.Sprintf("https://a.example/%d", i)
	}
	w = f.do(http.MethodPost, "/api/v1/resolve/batch", BatchRequest{URLs: many}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRedirect(t *testing.T) {
	f := newFixture(t)
	src := "https://news.google.com/rss/articles/abc"
	f.svc.results[src] = gnews.Resolution{SourceURL: src, ResolvedURL: "https://example.com/a", Method: gnews.MethodDecoded}

	w := f.do(http.MethodGet, "/r?url="+src, nil, "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/a", w.Header().Get("Location"))

	w = f.do(http.MethodGet, "/r?url=https://news.google.com/rss/articles/unknown", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(http.MethodGet, "/r", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOgImageAndPreview(t *testing.T) {
	f := newFixture(t)
	f.pages.image = "https://cdn.example/img.jpg"
	f.pages.preview = resolver.Preview{URL: "https://example.com/a", Title: "Hello"}

	w := f.do(http.MethodGet, "/api/v1/og-image?url=https://example.com/a", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, OgImageResponse{URL: "https://example.com/a", ImageURL: "https://cdn.example/img.jpg"}, decodeBody[OgImageResponse](t, w))

	w = f.do(http.MethodGet, "/api/v1/preview?url=https://example.com/a", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello", decodeBody[resolver.Preview](t, w).Title)

	w = f.do(http.MethodGet, "/api/v1/og-image?url=example.com", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.pages.err = &resolver.StatusError{URL: "https://example.com/a", Status: 500}
	w = f.do(http.MethodGet, "/api/v1/og-image?url=https://example.com/a", nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestOgImage_NoImageIsNotAnError(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/v1/og-image?url=https://example.com/a", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", decodeBody[OgImageResponse](t, w).ImageURL)
}

func TestResolutions_GetAndList(t *testing.T) {
	f := newFixture(t)
	for id := int64(1); id <= 3; id++ {
		f.store.rows[id] = gnews.Resolution{ID: id, SourceURL: fmt.Sprintf("https://s.example/%d", id), ResolvedURL: "https://x.example/", Method: gnews.MethodDecoded}
	}
	id2, _ := gnews.EncodeID(2)

	w := f.do(http.MethodGet, "/api/v1/resolutions/"+id2, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://s.example/2", decodeBody[ResolutionResponse](t, w).SourceURL)

	w = f.do(http.MethodGet, "/api/v1/resolutions/not-an-id", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	id9, _ := gnews.EncodeID(9)
	w = f.do(http.MethodGet, "/api/v1/resolutions/"+id9, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/resolutions?limit=2", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeBody[ResolutionList](t, w)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "https://s.example/3", page.Items[0].SourceURL)
	assert.Equal(t, id2, page.NextCursor)

	w = f.do(http.MethodGet, "/api/v1/resolutions?limit=2&cursor="+page.NextCursor, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page = decodeBody[ResolutionList](t, w)
	require.Len(t, page.Items, 1)
	assert.Empty(t, page.NextCursor)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/resolutions?limit=0", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/resolutions?cursor=!!", nil, "").Code)

	f.store.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/v1/resolutions", nil, "").Code)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/login", LoginRequest{Username: "ops", Password: "correct-horse"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	token := decodeBody[LoginResponse](t, w).Token
	claims, err := f.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.UserID)
	assert.Equal(t, auth.RoleAdmin, claims.Role)

	w = f.do(http.MethodPost, "/api/v1/login", LoginRequest{Username: "ops", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = f.do(http.MethodPost, "/api/v1/login", LoginRequest{Username: "nobody", Password: "x"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_RequiresAdminToken(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodDelete, "/api/v1/admin/cache?url=https://a.example/", nil, "").Code)

	userTok, err := f.tokens.Sign("2", auth.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodDelete, "/api/v1/admin/cache?url=https://a.example/", nil, userTok).Code)
}

func TestAdmin_InvalidateCollectDelete(t *testing.T) {
	f := newFixture(t)
	tok := f.adminToken(t)

	w := f.do(http.MethodDelete, "/api/v1/admin/cache?url=https://a.example/", nil, tok)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"https://a.example/"}, f.svc.invalidated)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodDelete, "/api/v1/admin/cache", nil, tok).Code)

	w = f.do(http.MethodPost, "/api/v1/admin/collect", CollectRequest{FeedURL: "https://news.google.com/rss/search?q=go"}, tok)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1-0", decodeBody[CollectResponse](t, w).MessageID)
	assert.Equal(t, []string{"https://news.google.com/rss/search?q=go"}, f.queue.enqueued)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/v1/admin/collect", CollectRequest{FeedURL: "rss"}, tok).Code)

	f.store.rows[5] = gnews.Resolution{ID: 5, SourceURL: "https://s.example/5"}
	id5, _ := gnews.EncodeID(5)
	w = f.do(http.MethodDelete, "/api/v1/admin/resolutions/"+id5, nil, tok)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, f.svc.invalidated, "https://s.example/5")
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/v1/admin/resolutions/"+id5, nil, tok).Code)
}

func TestAdmin_CollectWithoutQueue(t *testing.T) {
	ts, err := auth.NewHS256Service("secret", "gnlink", time.Hour)
	require.NoError(t, err)
	r := gin.New()
	Register(r, Deps{Service: newFakeService(), Tokens: ts})

	tok, _ := ts.Sign("1", auth.RoleAdmin)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/collect", strings.NewReader(`{"feed_url":"https://a.example/"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
