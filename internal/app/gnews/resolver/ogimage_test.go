package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func htmlServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "" {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractOgImage_Match(t *testing.T) {
	srv := htmlServer(t, `<html><head>
<meta property="og:image" content="https://img.example.com/a.jpg">
<meta property="og:image" content="https://img.example.com/b.jpg">
</head></html>`)

	img, err := newTestClient().ExtractOgImage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/a.jpg", img)
}

func TestExtractOgImage_CaseInsensitive(t *testing.T) {
	srv := htmlServer(t, `<META PROPERTY='og:image' CONTENT='https://img.example.com/c.png' />`)

	img, err := newTestClient().ExtractOgImage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example.com/c.png", img)
}

func TestExtractOgImage_NoTag(t *testing.T) {
	srv := htmlServer(t, `<html><head><title>x</title></head></html>`)

	img, err := newTestClient().ExtractOgImage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, img)
}

func TestExtractOgImage_ContentBeforePropertyIsNotMatched(t *testing.T) {
	srv := htmlServer(t, `<meta content="https://img.example.com/a.jpg" property="og:image">`)

	img, err := newTestClient().ExtractOgImage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, img)
}

func TestExtractOgImage_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := newTestClient().ExtractOgImage(context.Background(), addr)
	assert.Error(t, err)
}

func TestMatchOgImage_UnescapesEntities(t *testing.T) {
	got := matchOgImage([]byte(`<meta property="og:image" content="https://img.example.com/a.jpg?w=1&amp;h=2">`))
	assert.Equal(t, "https://img.example.com/a.jpg?w=1&h=2", got)
}

func TestPreview_OpenGraphAndFallback(t *testing.T) {
	srv := htmlServer(t, `<html><head>
<title>Fallback Title</title>
<meta name="description" content="Fallback description">
<meta content="/img/lead.jpg" property="og:image">
<meta property="og:site_name" content="Skilled Nursing News">
<meta property="og:type" content="article">
</head><body></body></html>`)

	p, err := newTestClient().Preview(context.Background(), srv.URL+"/story")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/story", p.FinalURL)
	assert.Equal(t, "Fallback Title", p.Title)
	assert.Equal(t, "Fallback description", p.Description)
	assert.Equal(t, "Skilled Nursing News", p.SiteName)
	assert.Equal(t, "article", p.Type)
	assert.Equal(t, srv.URL+"/img/lead.jpg", p.ImageURL)
}
