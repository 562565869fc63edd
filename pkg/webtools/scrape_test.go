package webtools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haruo/kaigi/pkg/toolexecutor"
)

func newScrapeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Scrape_ExtractsText(t *testing.T) {
	srv := newScrapeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "KaigiBot")
		_, _ = w.Write([]byte(`<html><head>
			<title>Annual Report</title>
			<style>body { color: red }</style>
			<script>var tracker = 1;</script>
		</head><body>
			<nav>Home | About</nav>
			<h1>Quarterly   Results</h1>
			<p>Revenue &amp; growth
			were strong.</p>
			<footer>contact us</footer>
		</body></html>`))
	})

	out, err := New(DefaultConfig()).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "Annual Report Quarterly Results Revenue & growth were strong.", out)
	assert.NotContains(t, out, "tracker")
	assert.NotContains(t, out, "color: red")
	assert.NotContains(t, out, "Home | About")
	assert.NotContains(t, out, "contact us")
}

func TestClient_Scrape_CapsExcerpt(t *testing.T) {
	srv := newScrapeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + strings.Repeat("word ", 500) + "</p></body></html>"))
	})

	out, err := New(DefaultConfig()).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(out, "..."))
	assert.Equal(t, maxExcerpt+3, utf8.RuneCountInString(out))
}

func TestClient_Scrape_HTTPError(t *testing.T) {
	srv := newScrapeServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, err := New(DefaultConfig()).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to scrape webpage")
}

func TestClient_Scrape_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(DefaultConfig()).Scrape(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to scrape webpage")
}

func TestExtractText_MultibyteCap(t *testing.T) {
	text, err := extractText("<p>" + strings.Repeat("字", maxExcerpt+50) + "</p>")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(text, "..."))
	assert.Equal(t, maxExcerpt+3, utf8.RuneCountInString(text))
	assert.True(t, utf8.ValidString(text))
}

func TestClient_Definitions_ScrapeWebpage(t *testing.T) {
	srv := newScrapeServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Page body text.</p></body></html>"))
	})

	exec := toolexecutor.New()
	for _, def := range New(DefaultConfig()).Definitions() {
		require.NoError(t, exec.Register(def))
	}

	result := exec.Execute(context.Background(), "scrape_webpage", map[string]interface{}{
		"url": srv.URL,
	})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Page body text.", result.Output)

	broken := exec.Execute(context.Background(), "scrape_webpage", map[string]interface{}{
		"url": "http://127.0.0.1:1/nothing",
	})
	require.False(t, broken.Success)
	assert.Equal(t, toolexecutor.KindApplication, broken.Kind)
	assert.Contains(t, broken.Error, "Failed to scrape webpage")
}
