package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/citepipe/citepipe/internal/citation"
)

func TestFetchReturnsBodyAndContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>ok</title></head></html>"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	body, contentType, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, string(body), "<title>ok</title>")
	require.Equal(t, "text/html; charset=utf-8", contentType)
}

func TestFetchRateLimitedIsRetryable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, citation.ErrRateLimited)
	require.Equal(t, citation.CategoryRetryable, citation.ClassifyError(err))
}

func TestFetchNotFoundIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	_, _, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func newRobotsDisallowServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /\n"))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head><title>private</title></head></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchHonorsRobotsByDefault(t *testing.T) {
	t.Parallel()

	srv := newRobotsDisallowServer(t)

	f := New(Config{Timeout: 5 * time.Second})
	_, _, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.Error(t, err)
	require.ErrorContains(t, err, "robots")
}

func TestFetchIgnoreRobotsOverride(t *testing.T) {
	t.Parallel()

	srv := newRobotsDisallowServer(t)

	f := New(Config{Timeout: 5 * time.Second, IgnoreRobots: true})
	body, _, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Contains(t, string(body), "private")
}
