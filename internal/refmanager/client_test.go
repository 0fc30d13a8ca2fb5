package refmanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{
		BaseURL:           srv.URL,
		APIKey:            "test-key",
		RequestsPerSecond: 1000,
		RetryAttempts:     3,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestTranslateIdentifier(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/translate/identifier", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "10.1000/xyz123", body["identifier"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"key":      "ABCD1234",
			"itemType": "journalArticle",
			"title":    "A Paper",
			"date":     "2023-05-10",
		})
	}))

	item, err := c.TranslateIdentifier(context.Background(), "10.1000/xyz123")
	require.NoError(t, err)
	require.Equal(t, "ABCD1234", item.Key)
	require.Equal(t, "journalArticle", item.ItemType)
}

func TestNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	calls := int32(0)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "no such item", http.StatusNotFound)
	}))

	_, err := c.GetItem(context.Background(), "MISSING1")
	require.Error(t, err)
	require.True(t, IsNotFound(err))
	require.Equal(t, citation.CategoryPermanent, citation.ClassifyError(err))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "permanent failures must not be retried")
}

func TestRateLimitIsRetriedThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := int32(0)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"key": "ABCD1234", "itemType": "webpage"})
	}))

	item, err := c.GetItem(context.Background(), "ABCD1234")
	require.NoError(t, err)
	require.Equal(t, "ABCD1234", item.Key)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFindItemByURL(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "https://example.com/known" {
			_ = json.NewEncoder(w).Encode([]map[string]any{{"key": "ABCD1234", "itemType": "webpage"}})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))

	key, found, err := c.FindItemByURL(context.Background(), "https://example.com/known")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ABCD1234", key)

	_, found, err = c.FindItemByURL(context.Background(), "https://example.com/unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCreateItem(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body wireItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "webpage", body.ItemType)
		require.Equal(t, "https://example.com/page", body.URL)
		_ = json.NewEncoder(w).Encode(map[string]string{"key": "NEWKEY99"})
	}))

	key, err := c.CreateItem(context.Background(), citation.ExtractedMetadata{
		Title:    "A Page",
		ItemType: "webpage",
	}, "https://example.com/page")
	require.NoError(t, err)
	require.Equal(t, "NEWKEY99", key)
}
