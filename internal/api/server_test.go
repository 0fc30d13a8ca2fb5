package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/app"
	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/config"
)

// fakeRefServer answers the reference manager routes the handlers reach.
func fakeRefServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"key":%q,"itemType":"journalArticle","title":"Known item"}`, r.URL.Path[len("/items/"):])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	refs := fakeRefServer(t)
	cfg := config.Config{
		Server:       config.ServerConfig{Port: 8080},
		Database:     config.DatabaseConfig{Driver: "memory"},
		ContentStore: config.ContentStoreConfig{Backend: "memory"},
		Fetcher:      config.FetcherConfig{TimeoutSeconds: 5},
		RefManager:   config.RefManagerConfig{BaseURL: refs.URL, TimeoutSeconds: 5, RequestsPerSecond: 1000},
		Pipeline:     config.PipelineConfig{MaxAttempts: 3, StageTimeoutSeconds: 10},
		Batch:        config.BatchConfig{Workers: 2},
	}
	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return NewServer(a.Service(), a.Batch(), cfg, zap.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createURL(t *testing.T, h http.Handler, url string) citation.URLEntity {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/urls", createURLRequest{SectionID: "sec-1", URL: url})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entity citation.URLEntity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entity))
	return entity
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCreateURLAndDuplicate(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	entity := createURL(t, h, "https://example.com/paper")
	require.Equal(t, citation.StatusNotStarted, entity.ProcessingStatus)

	rec := doJSON(t, h, http.MethodPost, "/v1/urls", createURLRequest{SectionID: "sec-1", URL: "https://example.com/paper"})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetURLErrors(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/urls/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/v1/urls/00000000-0000-0000-0000-000000000001", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuardRefusalIsConflict(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	entity := createURL(t, h, "https://example.com/ignored")

	rec := doJSON(t, h, http.MethodPost, "/v1/urls/"+entity.ID.String()+"/intent", intentRequest{Intent: "ignore"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/v1/urls/"+entity.ID.String()+"/process", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	var result citation.ProcessingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.Success)
	require.Equal(t, citation.CategoryValidation, result.Category)
}

func TestManualLinkFlow(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()
	entity := createURL(t, h, "https://example.com/manual")

	rec := doJSON(t, h, http.MethodPost, "/v1/urls/"+entity.ID.String()+"/link", linkRequest{ItemKey: "KEY00001"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result citation.ProcessingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Success)
	require.Equal(t, citation.StatusStoredCustom, result.NewState)

	rec = doJSON(t, h, http.MethodGet, "/v1/urls/"+entity.ID.String()+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Attempts []citation.ProcessingAttempt `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Attempts, 1)
	require.Equal(t, "manual_link", history.Attempts[0].Stage)

	rec = doJSON(t, h, http.MethodPost, "/v1/urls/"+entity.ID.String()+"/unlink", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIntegrityScanEmpty(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/integrity/scan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"issues":null}`, rec.Body.String())
}

func TestBatchEmptyPending(t *testing.T) {
	t.Parallel()
	h := newTestServer(t).Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/batch", batchRequest{Limit: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Summary struct {
			Total int `json:"Total"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Zero(t, out.Summary.Total)
}
