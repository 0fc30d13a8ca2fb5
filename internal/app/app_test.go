package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/citepipe/citepipe/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Server:       config.ServerConfig{Port: 8080},
		Database:     config.DatabaseConfig{Driver: "memory"},
		ContentStore: config.ContentStoreConfig{Backend: "memory"},
		Fetcher:      config.FetcherConfig{TimeoutSeconds: 5},
		RefManager:   config.RefManagerConfig{BaseURL: "http://localhost:23119", TimeoutSeconds: 5},
		Pipeline:     config.PipelineConfig{MaxAttempts: 3, StageTimeoutSeconds: 10},
		Batch:        config.BatchConfig{Workers: 2},
	}
}

func TestNewWiresMemoryBackends(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Store())
	require.NotNil(t, a.Service())
	require.NotNil(t, a.Batch())
	require.NotNil(t, a.Checker())

	entity, err := a.Service().CreateURL(context.Background(), "sec-1", "https://example.com/paper")
	require.NoError(t, err)
	got, err := a.Service().GetURL(context.Background(), entity.ID)
	require.NoError(t, err)
	require.Equal(t, entity.ID, got.ID)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig()
	cfg.Database.Driver = "mysql"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewRejectsUnknownContentBackend(t *testing.T) {
	t.Parallel()

	cfg := memoryConfig()
	cfg.ContentStore.Backend = "s3"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}
