// Package fs implements a local filesystem content cache.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/citepipe/citepipe/internal/citation"
)

// Config captures the parameters for the filesystem content cache.
type Config struct {
	// BaseDir is the root directory where cached content is stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store caches fetched content on the local filesystem, sharded by the
// first two characters of the URL id. The content type is kept in a
// sidecar file next to the payload.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed content cache rooted at cfg.BaseDir.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Store{baseDir: cfg.BaseDir}, nil
}

func (s *Store) paths(urlID uuid.UUID) (dataPath, ctypePath string) {
	id := urlID.String()
	dir := filepath.Join(s.baseDir, id[:2])
	return filepath.Join(dir, id), filepath.Join(dir, id+".ctype")
}

// PutContent writes the payload and its content type. The payload lands
// via a temp-file rename so readers never see a partial write.
func (s *Store) PutContent(_ context.Context, urlID uuid.UUID, data []byte, contentType string) error {
	dataPath, ctypePath := s.paths(urlID)
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return fmt.Errorf("create shard directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("publish payload: %w", err)
	}
	if err := os.WriteFile(ctypePath, []byte(contentType), 0o600); err != nil {
		return fmt.Errorf("write content type: %w", err)
	}
	return nil
}

// GetContent returns the cached payload and content type, or ErrNoContent.
func (s *Store) GetContent(_ context.Context, urlID uuid.UUID) ([]byte, string, error) {
	dataPath, ctypePath := s.paths(urlID)
	data, err := os.ReadFile(dataPath) // #nosec G304 -- path derived from a UUID under baseDir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", citation.ErrNoContent
		}
		return nil, "", fmt.Errorf("read payload: %w", err)
	}
	ctype, err := os.ReadFile(ctypePath) // #nosec G304 -- path derived from a UUID under baseDir
	if err != nil && !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("read content type: %w", err)
	}
	return data, string(ctype), nil
}
