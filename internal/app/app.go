// Package app initializes and holds long-lived application services,
// acting as a dependency injection container. It is initialized once at
// startup and passed to the components that need it.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/ai"
	"github.com/citepipe/citepipe/internal/batch"
	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/clock/system"
	"github.com/citepipe/citepipe/internal/config"
	contentfs "github.com/citepipe/citepipe/internal/contentstore/fs"
	contentmem "github.com/citepipe/citepipe/internal/contentstore/memory"
	collyfetcher "github.com/citepipe/citepipe/internal/fetcher/colly"
	idgen "github.com/citepipe/citepipe/internal/id/uuid"
	"github.com/citepipe/citepipe/internal/integrity"
	"github.com/citepipe/citepipe/internal/logging"
	"github.com/citepipe/citepipe/internal/orchestrator"
	"github.com/citepipe/citepipe/internal/refmanager"
	"github.com/citepipe/citepipe/internal/service"
	storemem "github.com/citepipe/citepipe/internal/store/memory"
	storepg "github.com/citepipe/citepipe/internal/store/postgres"
)

// App holds the shared, long-lived services for the application.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   citation.Store
	service *service.Service
	batch   *batch.Processor
	checker *integrity.Checker

	pgStore *storepg.Store
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger instance.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store exposes the configured URL store.
func (a *App) Store() citation.Store { return a.store }

// Service returns the guarded operations facade.
func (a *App) Service() *service.Service { return a.service }

// Batch returns the bounded batch processor.
func (a *App) Batch() *batch.Processor { return a.batch }

// Checker returns the integrity checker.
func (a *App) Checker() *integrity.Checker { return a.checker }

// New creates and initializes an App from configuration. It fails fast
// when any critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &App{cfg: cfg, logger: logger}

	switch cfg.Database.Driver {
	case "postgres":
		logger.Info("connecting to postgres")
		pg, err := storepg.NewStore(ctx, storepg.Config{
			DSN:      cfg.Database.DSN,
			MaxConns: int32(cfg.Database.MaxConns),
			MinConns: int32(cfg.Database.MinConns),
		})
		if err != nil {
			return nil, fmt.Errorf("initialize postgres store: %w", err)
		}
		a.pgStore = pg
		a.store = pg
	case "memory":
		logger.Info("using in-memory store; state is not persisted")
		a.store = storemem.NewStore()
	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}

	var contentStore citation.ContentStore
	switch cfg.ContentStore.Backend {
	case "fs":
		contentStore, err = contentfs.New(contentfs.Config{BaseDir: cfg.ContentStore.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("initialize content store: %w", err)
		}
	case "memory":
		contentStore = contentmem.New()
	default:
		return nil, fmt.Errorf("unknown contentstore backend: %s", cfg.ContentStore.Backend)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Fetcher.UserAgent,
		Timeout:      time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		IgnoreRobots: cfg.Fetcher.IgnoreRobots,
	})

	refs, err := refmanager.NewClient(refmanager.Config{
		BaseURL:           cfg.RefManager.BaseURL,
		APIKey:            cfg.RefManager.APIKey,
		Timeout:           time.Duration(cfg.RefManager.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.RefManager.RequestsPerSecond,
		RetryAttempts:     uint(cfg.RefManager.RetryAttempts),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize reference manager client: %w", err)
	}

	var extractor citation.AIExtractor
	if cfg.AI.APIKey != "" {
		extractor, err = ai.New(ai.Config{
			APIKey:         cfg.AI.APIKey,
			Model:          cfg.AI.Model,
			Timeout:        time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
			MaxPromptChars: cfg.AI.MaxPromptChars,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize ai extractor: %w", err)
		}
	} else {
		logger.Info("no ai api key configured; ai fallback stage disabled")
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.MaxAttempts = cfg.Pipeline.MaxAttempts
	orchCfg.StageTimeout = cfg.StageTimeout()
	orchCfg.RequireAIApproval = cfg.Pipeline.RequireAIApproval
	if len(cfg.Pipeline.TranslatorDomains) > 0 {
		orchCfg.TranslatorDomains = cfg.Pipeline.TranslatorDomains
	}

	clock := system.New()
	orch, err := orchestrator.New(orchCfg, orchestrator.Deps{
		Store:        a.store,
		ContentStore: contentStore,
		RefManager:   refs,
		AIExtractor:  extractor,
		Fetcher:      fetcher,
		Clock:        clock,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize orchestrator: %w", err)
	}

	a.checker = integrity.NewChecker(a.store, logger)

	a.service, err = service.New(service.Deps{
		Store:        a.store,
		Orchestrator: orch,
		Checker:      a.checker,
		RefManager:   refs,
		Clock:        clock,
		IDGenerator:  idgen.New(),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize service: %w", err)
	}

	a.batch, err = batch.New(a.service, a.store, batch.Config{Workers: cfg.Batch.Workers}, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize batch processor: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("database", cfg.Database.Driver),
		zap.String("contentstore", cfg.ContentStore.Backend),
		zap.Bool("ai_enabled", extractor != nil),
	)
	return a, nil
}

// Close gracefully shuts down the App's services.
func (a *App) Close() {
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	// Best effort; stderr sync failures on shutdown are not actionable.
	_ = a.logger.Sync()
}
