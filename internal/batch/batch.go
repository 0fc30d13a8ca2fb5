// Package batch fans the processing cascade out over a bounded worker
// pool. Each URL is processed independently; one failure never stops the
// batch.
package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
	"github.com/citepipe/citepipe/internal/metrics"
)

// Runner executes the processing cascade for one URL.
type Runner interface {
	Process(ctx context.Context, urlID uuid.UUID) (citation.ProcessingResult, error)
}

// Config controls Processor behavior.
type Config struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// Result pairs one URL with its processing outcome.
type Result struct {
	URLID  uuid.UUID
	Result citation.ProcessingResult
	Err    error
}

// Summary aggregates a finished batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	ByState   map[citation.ProcessingStatus]int
}

// Processor runs the cascade over many URLs with bounded concurrency.
type Processor struct {
	runner Runner
	store  citation.Store
	cfg    Config
	logger *zap.Logger
}

// New builds a Processor. Workers defaults to 4.
func New(runner Runner, store citation.Store, cfg Config, logger *zap.Logger) (*Processor, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Processor{runner: runner, store: store, cfg: cfg, logger: logger}, nil
}

// Run processes the given URLs and blocks until all workers drain or the
// context is canceled. Results come back in completion order.
func (p *Processor) Run(ctx context.Context, urlIDs []uuid.UUID) []Result {
	jobs := make(chan uuid.UUID)
	out := make(chan Result, len(urlIDs))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, jobs, out)
		}()
	}

	go func() {
		defer close(jobs)
		for _, id := range urlIDs {
			if ctx.Err() != nil {
				return
			}
			select {
			case jobs <- id:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(out)

	results := make([]Result, 0, len(urlIDs))
	for r := range out {
		results = append(results, r)
	}
	return results
}

// RunPending lists not_started URLs and processes up to limit of them.
// A limit of zero or less means no cap.
func (p *Processor) RunPending(ctx context.Context, limit int) ([]Result, error) {
	if p.store == nil {
		return nil, fmt.Errorf("no store configured for pending lookup")
	}
	status := citation.StatusNotStarted
	entities, err := p.store.ListURLs(ctx, &status)
	if err != nil {
		return nil, fmt.Errorf("list pending urls: %w", err)
	}
	if limit > 0 && len(entities) > limit {
		entities = entities[:limit]
	}
	ids := make([]uuid.UUID, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	p.logger.Info("batch starting",
		zap.Int("urls", len(ids)),
		zap.Int("workers", p.cfg.Workers),
	)
	return p.Run(ctx, ids), nil
}

// Summarize folds results into counts.
func Summarize(results []Result) Summary {
	s := Summary{
		Total:   len(results),
		ByState: make(map[citation.ProcessingStatus]int),
	}
	for _, r := range results {
		if r.Err == nil && r.Result.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if r.Result.NewState != "" {
			s.ByState[r.Result.NewState]++
		}
	}
	return s
}

func (p *Processor) work(ctx context.Context, jobs <-chan uuid.UUID, out chan<- Result) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for id := range jobs {
		if ctx.Err() != nil {
			out <- Result{URLID: id, Err: ctx.Err()}
			continue
		}
		result, err := p.runner.Process(ctx, id)
		if err != nil {
			p.logger.Error("batch url failed",
				zap.String("url_id", id.String()),
				zap.Error(err),
			)
		}
		out <- Result{URLID: id, Result: result, Err: err}
	}
}
