package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/imagecrawl/internal/model"
)

// Factory builds the pipeline and the empty run for one seed.
type Factory func(seed string) (*Pipeline, *model.Run, error)

// BatchProcessor runs one pipeline per seed.
//
// Design decision: Seeds run one after another. Runs share the output
// directory and the terminal progress line, and the file name dedup of the
// downloader only holds within a single run.
type BatchProcessor struct {
	factory Factory
	logger  *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger for batch-level messages.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory: factory,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// Process runs every seed in order and returns the runs in seed order. A seed
// whose pipeline could not be built gets a run with ErrorMessage set.
// callback, if non-nil, is called once per finished run before the next seed
// starts.
//
// Seeds not started before ctx is cancelled have a nil entry.
func (bp *BatchProcessor) Process(ctx context.Context, seeds []string, callback func(run *model.Run, index int)) []*model.Run {
	bp.logger.Info("starting batch", "sites", len(seeds))
	start := time.Now()

	runs := make([]*model.Run, len(seeds))
	for i, seed := range seeds {
		if ctx.Err() != nil {
			break
		}
		runs[i] = bp.runOne(ctx, seed)
		if callback != nil {
			callback(runs[i], i)
		}
	}

	bp.logger.Info("batch complete", "sites", len(seeds), "elapsed", time.Since(start))
	return runs
}

func (bp *BatchProcessor) runOne(ctx context.Context, seed string) *model.Run {
	p, run, err := bp.factory(seed)
	if err != nil {
		bp.logger.Warn("cannot start run", "seed", seed, "error", err)
		failed := model.NewRun(seed, 0, "")
		failed.ErrorMessage = err.Error()
		failed.FinishedAt = time.Now()
		return failed
	}

	if err := p.Execute(ctx, run); err != nil {
		bp.logger.Warn("run ended early", "seed", seed, "error", err)
	}
	return run
}
