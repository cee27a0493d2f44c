// Package worker implements the ingest execution loop.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/askmysite/askmysite/internal/pipeline"
	"github.com/askmysite/askmysite/internal/rag"
)

// Config controls Worker behavior.
type Config struct {
	// JobTimeout bounds one ingest job end to end. Zero disables the bound.
	JobTimeout time.Duration
}

// Worker consumes queued ingest requests and runs them through the pipeline.
type Worker struct {
	queue  rag.Queue
	pipe   *pipeline.Pipeline
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue rag.Queue, pipe *pipeline.Pipeline, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		pipe:   pipe,
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks, consuming queued requests until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued ingest job", zap.String("job_id", req.JobID))
		w.processJob(ctx, req)
	}
}

func (w *Worker) processJob(ctx context.Context, req rag.IngestRequest) {
	jobCtx := ctx
	cancel := func() {}
	if w.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
	}
	defer cancel()

	if err := w.pipe.Ingest(jobCtx, req); err != nil {
		w.logger.Error("ingest job failed", zap.String("job_id", req.JobID), zap.Error(err))
	}
}
