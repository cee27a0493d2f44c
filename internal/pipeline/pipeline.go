// Package pipeline sequences crawl, indexing, and answering for a job.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askmysite/askmysite/internal/answer"
	"github.com/askmysite/askmysite/internal/crawl"
	"github.com/askmysite/askmysite/internal/metrics"
	"github.com/askmysite/askmysite/internal/rag"
)

// CompletionTopic names the event emitted when an ingest job reaches a
// terminal state.
const CompletionTopic = "ingest.completed"

// CompletionEvent is the payload published when a job finishes.
type CompletionEvent struct {
	JobID        string `json:"job_id"`
	State        string `json:"state"`
	PagesFetched int    `json:"pages_fetched"`
	PagesIndexed int    `json:"pages_indexed"`
	Errors       int    `json:"errors"`
}

// Config carries the pipeline's tunables.
type Config struct {
	TopK int
}

// Pipeline owns one job's end-to-end flow. The crawler is constructed per
// ingest call and never shared; jobs interact only through the JobStore.
type Pipeline struct {
	jobs      rag.JobStore
	fetcher   crawl.PageFetcher
	hasher    rag.Hasher
	clock     rag.Clock
	indexer   rag.Indexer
	retriever rag.Retriever
	generator rag.Generator
	publisher rag.Publisher
	archive   rag.BlobStore
	logger    *zap.Logger
	topK      int
}

// New wires a Pipeline. publisher and archive may be nil; the corresponding
// steps are skipped.
func New(
	jobs rag.JobStore,
	fetcher crawl.PageFetcher,
	hasher rag.Hasher,
	clock rag.Clock,
	indexer rag.Indexer,
	retriever rag.Retriever,
	generator rag.Generator,
	publisher rag.Publisher,
	archive rag.BlobStore,
	logger *zap.Logger,
	cfg Config,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Pipeline{
		jobs:      jobs,
		fetcher:   fetcher,
		hasher:    hasher,
		clock:     clock,
		indexer:   indexer,
		retriever: retriever,
		generator: generator,
		publisher: publisher,
		archive:   archive,
		logger:    logger,
		topK:      topK,
	}
}

// Ingest runs the crawl-then-index sequence for one accepted request. Zero
// fetched pages is a valid terminal outcome; the job still finishes Done.
// Any panic or unhandled failure transitions the job to Failed.
func (p *Pipeline) Ingest(ctx context.Context, req rag.IngestRequest) (err error) {
	log := p.logger.With(zap.String("job_id", req.JobID))

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("pipeline panic: %v", r)
			log.Error("ingest panicked", zap.Any("panic", r))
			p.failJob(req.JobID, msg)
			err = fmt.Errorf("%s", msg)
		}
	}()

	if err := p.jobs.SetRunning(ctx, req.JobID); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	metrics.ObserveJob(string(rag.JobStateRunning))
	log.Info("ingest started",
		zap.Strings("seed_urls", req.SeedURLs),
		zap.Int("max_pages", req.MaxPages),
		zap.Int("max_depth", req.MaxDepth),
	)

	opts := []crawl.Option{}
	if p.archive != nil {
		opts = append(opts, crawl.WithArchive(p.archive, req.JobID))
	}
	crawler := crawl.New(crawl.Budget{
		Allowlist: crawl.NewAllowlist(req.DomainAllowlist),
		MaxPages:  req.MaxPages,
		MaxDepth:  req.MaxDepth,
	}, p.fetcher, p.hasher, p.clock, log, opts...)

	pages := crawler.Run(ctx, req.SeedURLs)
	fetched := crawler.PagesFetched()
	for _, msg := range crawler.Errors() {
		if addErr := p.jobs.AddError(ctx, req.JobID, msg); addErr != nil {
			log.Warn("recording crawl error failed", zap.Error(addErr))
		}
	}
	if err := p.jobs.UpdateProgress(ctx, req.JobID, fetched, 0); err != nil {
		return fmt.Errorf("update crawl progress: %w", err)
	}
	log.Info("crawl finished",
		zap.Int("pages_fetched", fetched),
		zap.Int("pages_accepted", len(pages)),
		zap.Int("errors", len(crawler.Errors())),
	)

	indexed := 0
	if len(pages) > 0 {
		var indexErrs []string
		var indexErr error
		indexed, indexErrs, indexErr = p.indexer.Index(ctx, req.JobID, pages)
		if indexErr != nil {
			msg := fmt.Sprintf("indexing failed: %v", indexErr)
			p.failJob(req.JobID, msg)
			return fmt.Errorf("%s", msg)
		}
		for _, msg := range indexErrs {
			if addErr := p.jobs.AddError(ctx, req.JobID, msg); addErr != nil {
				log.Warn("recording index error failed", zap.Error(addErr))
			}
		}
		if err := p.jobs.UpdateProgress(ctx, req.JobID, fetched, indexed); err != nil {
			return fmt.Errorf("update index progress: %w", err)
		}
	}

	result := map[string]any{
		"pages_fetched": fetched,
		"pages_indexed": indexed,
	}
	if err := p.jobs.SetDone(ctx, req.JobID, result); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	metrics.ObserveJob(string(rag.JobStateDone))
	log.Info("ingest complete", zap.Int("pages_fetched", fetched), zap.Int("chunks_indexed", indexed))

	p.publishCompletion(req.JobID, string(rag.JobStateDone), fetched, indexed)
	return nil
}

// Answer retrieves evidence for the question and produces a scored answer.
// A missing or unfinished job yields a low-confidence placeholder, not an
// error; only generation failures propagate.
func (p *Pipeline) Answer(ctx context.Context, jobID, question string) (rag.Answer, error) {
	job, err := p.jobs.Get(ctx, jobID)
	if err != nil || job.State != rag.JobStateDone {
		metrics.ObserveQuestion(string(rag.ConfidenceLow))
		return rag.Answer{
			Answer:         "Job not found or still processing. Please check the job status and try again.",
			Citations:      []rag.Citation{},
			Confidence:     rag.ConfidenceLow,
			GroundingNotes: "The knowledge base for this job is not ready; no retrieval was attempted.",
		}, nil
	}

	chunks, err := p.retriever.Retrieve(ctx, jobID, question, p.topK)
	if err != nil {
		p.logger.Warn("retrieval failed", zap.String("job_id", jobID), zap.Error(err))
		chunks = nil
	}
	if len(chunks) == 0 {
		metrics.ObserveQuestion(string(rag.ConfidenceLow))
		return rag.Answer{
			Answer:         "I cannot answer this question because no relevant evidence was found.",
			Citations:      []rag.Citation{},
			Confidence:     rag.ConfidenceLow,
			GroundingNotes: "No relevant chunks retrieved from the knowledge base.",
		}, nil
	}

	text, err := p.generator.Generate(ctx, question, chunks)
	if err != nil {
		return rag.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	citations, confidence, notes := answer.Score(chunks, text)
	metrics.ObserveQuestion(string(confidence))
	p.logger.Info("question answered",
		zap.String("job_id", jobID),
		zap.String("confidence", string(confidence)),
		zap.Int("citations", len(citations)),
	)
	return rag.Answer{
		Answer:         text,
		Citations:      citations,
		Confidence:     confidence,
		GroundingNotes: notes,
	}, nil
}

// failJob records a terminal failure, tolerating jobs that already reached a
// terminal state.
func (p *Pipeline) failJob(jobID, msg string) {
	ctx := context.Background()
	if err := p.jobs.SetFailed(ctx, jobID, msg); err != nil {
		p.logger.Error("marking job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(rag.JobStateFailed))
	p.publishCompletion(jobID, string(rag.JobStateFailed), 0, 0)
}

func (p *Pipeline) publishCompletion(jobID, state string, fetched, indexed int) {
	if p.publisher == nil {
		return
	}
	job, err := p.jobs.Get(context.Background(), jobID)
	errCount := 0
	if err == nil {
		errCount = len(job.Errors)
	}
	event := CompletionEvent{
		JobID:        jobID,
		State:        state,
		PagesFetched: fetched,
		PagesIndexed: indexed,
		Errors:       errCount,
	}
	if _, err := p.publisher.Publish(context.Background(), CompletionTopic, event); err != nil {
		p.logger.Warn("publishing completion event failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
	}
}

// ValidQuestion reports whether a question is long enough to answer.
func ValidQuestion(question string) bool {
	return len(strings.TrimSpace(question)) >= 3
}
