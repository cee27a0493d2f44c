package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askmysite/askmysite/internal/config"
	"github.com/askmysite/askmysite/internal/dispatcher"
	"github.com/askmysite/askmysite/internal/pipeline"
	queueMemory "github.com/askmysite/askmysite/internal/queue/memory"
	"github.com/askmysite/askmysite/internal/rag"
	memoryStorage "github.com/askmysite/askmysite/internal/storage/memory"
)

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("job-%d", g.n), nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1700000000, 0).UTC() }

type stubHasher struct{}

func (stubHasher) Hash(data []byte) (string, error) { return fmt.Sprintf("%x", data), nil }

type stubFetcher struct{}

func (stubFetcher) Fetch(context.Context, string) (string, error) {
	return "", fmt.Errorf("no network in tests")
}

type stubIndexer struct{}

func (stubIndexer) Index(context.Context, string, []rag.PageRecord) (int, []string, error) {
	return 0, nil, nil
}

type stubRetriever struct {
	chunks []rag.RetrievedChunk
}

func (s stubRetriever) Retrieve(context.Context, string, string, int) ([]rag.RetrievedChunk, error) {
	return s.chunks, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string, []rag.RetrievedChunk) (string, error) {
	return "Grounded answer. [Chunk 0]", nil
}

type fixture struct {
	server *Server
	jobs   *memoryStorage.JobStore
	queue  *queueMemory.Queue
}

func newFixture(t *testing.T, retriever rag.Retriever) *fixture {
	t.Helper()

	cfg := config.Config{}
	cfg.Server.Port = 8080
	cfg.Crawler.MaxPagesDefault = 10
	cfg.Crawler.MaxPagesLimit = 100
	cfg.Crawler.MaxDepthDefault = 1
	cfg.Crawler.MaxDepthLimit = 3

	jobs := memoryStorage.NewJobStore(&seqIDGen{}, fixedClock{})
	queue := queueMemory.NewQueue(8)
	dispatch := dispatcher.New(queue, nil)
	pipe := pipeline.New(
		jobs, stubFetcher{}, stubHasher{}, fixedClock{},
		stubIndexer{}, retriever, stubGenerator{}, nil, nil,
		zap.NewNop(), pipeline.Config{TopK: 3},
	)
	return &fixture{
		server: NewServer(jobs, dispatch, pipe, cfg, zap.NewNop()),
		jobs:   jobs,
		queue:  queue,
	}
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})
	rec := doJSON(t, fx.server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "ok", got["status"])
	require.Equal(t, Version, got["version"])
}

func TestServer_IngestAccepted(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})
	rec := doJSON(t, fx.server, http.MethodPost, "/ingest", map[string]any{
		"seed_urls":        []string{"https://example.com", "https://example.com/docs"},
		"domain_allowlist": []string{"example.com"},
		"max_pages":        5,
		"max_depth":        2,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var got ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got.JobID)
	// accepted_pages reflects the seed count, not the page budget.
	require.Equal(t, 2, got.AcceptedPages)

	job, err := fx.jobs.Get(context.Background(), got.JobID)
	require.NoError(t, err)
	require.Equal(t, rag.JobStateQueued, job.State)

	queued, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, got.JobID, queued.JobID)
	require.Equal(t, 5, queued.MaxPages)
	require.Equal(t, 2, queued.MaxDepth)
}

func TestServer_IngestAppliesDefaultsAndLimits(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})
	rec := doJSON(t, fx.server, http.MethodPost, "/ingest", map[string]any{
		"seed_urls":        []string{"https://example.com"},
		"domain_allowlist": []string{"example.com"},
		"max_pages":        100000,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	queued, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100, queued.MaxPages)
	require.Equal(t, 1, queued.MaxDepth)
}

func TestServer_IngestValidation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})

	rec := doJSON(t, fx.server, http.MethodPost, "/ingest", map[string]any{
		"seed_urls":        []string{},
		"domain_allowlist": []string{"example.com"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, fx.server, http.MethodPost, "/ingest", map[string]any{
		"seed_urls":        []string{"https://example.com"},
		"domain_allowlist": []string{},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("{not json"))
	recBad := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(recBad, req)
	require.Equal(t, http.StatusBadRequest, recBad.Code)
}

func TestServer_StatusNotFound(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})
	rec := doJSON(t, fx.server, http.MethodGet, "/status/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StatusCapsErrors(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})
	ctx := context.Background()
	job, err := fx.jobs.Create(ctx)
	require.NoError(t, err)
	for i := 0; i < 15; i++ {
		require.NoError(t, fx.jobs.AddError(ctx, job.ID, fmt.Sprintf("err-%d", i)))
	}

	rec := doJSON(t, fx.server, http.MethodGet, "/status/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Errors, 10)
	require.Equal(t, "err-0", got.Errors[0])
	require.Equal(t, string(rag.JobStateQueued), got.State)
}

func TestServer_AskValidation(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})
	ctx := context.Background()
	job, err := fx.jobs.Create(ctx)
	require.NoError(t, err)

	// Too-short question.
	rec := doJSON(t, fx.server, http.MethodPost, "/ask", map[string]any{
		"job_id": job.ID, "question": "a",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown job.
	rec = doJSON(t, fx.server, http.MethodPost, "/ask", map[string]any{
		"job_id": "missing", "question": "what is this",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Job not finished yet.
	rec = doJSON(t, fx.server, http.MethodPost, "/ask", map[string]any{
		"job_id": job.ID, "question": "what is this",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_AskReturnsScoredAnswer(t *testing.T) {
	t.Parallel()

	retriever := stubRetriever{chunks: []rag.RetrievedChunk{
		{ChunkID: "c1", Text: "evidence one", Score: 0.2, IsDistance: true, Metadata: rag.ChunkMetadata{URL: "https://example.com/a", Title: "A"}},
		{ChunkID: "c2", Text: "evidence two", Score: 0.3, IsDistance: true, Metadata: rag.ChunkMetadata{URL: "https://example.com/b", Title: "B"}},
	}}
	fx := newFixture(t, retriever)
	ctx := context.Background()
	job, err := fx.jobs.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.jobs.SetRunning(ctx, job.ID))
	require.NoError(t, fx.jobs.SetDone(ctx, job.ID, nil))

	rec := doJSON(t, fx.server, http.MethodPost, "/ask", map[string]any{
		"job_id": job.ID, "question": "what does the site say",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var got rag.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Grounded answer. [Chunk 0]", got.Answer)
	require.Equal(t, rag.ConfidenceHigh, got.Confidence)
	require.Len(t, got.Citations, 2)
	require.NotEmpty(t, got.GroundingNotes)
}

func TestServer_RequestIDHeaderSet(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, stubRetriever{})
	rec := doJSON(t, fx.server, http.MethodGet, "/health", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
