// Package rag defines core types shared across subsystems.
package rag

import (
	"errors"
	"fmt"
	"time"
)

// JobState represents the lifecycle state of an ingest job.
type JobState string

// Job state values held in the job store.
const (
	JobStateQueued  JobState = "queued"
	JobStateRunning JobState = "running"
	JobStateDone    JobState = "done"
	JobStateFailed  JobState = "failed"
)

// ErrInvalidTransition is returned when a job state change is not legal.
var ErrInvalidTransition = errors.New("invalid job state transition")

// ErrJobNotFound is returned by job stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// Job tracks one ingest request end to end.
type Job struct {
	ID           string         `json:"id"`
	State        JobState       `json:"state"`
	PagesFetched int            `json:"pages_fetched"`
	PagesIndexed int            `json:"pages_indexed"`
	Errors       []string       `json:"errors,omitempty"`
	Result       map[string]any `json:"result,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.State == JobStateDone || j.State == JobStateFailed
}

// MarkRunning moves the job from queued to running.
func (j *Job) MarkRunning() error {
	if j.State != JobStateQueued {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateRunning)
	}
	j.State = JobStateRunning
	return nil
}

// MarkDone moves the job from running to done and records the result payload.
func (j *Job) MarkDone(result map[string]any) error {
	if j.State != JobStateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateDone)
	}
	j.State = JobStateDone
	if result == nil {
		result = map[string]any{}
	}
	j.Result = result
	return nil
}

// MarkFailed moves the job from running to failed. The message is appended to
// the error list and kept as the result payload.
func (j *Job) MarkFailed(msg string) error {
	if j.State != JobStateRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, JobStateFailed)
	}
	j.State = JobStateFailed
	j.Errors = append(j.Errors, msg)
	j.Result = map[string]any{"error": msg}
	return nil
}

// Clone returns a deep copy safe to hand to callers outside the store lock.
func (j *Job) Clone() Job {
	cp := *j
	if j.Errors != nil {
		cp.Errors = append([]string(nil), j.Errors...)
	}
	if j.Result != nil {
		cp.Result = make(map[string]any, len(j.Result))
		for k, v := range j.Result {
			cp.Result[k] = v
		}
	}
	return cp
}

// PageRecord is one successfully fetched and accepted page.
type PageRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ChunkMetadata identifies the page a retrieved chunk came from.
type ChunkMetadata struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// RetrievedChunk is one result row from a vector index query. Score is a
// cosine distance when IsDistance is set, otherwise a similarity in [0, 1].
type RetrievedChunk struct {
	ChunkID    string        `json:"chunk_id"`
	Text       string        `json:"text"`
	Score      float64       `json:"score"`
	IsDistance bool          `json:"-"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// Citation points the caller at the evidence behind part of an answer.
type Citation struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	ChunkID string  `json:"chunk_id"`
	Quote   string  `json:"quote"`
	Score   float64 `json:"score"`
}

// Confidence grades how well an answer is supported by its citations.
type Confidence string

// Confidence tiers, from best to worst supported.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Answer is the full payload returned for one question.
type Answer struct {
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	Confidence     Confidence `json:"confidence"`
	GroundingNotes string     `json:"grounding_notes"`
}

// IngestRequest carries everything a worker needs to run one ingest job.
type IngestRequest struct {
	JobID           string
	SeedURLs        []string
	DomainAllowlist []string
	MaxPages        int
	MaxDepth        int
}
