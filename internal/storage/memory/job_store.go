package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/askmysite/askmysite/internal/rag"
)

// JobStore is a mutex-guarded registry of jobs. It is constructed and
// injected explicitly; there is no process-wide instance. It is the only
// state shared across concurrent ingest jobs, so every operation takes the
// lock and hands out deep copies.
//
// Transition legality is enforced by the Mark* methods on rag.Job, so an
// illegal request (for example Done -> Running) is rejected with
// rag.ErrInvalidTransition rather than silently applied.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]*rag.Job
	idGen rag.IDGenerator
	clock rag.Clock
}

// NewJobStore constructs a JobStore.
func NewJobStore(idGen rag.IDGenerator, clock rag.Clock) *JobStore {
	return &JobStore{
		jobs:  make(map[string]*rag.Job),
		idGen: idGen,
		clock: clock,
	}
}

// Create registers a new job in the queued state and returns a copy of it.
func (s *JobStore) Create(_ context.Context) (rag.Job, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return rag.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := &rag.Job{
		ID:        id,
		State:     rag.JobStateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = job
	return job.Clone(), nil
}

// Get fetches a job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (rag.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return rag.Job{}, rag.ErrJobNotFound
	}
	return job.Clone(), nil
}

// SetRunning moves a job to the running state.
func (s *JobStore) SetRunning(_ context.Context, jobID string) error {
	return s.mutate(jobID, func(j *rag.Job) error {
		return j.MarkRunning()
	})
}

// UpdateProgress records the fetched/indexed page counts.
func (s *JobStore) UpdateProgress(_ context.Context, jobID string, fetched, indexed int) error {
	return s.mutate(jobID, func(j *rag.Job) error {
		j.PagesFetched = fetched
		j.PagesIndexed = indexed
		return nil
	})
}

// AddError appends an error message to the job. The error list is
// append-only; it is legal to record errors in any state.
func (s *JobStore) AddError(_ context.Context, jobID string, msg string) error {
	return s.mutate(jobID, func(j *rag.Job) error {
		j.Errors = append(j.Errors, msg)
		return nil
	})
}

// SetDone moves a job to the done state with its result payload.
func (s *JobStore) SetDone(_ context.Context, jobID string, result map[string]any) error {
	return s.mutate(jobID, func(j *rag.Job) error {
		return j.MarkDone(result)
	})
}

// SetFailed moves a job to the failed state, appending the message to its
// error list.
func (s *JobStore) SetFailed(_ context.Context, jobID string, msg string) error {
	return s.mutate(jobID, func(j *rag.Job) error {
		return j.MarkFailed(msg)
	})
}

// mutate applies fn to the stored job under the write lock and bumps
// UpdatedAt on success.
func (s *JobStore) mutate(jobID string, fn func(*rag.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return rag.ErrJobNotFound
	}
	if err := fn(job); err != nil {
		return err
	}
	job.UpdatedAt = s.clock.Now()
	return nil
}
