package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

var (
	// ErrJobNotFound indicates the job id is unknown or was swept.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobAlreadyTerminal indicates a second terminal transition was attempted.
	ErrJobAlreadyTerminal = errors.New("job already finished")
)

// JobStore is the registry of grading jobs. Each job is written once on
// creation and once on its terminal transition; readers always get a whole snapshot.
type JobStore interface {
	Create(ctx context.Context, job models.GradingJob) error
	Get(ctx context.Context, id string) (models.GradingJob, error)
	Complete(ctx context.Context, id string, result models.JobResult) (models.GradingJob, error)
	Fail(ctx context.Context, id string, message string) (models.GradingJob, error)
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

type memoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]models.GradingJob
	now  func() time.Time
}

// NewMemoryJobStore builds the process-local registry.
func NewMemoryJobStore() JobStore {
	return &memoryJobStore{
		jobs: make(map[string]models.GradingJob),
		now:  time.Now,
	}
}

func (s *memoryJobStore) Create(ctx context.Context, job models.GradingJob) error {
	job.Status = models.JobStatusProcessing
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryJobStore) Get(ctx context.Context, id string) (models.GradingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.GradingJob{}, ErrJobNotFound
	}
	return job, nil
}

func (s *memoryJobStore) Complete(ctx context.Context, id string, result models.JobResult) (models.GradingJob, error) {
	return s.transition(id, func(job *models.GradingJob) {
		job.Status = models.JobStatusCompleted
		job.Result = &result
	})
}

func (s *memoryJobStore) Fail(ctx context.Context, id string, message string) (models.GradingJob, error) {
	return s.transition(id, func(job *models.GradingJob) {
		job.Status = models.JobStatusFailed
		job.Error = message
	})
}

func (s *memoryJobStore) transition(id string, apply func(job *models.GradingJob)) (models.GradingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return models.GradingJob{}, ErrJobNotFound
	}
	if job.IsTerminal() {
		return job, ErrJobAlreadyTerminal
	}

	finished := s.now().UTC()
	job.FinishedAt = &finished
	apply(&job)
	s.jobs[id] = job
	return job, nil
}

func (s *memoryJobStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if isExpired(job, cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// isExpired covers finished jobs past the cutoff and processing jobs that never finished.
func isExpired(job models.GradingJob, cutoff time.Time) bool {
	if job.IsTerminal() && job.FinishedAt != nil {
		return job.FinishedAt.Before(cutoff)
	}
	return job.CreatedAt.Before(cutoff)
}
