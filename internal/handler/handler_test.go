package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/service"
)

type stubGradingService struct {
	mu        sync.Mutex
	jobs      map[string]models.GradingJob
	lastReq   dto.GradeRequest
	acceptErr error
	accepted  dto.JobAcceptedResponse
}

func newStubGradingService() *stubGradingService {
	return &stubGradingService{jobs: map[string]models.GradingJob{}}
}

func (s *stubGradingService) Accept(_ context.Context, req dto.GradeRequest) (dto.JobAcceptedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReq = req
	if s.acceptErr != nil {
		return dto.JobAcceptedResponse{}, s.acceptErr
	}
	return s.accepted, nil
}

func (s *stubGradingService) Job(_ context.Context, jobID string) (models.GradingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return models.GradingJob{}, service.ErrJobNotFound
	}
	return job, nil
}

func (s *stubGradingService) Wait(context.Context) error {
	return nil
}

func (s *stubGradingService) put(job models.GradingJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func scorePtr(v int) *int {
	return &v
}

func completedJob(id string) models.GradingJob {
	avg := 78.0
	return models.GradingJob{
		ID:     id,
		Status: models.JobStatusCompleted,
		Result: &models.JobResult{
			Summary: models.JobSummary{TotalFiles: 2, AvgScore: &avg, TotalTime: "3.4s", SavedToDB: 2, Passed: 1, Pending: 1},
			Results: []models.FileResult{
				{
					Filename:   "merge_sort.py",
					Status:     models.SubmissionStatusPass,
					TotalScore: scorePtr(78),
					Breakdown:  &models.ScoreBreakdown{StyleScore: 8, AlgorithmScore: 30, ComplexityScore: 8, TestScore: 32},
					HasRubric:  true,
					Algorithms: "Merge Sort",
					Strengths:  "clean recursion",
					Notes:      []string{},
					AIScored:   true,
				},
				{
					Filename:   "bfs.py",
					Status:     models.SubmissionStatusPending,
					Algorithms: "BFS",
					Notes:      []string{"rubric not yet published for this assignment"},
				},
			},
		},
	}
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}
