package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/repository"
)

var (
	// ErrStudentIDRequired indicates an empty student id path parameter.
	ErrStudentIDRequired = errors.New("student id is required")
	// ErrAssignmentCodeRequired indicates an empty assignment code path parameter.
	ErrAssignmentCodeRequired = errors.New("assignment code is required")
)

// ReportService exposes read-only views over persisted submission records.
type ReportService interface {
	StudentScores(ctx context.Context, studentID string) (dto.StudentScoresResponse, error)
	AssignmentScores(ctx context.Context, assignmentCode string) (dto.AssignmentScoresResponse, error)
	Stats(ctx context.Context, assignmentCode string) (dto.StatsResponse, error)
	StudentSummaries(ctx context.Context) ([]models.StudentScoreSummary, error)
	AssignmentSummaries(ctx context.Context) ([]models.AssignmentScoreSummary, error)
}

type reportService struct {
	records  repository.SubmissionRecordRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewReportService constructs the reporting service. cache may be nil.
func NewReportService(records repository.SubmissionRecordRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ReportService {
	return &reportService{
		records:  records,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "report_service").Logger(),
	}
}

func (s *reportService) StudentScores(ctx context.Context, studentID string) (dto.StudentScoresResponse, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return dto.StudentScoresResponse{}, ErrStudentIDRequired
	}

	records, err := s.records.ListByStudent(ctx, studentID)
	if err != nil {
		return dto.StudentScoresResponse{}, fmt.Errorf("list student records: %w", err)
	}

	submissions := dto.NewSubmissionRecordResponses(records)
	return dto.StudentScoresResponse{
		StudentID:   studentID,
		Submissions: submissions,
		Total:       len(submissions),
	}, nil
}

func (s *reportService) AssignmentScores(ctx context.Context, assignmentCode string) (dto.AssignmentScoresResponse, error) {
	assignmentCode = strings.TrimSpace(assignmentCode)
	if assignmentCode == "" {
		return dto.AssignmentScoresResponse{}, ErrAssignmentCodeRequired
	}

	records, err := s.records.ListByAssignment(ctx, assignmentCode)
	if err != nil {
		return dto.AssignmentScoresResponse{}, fmt.Errorf("list assignment records: %w", err)
	}

	submissions := dto.NewSubmissionRecordResponses(records)
	return dto.AssignmentScoresResponse{
		AssignmentCode: assignmentCode,
		Submissions:    submissions,
		Total:          len(submissions),
	}, nil
}

func (s *reportService) Stats(ctx context.Context, assignmentCode string) (dto.StatsResponse, error) {
	assignmentCode = strings.TrimSpace(assignmentCode)
	cacheKey := "grader:stats:" + strings.ToLower(assignmentCode)

	if s.cache != nil && s.cacheTTL > 0 {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.StatsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				s.logger.Debug().Str("assignment_code", assignmentCode).Msg("stats cache hit")
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
		}
	}

	stats, err := s.records.Stats(ctx, assignmentCode)
	if err != nil {
		return dto.StatsResponse{}, fmt.Errorf("compute stats: %w", err)
	}

	response := dto.StatsResponse{
		AssignmentCode:   assignmentCode,
		TotalSubmissions: stats.TotalSubmissions,
		MaxScore:         stats.MaxScore,
		MinScore:         stats.MinScore,
		Passed:           stats.Passed,
		Failed:           stats.Failed,
		Flagged:          stats.Flagged,
	}
	if stats.AverageScore != nil {
		avg := math.Round(*stats.AverageScore*10) / 10
		response.AvgScore = &avg
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store stats cache")
			}
		}
	}

	return response, nil
}

func (s *reportService) StudentSummaries(ctx context.Context) ([]models.StudentScoreSummary, error) {
	summaries, err := s.records.StudentSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load student summaries: %w", err)
	}
	if summaries == nil {
		summaries = []models.StudentScoreSummary{}
	}
	return summaries, nil
}

func (s *reportService) AssignmentSummaries(ctx context.Context) ([]models.AssignmentScoreSummary, error) {
	summaries, err := s.records.AssignmentSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load assignment summaries: %w", err)
	}
	if summaries == nil {
		summaries = []models.AssignmentScoreSummary{}
	}
	return summaries, nil
}
