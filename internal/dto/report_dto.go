package dto

import (
	"time"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

// SubmissionRecordResponse is a persisted record as exposed by reporting routes.
type SubmissionRecordResponse struct {
	ID                 uint                   `json:"id"`
	JobID              string                 `json:"job_id"`
	StudentID          string                 `json:"student_id"`
	StudentName        string                 `json:"student_name"`
	AssignmentCode     string                 `json:"assignment_code"`
	Topic              string                 `json:"topic"`
	Filename           string                 `json:"filename"`
	Status             string                 `json:"status"`
	TotalScore         *int                   `json:"total_score"`
	Breakdown          *models.ScoreBreakdown `json:"breakdown"`
	DetectedAlgorithm  string                 `json:"detected_algorithm"`
	Feedback           string                 `json:"feedback"`
	Strengths          string                 `json:"strengths"`
	Weaknesses         string                 `json:"weaknesses"`
	Improvement        string                 `json:"improvement"`
	ComplexityAnalysis string                 `json:"complexity_analysis"`
	Notes              []string               `json:"notes"`
	AIScored           bool                   `json:"ai_scored"`
	RuntimeMs          *int64                 `json:"runtime_ms,omitempty"`
	SourceURL          string                 `json:"source_url,omitempty"`
	SubmittedAt        time.Time              `json:"submitted_at"`
	GradedAt           *time.Time             `json:"graded_at,omitempty"`
}

// NewSubmissionRecordResponse maps a record to its response shape.
func NewSubmissionRecordResponse(record models.SubmissionRecord) SubmissionRecordResponse {
	response := SubmissionRecordResponse{
		ID:                 record.ID,
		JobID:              record.JobID,
		StudentID:          record.StudentID,
		StudentName:        record.StudentName,
		AssignmentCode:     record.AssignmentCode,
		Topic:              record.Topic,
		Filename:           record.Filename,
		Status:             record.Status,
		TotalScore:         record.TotalScore,
		DetectedAlgorithm:  record.DetectedAlgorithm,
		Feedback:           record.Feedback,
		Strengths:          record.Strengths,
		Weaknesses:         record.Weaknesses,
		Improvement:        record.Improvement,
		ComplexityAnalysis: record.ComplexityAnalysis,
		Notes:              []string(record.Notes),
		AIScored:           record.AIScored,
		RuntimeMs:          record.RuntimeMs,
		SourceURL:          record.SourceURL,
		SubmittedAt:        record.SubmittedAt,
		GradedAt:           record.GradedAt,
	}
	if response.Notes == nil {
		response.Notes = []string{}
	}
	if record.StyleScore != nil && record.AlgorithmScore != nil && record.ComplexityScore != nil && record.TestScore != nil {
		response.Breakdown = &models.ScoreBreakdown{
			StyleScore:      *record.StyleScore,
			AlgorithmScore:  *record.AlgorithmScore,
			ComplexityScore: *record.ComplexityScore,
			TestScore:       *record.TestScore,
		}
	}
	return response
}

// NewSubmissionRecordResponses maps a slice of records.
func NewSubmissionRecordResponses(records []models.SubmissionRecord) []SubmissionRecordResponse {
	responses := make([]SubmissionRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewSubmissionRecordResponse(record))
	}
	return responses
}

// StudentScoresResponse lists one student's submissions.
type StudentScoresResponse struct {
	StudentID   string                     `json:"student_id"`
	Submissions []SubmissionRecordResponse `json:"submissions"`
	Total       int                        `json:"total"`
}

// AssignmentScoresResponse lists one assignment's submissions, best first.
type AssignmentScoresResponse struct {
	AssignmentCode string                     `json:"assignment_code"`
	Submissions    []SubmissionRecordResponse `json:"submissions"`
	Total          int                        `json:"total"`
}

// StatsResponse summarises score distribution.
type StatsResponse struct {
	AssignmentCode   string   `json:"assignment_code,omitempty"`
	TotalSubmissions int64    `json:"total_submissions"`
	AvgScore         *float64 `json:"avg_score"`
	MaxScore         *int     `json:"max_score"`
	MinScore         *int     `json:"min_score"`
	Passed           int64    `json:"passed"`
	Failed           int64    `json:"failed"`
	Flagged          int64    `json:"flagged"`
}
