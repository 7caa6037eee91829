package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission status values persisted on a record.
const (
	SubmissionStatusPending = "PENDING"
	SubmissionStatusPass    = "PASS"
	SubmissionStatusFail    = "FAIL"
	SubmissionStatusFlag    = "FLAG"
)

// Upper bounds for each sub-score.
const (
	MaxStyleScore      = 10
	MaxAlgorithmScore  = 40
	MaxComplexityScore = 10
	MaxTestScore       = 40
	MaxTotalScore      = 100
)

// SubmissionRecord is one graded source file.
//
// Scores stay NULL unless a rubric existed for the assignment.
type SubmissionRecord struct {
	ID                 uint                        `gorm:"primaryKey" json:"id"`
	JobID              string                      `gorm:"size:64;index" json:"job_id"`
	StudentID          string                      `gorm:"size:64;index;not null" json:"student_id"`
	StudentName        string                      `gorm:"size:255" json:"student_name"`
	AssignmentCode     string                      `gorm:"size:128;index" json:"assignment_code"`
	Topic              string                      `gorm:"size:128" json:"topic"`
	Filename           string                      `gorm:"size:512;not null" json:"filename"`
	StyleScore         *int                        `json:"style_score"`
	AlgorithmScore     *int                        `json:"algorithm_score"`
	ComplexityScore    *int                        `json:"complexity_score"`
	TestScore          *int                        `json:"test_score"`
	TotalScore         *int                        `gorm:"index" json:"total_score"`
	DetectedAlgorithm  string                      `gorm:"size:255" json:"detected_algorithm"`
	Status             string                      `gorm:"size:16;not null;index" json:"status"`
	Feedback           string                      `gorm:"type:text" json:"feedback"`
	Strengths          string                      `gorm:"type:text" json:"strengths"`
	Weaknesses         string                      `gorm:"type:text" json:"weaknesses"`
	Improvement        string                      `gorm:"type:text" json:"improvement"`
	ComplexityAnalysis string                      `gorm:"type:text" json:"complexity_analysis"`
	Notes              datatypes.JSONSlice[string] `json:"notes"`
	AIScored           bool                        `gorm:"default:false" json:"ai_scored"`
	RuntimeMs          *int64                      `json:"runtime_ms"`
	SourceURL          string                      `gorm:"size:512" json:"source_url"`
	ProcessingMs       int64                       `gorm:"default:0" json:"processing_ms"`
	SubmittedAt        time.Time                   `gorm:"not null;index" json:"submitted_at"`
	GradedAt           *time.Time                  `json:"graded_at"`
}

// TableName pins the table name used by the summary views.
func (SubmissionRecord) TableName() string {
	return "submission_records"
}

// IsScored reports whether a rubric-backed total score exists.
func (r SubmissionRecord) IsScored() bool {
	return r.TotalScore != nil
}
