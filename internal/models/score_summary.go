package models

import "time"

// StudentScoreSummary is a row of the student_score_summaries view.
type StudentScoreSummary struct {
	StudentID       string     `json:"student_id"`
	StudentName     string     `json:"student_name"`
	SubmissionCount int64      `json:"submission_count"`
	AverageScore    *float64   `json:"average_score"`
	BestScore       *int       `json:"best_score"`
	PassCount       int64      `json:"pass_count"`
	LastSubmittedAt *time.Time `json:"last_submitted_at"`
}

// TableName maps the struct onto the view.
func (StudentScoreSummary) TableName() string {
	return "student_score_summaries"
}

// AssignmentScoreSummary is a row of the assignment_score_summaries view.
type AssignmentScoreSummary struct {
	AssignmentCode  string   `json:"assignment_code"`
	SubmissionCount int64    `json:"submission_count"`
	AverageScore    *float64 `json:"average_score"`
	MaxScore        *int     `json:"max_score"`
	MinScore        *int     `json:"min_score"`
	PassCount       int64    `json:"pass_count"`
	FailCount       int64    `json:"fail_count"`
	FlagCount       int64    `json:"flag_count"`
}

// TableName maps the struct onto the view.
func (AssignmentScoreSummary) TableName() string {
	return "assignment_score_summaries"
}
