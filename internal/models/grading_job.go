package models

import "time"

// Grading job lifecycle states.
const (
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// GradingJob is an immutable snapshot of an asynchronous grading request.
// Stores replace the whole value on transition; callers must not mutate Result.
type GradingJob struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	Student    string     `json:"student"`
	FileCount  int        `json:"file_count"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *JobResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j GradingJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// JobResult is the payload published when a job completes.
type JobResult struct {
	Summary JobSummary   `json:"summary"`
	Results []FileResult `json:"results"`
}

// JobSummary aggregates the per-file results of a job.
type JobSummary struct {
	TotalFiles int      `json:"total_files"`
	AvgScore   *float64 `json:"avg_score"`
	TotalTime  string   `json:"total_time"`
	SavedToDB  int      `json:"saved_to_db"`
	Passed     int      `json:"passed"`
	Failed     int      `json:"failed"`
	Pending    int      `json:"pending"`
	Flagged    int      `json:"flagged"`
}

// ScoreBreakdown holds the rubric-backed sub-scores of a file.
type ScoreBreakdown struct {
	StyleScore      int `json:"style_score"`
	AlgorithmScore  int `json:"algorithm_score"`
	ComplexityScore int `json:"complexity_score"`
	TestScore       int `json:"test_score"`
}

// FileResult is the graded outcome of one source file, or a degraded entry
// when the file could not be unpacked or evaluated.
type FileResult struct {
	Filename           string          `json:"filename"`
	Status             string          `json:"status"`
	TotalScore         *int            `json:"total_score"`
	Breakdown          *ScoreBreakdown `json:"breakdown"`
	HasRubric          bool            `json:"has_rubric"`
	Algorithms         string          `json:"algorithms"`
	Strengths          string          `json:"strengths"`
	Weaknesses         string          `json:"weaknesses"`
	Reasoning          string          `json:"reasoning"`
	Improvement        string          `json:"improvement"`
	ComplexityAnalysis string          `json:"complexity_analysis"`
	Notes              []string        `json:"notes"`
	AIScored           bool            `json:"ai_scored"`
	RuntimeMs          *int64          `json:"runtime_ms,omitempty"`
	Error              string          `json:"error,omitempty"`
	RecordID           *uint           `json:"record_id,omitempty"`
}

// IsDegraded reports whether the file could not be processed normally.
func (r FileResult) IsDegraded() bool {
	return r.Error != ""
}
