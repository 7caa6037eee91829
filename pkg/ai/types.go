package ai

import "context"

// EvaluationInput contains the artefacts needed to review one source file.
type EvaluationInput struct {
	Filename       string
	Topic          string
	AssignmentCode string
	SourceCode     string
	ProgramOutput  string
	RuntimeMs      *int64

	// Rubric context. HasRubric gates whether the evaluator is asked for scores.
	HasRubric          bool
	RubricTitle        string
	RubricRequirements string
	RubricCriteria     string
}

// Breakdown holds the four sub-scores on their own scales.
type Breakdown struct {
	StyleScore      int `json:"style_score"`
	AlgorithmScore  int `json:"algorithm_score"`
	ComplexityScore int `json:"complexity_score"`
	TestScore       int `json:"test_score"`
}

// EvaluationResult is the structured review returned by an evaluator.
type EvaluationResult struct {
	TotalScore         *int       `json:"total_score"`
	Breakdown          *Breakdown `json:"breakdown"`
	DetectedAlgorithm  string     `json:"detected_algo"`
	Strengths          string     `json:"strengths"`
	Weaknesses         string     `json:"weaknesses"`
	Reasoning          string     `json:"reasoning_feedback"`
	Improvement        string     `json:"improvement_feedback"`
	ComplexityAnalysis string     `json:"complexity_analysis"`
	Anomaly            bool       `json:"anomaly"`
	AnomalyReason      string     `json:"anomaly_reason,omitempty"`
	Notes              []string   `json:"notes,omitempty"`
	AIScored           bool       `json:"ai_scored"`
}

// Evaluator describes a model capable of reviewing code submissions.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error)
}

// Score bounds.
const (
	MaxStyleScore      = 10
	MaxAlgorithmScore  = 40
	MaxComplexityScore = 10
	MaxTestScore       = 40
	MaxTotalScore      = 100
)
