package ai

import "context"

// FallbackEvaluator is used when no evaluation service is configured. It never scores.
type FallbackEvaluator struct{}

// NewFallbackEvaluator constructs the no-score evaluator.
func NewFallbackEvaluator() *FallbackEvaluator {
	return &FallbackEvaluator{}
}

// Evaluate returns a review without scores.
func (FallbackEvaluator) Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return EvaluationResult{}, err
	}

	reasoning := "Evaluation service is not configured; the submission was received but not reviewed."
	notes := []string{"evaluation service unavailable"}
	if !input.HasRubric {
		notes = append(notes, "rubric not yet published for this assignment")
	}

	return EvaluationResult{
		DetectedAlgorithm: "N/A",
		Reasoning:         reasoning,
		Notes:             notes,
		AIScored:          false,
	}, nil
}
