package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of chat completion requests",
	}, []string{"model"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of chat completion failures",
	}, []string{"model"})
)

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// OpenAIConfig defines configuration options for the OpenAI-compatible evaluator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// OpenAIEvaluator implements Evaluator against any OpenAI-compatible chat completion API.
type OpenAIEvaluator struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIEvaluator builds a new evaluator using the provided configuration.
func NewOpenAIEvaluator(cfg OpenAIConfig) (*OpenAIEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	tracer := otel.Tracer("github.com/noah-isme/dsa-autograder/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIEvaluator{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

// Evaluate sends the review request and parses the JSON answer.
func (e *OpenAIEvaluator) Evaluate(parent context.Context, input EvaluationInput) (EvaluationResult, error) {
	ctx, span := e.tracer.Start(parent, "openai.evaluate", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.String("filename", input.Filename),
		attribute.Bool("has_rubric", input.HasRubric),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: evaluatorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	duration := time.Since(start)
	aiDuration.WithLabelValues(e.cfg.Model).Observe(duration.Seconds())
	if err != nil {
		aiFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvaluationResult{}, fmt.Errorf("openai evaluate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from evaluator")
		aiFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvaluationResult{}, err
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := ParseEvaluation(content)
	if err != nil {
		aiFailures.WithLabelValues(e.cfg.Model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn().Err(err).Str("filename", input.Filename).Msg("unparseable evaluator response")
		return EvaluationResult{}, err
	}

	e.logger.Debug().
		Str("filename", input.Filename).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("duration", duration).
		Msg("evaluation completed")

	return result, nil
}

func evaluatorSystemPrompt() string {
	return "You are a senior engineer reviewing data-structures-and-algorithms coursework as if it were a pull request. " +
		"Be strict and fair: working code is not automatically good code. Penalise wrong logic, missing edge cases " +
		"(empty input, negatives, duplicates), hardcoded answers, brute force where a better bound exists, poor naming " +
		"and dead code. Respond with a single JSON object and nothing else."
}

func buildUserPrompt(input EvaluationInput) string {
	builder := strings.Builder{}
	builder.WriteString("# File\n")
	builder.WriteString(input.Filename)
	if input.Topic != "" {
		builder.WriteString("\n\n## Topic\n")
		builder.WriteString(input.Topic)
	}

	if input.HasRubric {
		builder.WriteString("\n\n## Rubric\n")
		if input.RubricTitle != "" {
			builder.WriteString(input.RubricTitle)
			builder.WriteString("\n")
		}
		if input.RubricRequirements != "" {
			builder.WriteString("Requirements:\n")
			builder.WriteString(input.RubricRequirements)
			builder.WriteString("\n")
		}
		if input.RubricCriteria != "" {
			builder.WriteString("Criteria:\n")
			builder.WriteString(input.RubricCriteria)
		}
	} else {
		builder.WriteString("\n\n## Rubric\nNo rubric is available. Do NOT assign any score; set total_score and breakdown to null and only review.")
	}

	builder.WriteString("\n\n## Submission\n```python\n")
	builder.WriteString(input.SourceCode)
	builder.WriteString("\n```")

	if input.ProgramOutput != "" || input.RuntimeMs != nil {
		builder.WriteString("\n\n## Program Output\n")
		builder.WriteString(input.ProgramOutput)
		if input.RuntimeMs != nil {
			builder.WriteString(fmt.Sprintf("\n(runtime %dms)", *input.RuntimeMs))
		}
	}

	builder.WriteString(`

Return JSON with exactly these keys:
{
  "total_score": <0-100 or null without rubric>,
  "breakdown": {"style_score": <0-10>, "algorithm_score": <0-40>, "complexity_score": <0-10>, "test_score": <0-40>} or null,
  "detected_algo": "<algorithm name>",
  "strengths": "<2-3 points>",
  "weaknesses": "<2-4 points>",
  "reasoning_feedback": "<5-7 sentence review>",
  "improvement_feedback": "<prioritised suggestions>",
  "complexity_analysis": "<Time: O(?), Space: O(?) with explanation>",
  "anomaly": <true if the code looks hardcoded, copied or unrelated to the task>,
  "anomaly_reason": "<why, when anomaly is true>"
}`)
	return builder.String()
}

// ParseEvaluation decodes an evaluator answer, tolerating markdown fences and
// numbers sent as strings. Scores are clamped to their bounds.
func ParseEvaluation(content string) (EvaluationResult, error) {
	type breakdownPayload struct {
		StyleScore      flexNumber `json:"style_score"`
		AlgorithmScore  flexNumber `json:"algorithm_score"`
		ComplexityScore flexNumber `json:"complexity_score"`
		TestScore       flexNumber `json:"test_score"`
	}
	type payload struct {
		TotalScore         flexNumber        `json:"total_score"`
		Breakdown          *breakdownPayload `json:"breakdown"`
		DetectedAlgorithm  string            `json:"detected_algo"`
		Strengths          string            `json:"strengths"`
		Weaknesses         string            `json:"weaknesses"`
		Reasoning          string            `json:"reasoning_feedback"`
		Improvement        string            `json:"improvement_feedback"`
		ComplexityAnalysis string            `json:"complexity_analysis"`
		Anomaly            bool              `json:"anomaly"`
		AnomalyReason      string            `json:"anomaly_reason"`
	}

	clean := strings.TrimSpace(content)
	if match := codeFence.FindStringSubmatch(clean); match != nil {
		clean = strings.TrimSpace(match[1])
	}

	var data payload
	if err := json.Unmarshal([]byte(clean), &data); err != nil {
		return EvaluationResult{}, fmt.Errorf("parse evaluation json: %w", err)
	}

	result := EvaluationResult{
		DetectedAlgorithm:  strings.TrimSpace(data.DetectedAlgorithm),
		Strengths:          data.Strengths,
		Weaknesses:         data.Weaknesses,
		Reasoning:          data.Reasoning,
		Improvement:        data.Improvement,
		ComplexityAnalysis: data.ComplexityAnalysis,
		Anomaly:            data.Anomaly,
		AnomalyReason:      data.AnomalyReason,
		AIScored:           true,
	}
	if result.DetectedAlgorithm == "" {
		result.DetectedAlgorithm = "N/A"
	}

	if data.TotalScore.set {
		total := clamp(data.TotalScore.value, MaxTotalScore)
		result.TotalScore = &total
	}

	if data.Breakdown != nil && result.TotalScore != nil {
		result.Breakdown = &Breakdown{
			StyleScore:      clamp(data.Breakdown.StyleScore.value, MaxStyleScore),
			AlgorithmScore:  clamp(data.Breakdown.AlgorithmScore.value, MaxAlgorithmScore),
			ComplexityScore: clamp(data.Breakdown.ComplexityScore.value, MaxComplexityScore),
			TestScore:       clamp(data.Breakdown.TestScore.value, MaxTestScore),
		}
	}

	if result.Anomaly && result.AnomalyReason != "" {
		result.Notes = append(result.Notes, result.AnomalyReason)
	}

	return result, nil
}

func clamp(value float64, max int) int {
	rounded := int(math.Round(value))
	if rounded < 0 {
		return 0
	}
	if rounded > max {
		return max
	}
	return rounded
}

// flexNumber accepts a JSON number, a numeric string or null.
type flexNumber struct {
	value float64
	set   bool
}

func (n *flexNumber) UnmarshalJSON(raw []byte) error {
	text := strings.TrimSpace(string(raw))
	if text == "null" || text == `""` {
		return nil
	}
	text = strings.Trim(text, `"`)
	parsed, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	n.value = parsed
	n.set = true
	return nil
}
