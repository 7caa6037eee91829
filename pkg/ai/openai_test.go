package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEvaluationClampsScores(t *testing.T) {
	content := "```json\n" + `{
		"total_score": 130,
		"breakdown": {"style_score": 12, "algorithm_score": "35", "complexity_score": -3, "test_score": 39.6},
		"detected_algo": "Merge Sort",
		"strengths": "clean recursion",
		"reasoning_feedback": "solid",
		"anomaly": false
	}` + "\n```"

	result, err := ParseEvaluation(content)
	require.NoError(t, err)
	require.NotNil(t, result.TotalScore)
	require.Equal(t, 100, *result.TotalScore)
	require.Equal(t, &Breakdown{StyleScore: 10, AlgorithmScore: 35, ComplexityScore: 0, TestScore: 40}, result.Breakdown)
	require.Equal(t, "Merge Sort", result.DetectedAlgorithm)
	require.True(t, result.AIScored)
}

func TestParseEvaluationWithoutScore(t *testing.T) {
	result, err := ParseEvaluation(`{"total_score": null, "breakdown": {"style_score": 5}, "reasoning_feedback": "review only"}`)
	require.NoError(t, err)
	require.Nil(t, result.TotalScore)
	require.Nil(t, result.Breakdown)
	require.Equal(t, "N/A", result.DetectedAlgorithm)
	require.Equal(t, "review only", result.Reasoning)
}

func TestParseEvaluationAnomalyAddsNote(t *testing.T) {
	result, err := ParseEvaluation(`{"total_score": 70, "anomaly": true, "anomaly_reason": "prints hardcoded answers"}`)
	require.NoError(t, err)
	require.True(t, result.Anomaly)
	require.Equal(t, []string{"prints hardcoded answers"}, result.Notes)
}

func TestParseEvaluationRejectsGarbage(t *testing.T) {
	_, err := ParseEvaluation("I think this code is great!")
	require.Error(t, err)
}

func TestNewOpenAIEvaluatorRequiresKey(t *testing.T) {
	_, err := NewOpenAIEvaluator(OpenAIConfig{})
	require.Error(t, err)
}

func TestOpenAIEvaluatorCallsCompatibleEndpoint(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		answer := `{"total_score": 82, "breakdown": {"style_score": 8, "algorithm_score": 34, "complexity_score": 8, "test_score": 32}, "detected_algo": "BFS"}`
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gemini-2.0-flash",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": answer},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		})
	}))
	defer server.Close()

	evaluator, err := NewOpenAIEvaluator(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gemini-2.0-flash",
		BaseURL: server.URL + "/v1/",
	})
	require.NoError(t, err)

	result, err := evaluator.Evaluate(context.Background(), EvaluationInput{
		Filename:           "graph.py",
		SourceCode:         "from collections import deque",
		HasRubric:          true,
		RubricRequirements: "Implement BFS",
	})
	require.NoError(t, err)
	require.Equal(t, 82, *result.TotalScore)
	require.Equal(t, "BFS", result.DetectedAlgorithm)

	require.Equal(t, "gemini-2.0-flash", captured.Model)
	require.Len(t, captured.Messages, 2)
	require.True(t, strings.Contains(captured.Messages[1].Content, "Implement BFS"))
}

func TestOpenAIEvaluatorSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded"}}`))
	}))
	defer server.Close()

	evaluator, err := NewOpenAIEvaluator(OpenAIConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = evaluator.Evaluate(context.Background(), EvaluationInput{Filename: "a.py"})
	require.Error(t, err)
}

func TestBuildUserPromptWithoutRubricForbidsScores(t *testing.T) {
	prompt := buildUserPrompt(EvaluationInput{Filename: "a.py", SourceCode: "pass"})
	require.True(t, strings.Contains(prompt, "Do NOT assign any score"))
}

func TestFallbackEvaluatorNeverScores(t *testing.T) {
	result, err := NewFallbackEvaluator().Evaluate(context.Background(), EvaluationInput{HasRubric: true})
	require.NoError(t, err)
	require.Nil(t, result.TotalScore)
	require.False(t, result.AIScored)
	require.NotEmpty(t, result.Notes)
}
