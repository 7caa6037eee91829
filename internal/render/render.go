package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

// State is the client-side view state of a results page.
type State struct {
	StatusFilter  string
	SearchKeyword string
}

// Section is one titled block of evaluator feedback.
type Section struct {
	Title string
	Body  string
}

// Card is the rendered view of one graded file.
type Card struct {
	Filename      string
	Status        string
	StatusClass   string
	TotalScore    *int
	Breakdown     *models.ScoreBreakdown
	Algorithms    string
	Sections      []Section
	Notes         []string
	PendingNotice string
	Flagged       bool
	Error         string
}

// ShowBreakdown reports whether the sub-score table is rendered.
func (c Card) ShowBreakdown() bool {
	return c.Breakdown != nil
}

// PendingRubricNotice is shown instead of scores when nothing was scored.
const PendingRubricNotice = "No score yet: the rubric for this assignment has not been published or the file is awaiting manual review."

// Filter applies the status filter and keyword search. It never mutates results.
func Filter(results []models.FileResult, state State) []models.FileResult {
	status := strings.TrimSpace(state.StatusFilter)
	keyword := strings.ToLower(strings.TrimSpace(state.SearchKeyword))

	filtered := make([]models.FileResult, 0, len(results))
	for _, result := range results {
		if status != "" && !strings.EqualFold(result.Status, status) {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(result.Filename), keyword) &&
			!strings.Contains(strings.ToLower(result.Algorithms), keyword) {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}

// BuildCards produces one card per result, in order.
func BuildCards(results []models.FileResult) []Card {
	cards := make([]Card, 0, len(results))
	for _, result := range results {
		cards = append(cards, buildCard(result))
	}
	return cards
}

func buildCard(result models.FileResult) Card {
	card := Card{
		Filename:    result.Filename,
		Status:      result.Status,
		StatusClass: "status-" + strings.ToLower(result.Status),
		Algorithms:  result.Algorithms,
		Notes:       result.Notes,
		Flagged:     result.Status == models.SubmissionStatusFlag,
		Error:       result.Error,
	}

	if result.HasRubric && result.TotalScore != nil {
		card.TotalScore = result.TotalScore
		card.Breakdown = result.Breakdown
	} else {
		card.PendingNotice = PendingRubricNotice
	}

	for _, section := range []Section{
		{Title: "Strengths", Body: result.Strengths},
		{Title: "Weaknesses", Body: result.Weaknesses},
		{Title: "Reasoning", Body: result.Reasoning},
		{Title: "Improvement", Body: result.Improvement},
		{Title: "Complexity analysis", Body: result.ComplexityAnalysis},
	} {
		if strings.TrimSpace(section.Body) != "" {
			card.Sections = append(card.Sections, section)
		}
	}

	return card
}

// WriteText renders a completed payload as plain text.
func WriteText(w io.Writer, summary models.JobSummary, cards []Card) error {
	avg := "n/a"
	if summary.AvgScore != nil {
		avg = fmt.Sprintf("%.1f", *summary.AvgScore)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "files: %d  saved: %d  avg: %s  time: %s\n", summary.TotalFiles, summary.SavedToDB, avg, summary.TotalTime)
	fmt.Fprintf(&b, "pass: %d  fail: %d  pending: %d  flag: %d\n", summary.Passed, summary.Failed, summary.Pending, summary.Flagged)

	for _, card := range cards {
		b.WriteString("\n")
		score := "-"
		if card.TotalScore != nil {
			score = fmt.Sprintf("%d/%d", *card.TotalScore, models.MaxTotalScore)
		}
		fmt.Fprintf(&b, "[%s] %s  score: %s  algorithm: %s\n", card.Status, card.Filename, score, card.Algorithms)
		if card.ShowBreakdown() {
			fmt.Fprintf(&b, "  style %d/%d  algorithm %d/%d  complexity %d/%d  tests %d/%d\n",
				card.Breakdown.StyleScore, models.MaxStyleScore,
				card.Breakdown.AlgorithmScore, models.MaxAlgorithmScore,
				card.Breakdown.ComplexityScore, models.MaxComplexityScore,
				card.Breakdown.TestScore, models.MaxTestScore)
		}
		if card.PendingNotice != "" {
			fmt.Fprintf(&b, "  %s\n", card.PendingNotice)
		}
		if card.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", card.Error)
		}
		for _, section := range card.Sections {
			fmt.Fprintf(&b, "  %s: %s\n", section.Title, section.Body)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Statuses lists the filter options in display order.
var Statuses = []string{
	models.SubmissionStatusPass,
	models.SubmissionStatusFail,
	models.SubmissionStatusPending,
	models.SubmissionStatusFlag,
}

// ResultsPage is the binding of the results template.
type ResultsPage struct {
	JobID    string
	Summary  models.JobSummary
	AvgScore string
	State    State
	Statuses []string
	Cards    []Card
	Total    int
}

// NewResultsPage filters a completed payload and builds its cards.
func NewResultsPage(jobID string, result models.JobResult, state State) ResultsPage {
	avg := "n/a"
	if result.Summary.AvgScore != nil {
		avg = fmt.Sprintf("%.1f", *result.Summary.AvgScore)
	}

	return ResultsPage{
		JobID:    jobID,
		Summary:  result.Summary,
		AvgScore: avg,
		State:    state,
		Statuses: Statuses,
		Cards:    BuildCards(Filter(result.Results, state)),
		Total:    len(result.Results),
	}
}
