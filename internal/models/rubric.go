package models

import (
	"fmt"
	"strings"
)

// Rubric is the grading criteria fetched from the external rubric bank.
type Rubric struct {
	AssignmentCode string            `json:"assignment_code"`
	Title          string            `json:"title"`
	Requirements   string            `json:"requirements"`
	Text           string            `json:"rubric,omitempty"`
	Criteria       []RubricCriterion `json:"criteria"`
}

// RubricCriterion is a single weighted criterion.
type RubricCriterion struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// IsUsable reports whether the rubric carries anything to grade against.
func (r *Rubric) IsUsable() bool {
	if r == nil {
		return false
	}
	return len(r.Criteria) > 0 || strings.TrimSpace(r.Requirements) != "" || strings.TrimSpace(r.Text) != ""
}

// CriteriaText renders the criteria as one line per criterion.
func (r *Rubric) CriteriaText() string {
	if r == nil {
		return ""
	}

	lines := make([]string, 0, len(r.Criteria)+1)
	if text := strings.TrimSpace(r.Text); text != "" {
		lines = append(lines, text)
	}
	for _, criterion := range r.Criteria {
		line := fmt.Sprintf("- %s (%g)", criterion.Name, criterion.Weight)
		if criterion.Description != "" {
			line += ": " + criterion.Description
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
