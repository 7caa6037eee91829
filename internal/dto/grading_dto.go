package dto

import "github.com/noah-isme/dsa-autograder/internal/models"

// UploadedFile is one multipart file as read by the handler.
type UploadedFile struct {
	Filename string `validate:"required,max=255"`
	Data     []byte
}

// GradeRequest is the accept-time payload of POST /grade.
type GradeRequest struct {
	Files          []UploadedFile `validate:"required,min=1,max=50,dive"`
	StudentName    string         `validate:"max=200"`
	Topic          string         `validate:"max=200"`
	AssignmentCode string         `validate:"max=100"`
	CallbackURL    string         `validate:"omitempty,max=2048,http_url"`
}

// JobAcceptedResponse is returned with 202 once a job is registered.
type JobAcceptedResponse struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	CallbackURL *string `json:"callback_url"`
}

// JobStatusResponse is the poll payload. Only the fields of the current
// status are set.
type JobStatusResponse struct {
	Status  string              `json:"status"`
	Summary *models.JobSummary  `json:"summary,omitempty"`
	Results []models.FileResult `json:"results,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// NewJobStatusResponse projects a job snapshot into its poll shape.
func NewJobStatusResponse(job models.GradingJob) JobStatusResponse {
	switch job.Status {
	case models.JobStatusCompleted:
		response := JobStatusResponse{Status: job.Status, Results: []models.FileResult{}}
		if job.Result != nil {
			summary := job.Result.Summary
			response.Summary = &summary
			if job.Result.Results != nil {
				response.Results = job.Result.Results
			}
		}
		return response
	case models.JobStatusFailed:
		return JobStatusResponse{Status: job.Status, Error: job.Error}
	default:
		return JobStatusResponse{Status: models.JobStatusProcessing}
	}
}
