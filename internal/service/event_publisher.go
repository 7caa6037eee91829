package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/models"
)

// JobEvent is the message emitted when a job reaches a terminal state.
type JobEvent struct {
	JobID      string             `json:"job_id"`
	Status     string             `json:"status"`
	Student    string             `json:"student"`
	FileCount  int                `json:"file_count"`
	Summary    *models.JobSummary `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// JobEventPublisher announces terminal job transitions to other systems.
type JobEventPublisher interface {
	PublishJob(ctx context.Context, job models.GradingJob) error
}

// subjectPublisher is satisfied by *nats.Conn.
type subjectPublisher interface {
	Publish(subject string, data []byte) error
}

type natsEventPublisher struct {
	conn    subjectPublisher
	subject string
	logger  zerolog.Logger
}

// NewNATSEventPublisher publishes to "<subject>.completed" and "<subject>.failed".
func NewNATSEventPublisher(conn subjectPublisher, subject string, logger zerolog.Logger) JobEventPublisher {
	if subject == "" {
		subject = "grading.jobs"
	}
	return &natsEventPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "job_events").Logger(),
	}
}

func (p *natsEventPublisher) PublishJob(ctx context.Context, job models.GradingJob) error {
	if !job.IsTerminal() {
		return fmt.Errorf("job %s is still %s", job.ID, job.Status)
	}

	event := JobEvent{
		JobID:      job.ID,
		Status:     job.Status,
		Student:    job.Student,
		FileCount:  job.FileCount,
		Error:      job.Error,
		FinishedAt: job.FinishedAt,
	}
	if job.Result != nil {
		summary := job.Result.Summary
		event.Summary = &summary
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}

	subject := p.subject + "." + job.Status
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.Debug().Str("job_id", job.ID).Str("subject", subject).Msg("job event published")
	return nil
}
