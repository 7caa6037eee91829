package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/middleware"
	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/observability"
)

// WebhookEventGradingCompleted is the event name sent to callback URLs.
const WebhookEventGradingCompleted = "grading_completed"

// SignatureHeader carries the HMAC of the body when a secret is configured.
const SignatureHeader = "X-Grader-Signature"

// WebhookPayload is the body POSTed to callback URLs.
type WebhookPayload struct {
	Event   string              `json:"event"`
	JobID   string              `json:"job_id"`
	Results []models.FileResult `json:"results"`
	Summary models.JobSummary   `json:"summary"`
}

// WebhookNotifier delivers completed payloads to a callback URL.
type WebhookNotifier interface {
	Notify(ctx context.Context, callbackURL, jobID string, result models.JobResult) error
}

// WebhookConfig tunes delivery.
type WebhookConfig struct {
	Secret      string
	MaxAttempts int
	BaseBackoff time.Duration
}

type webhookNotifier struct {
	client *http.Client
	cfg    WebhookConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewWebhookNotifier builds a notifier. One attempt is made unless MaxAttempts says otherwise.
func NewWebhookNotifier(client *http.Client, cfg WebhookConfig, logger zerolog.Logger) WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 2 * time.Second
	}

	return &webhookNotifier{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "webhook_notifier").Logger(),
		sleep:  sleepContext,
	}
}

func (n *webhookNotifier) Notify(ctx context.Context, callbackURL, jobID string, result models.JobResult) error {
	results := result.Results
	if results == nil {
		results = []models.FileResult{}
	}

	body, err := json.Marshal(WebhookPayload{
		Event:   WebhookEventGradingCompleted,
		JobID:   jobID,
		Results: results,
		Summary: result.Summary,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	var lastErr error
	backoff := n.cfg.BaseBackoff
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := n.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}

		lastErr = n.post(ctx, callbackURL, body)
		if lastErr == nil {
			observability.WebhookDeliveries().WithLabelValues("delivered").Inc()
			n.logger.Info().Str("job_id", jobID).Int("attempt", attempt).Msg("webhook delivered")
			return nil
		}

		observability.WebhookDeliveries().WithLabelValues("failed").Inc()
		n.logger.Warn().Err(lastErr).Str("job_id", jobID).Int("attempt", attempt).Msg("webhook delivery failed")
	}

	return lastErr
}

func (n *webhookNotifier) post(ctx context.Context, callbackURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if correlationID := middleware.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}
	if n.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(n.cfg.Secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns "sha256=<hex hmac>" of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
