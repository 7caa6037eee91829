package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/models"
)

// DefaultPollInterval is the fixed delay between status polls.
const DefaultPollInterval = 2 * time.Second

// ErrJobNotFound is returned when the server does not know the job.
var ErrJobNotFound = errors.New("job not found")

// APIError is a non-2xx response carrying the server's error message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("grader returned %d: %s", e.StatusCode, e.Message)
}

// File is one upload.
type File struct {
	Name string
	Data []byte
}

// SubmitOptions carries the optional form fields of a submission.
type SubmitOptions struct {
	StudentName    string
	Topic          string
	AssignmentCode string
	CallbackURL    string
}

// Client talks to the grading API.
type Client struct {
	baseURL  string
	http     *http.Client
	interval time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithPollInterval overrides the poll interval.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// New builds a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 60 * time.Second},
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit uploads files and returns the accepted job.
func (c *Client) Submit(ctx context.Context, files []File, opts SubmitOptions) (dto.JobAcceptedResponse, error) {
	if len(files) == 0 {
		return dto.JobAcceptedResponse{}, errors.New("at least one file is required")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, file := range files {
		part, err := writer.CreateFormFile("files", file.Name)
		if err != nil {
			return dto.JobAcceptedResponse{}, fmt.Errorf("add %s: %w", file.Name, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return dto.JobAcceptedResponse{}, fmt.Errorf("add %s: %w", file.Name, err)
		}
	}
	for key, value := range map[string]string{
		"student_name":    opts.StudentName,
		"topic":           opts.Topic,
		"assignment_code": opts.AssignmentCode,
		"callback_url":    opts.CallbackURL,
	} {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return dto.JobAcceptedResponse{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return dto.JobAcceptedResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/grade", body)
	if err != nil {
		return dto.JobAcceptedResponse{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var accepted dto.JobAcceptedResponse
	if err := c.do(req, http.StatusAccepted, &accepted); err != nil {
		return dto.JobAcceptedResponse{}, err
	}
	return accepted, nil
}

// Status fetches the current job snapshot once.
func (c *Client) Status(ctx context.Context, jobID string) (dto.JobStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/job/"+url.PathEscape(jobID), nil)
	if err != nil {
		return dto.JobStatusResponse{}, err
	}

	var status dto.JobStatusResponse
	if err := c.do(req, http.StatusOK, &status); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return dto.JobStatusResponse{}, ErrJobNotFound
		}
		return dto.JobStatusResponse{}, err
	}
	return status, nil
}

// Poll checks the job at a fixed interval until it is completed or failed.
// onUpdate, when set, sees every snapshot. Cancelling ctx stops polling.
func (c *Client) Poll(ctx context.Context, jobID string, onUpdate func(dto.JobStatusResponse)) (dto.JobStatusResponse, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			return dto.JobStatusResponse{}, err
		}
		if onUpdate != nil {
			onUpdate(status)
		}
		if status.Status == models.JobStatusCompleted || status.Status == models.JobStatusFailed {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, expected int, target interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != expected {
		var body struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(payload))
		if json.Unmarshal(payload, &body) == nil && body.Error != "" {
			message = body.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
