package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/service"
)

// JobStreamHandler pushes job status changes over a websocket.
type JobStreamHandler struct {
	service  service.GradingService
	interval time.Duration
	logger   zerolog.Logger
}

// JobStreamMessage is one websocket frame.
type JobStreamMessage struct {
	JobID string `json:"job_id"`
	dto.JobStatusResponse
}

// NewJobStreamHandler constructs the websocket handler. interval defaults to 2s.
func NewJobStreamHandler(service service.GradingService, interval time.Duration, logger zerolog.Logger) *JobStreamHandler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &JobStreamHandler{
		service:  service,
		interval: interval,
		logger:   logger.With().Str("component", "job_stream_handler").Logger(),
	}
}

// Register wires GET /job/:job_id as a websocket route.
func (h *JobStreamHandler) Register(router fiber.Router) {
	router.Use("/job", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/job/:job_id", websocket.New(h.stream))
}

func (h *JobStreamHandler) stream(conn *websocket.Conn) {
	defer conn.Close()

	jobID := strings.TrimSpace(conn.Params("job_id"))
	logger := h.logger.With().Str("job_id", jobID).Logger()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastStatus := ""
	for {
		job, err := h.service.Job(context.Background(), jobID)
		if err != nil {
			reason := "failed to load job"
			code := websocket.CloseInternalServerErr
			if errors.Is(err, service.ErrJobNotFound) {
				reason = "job not found"
				code = websocket.ClosePolicyViolation
			}
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
			return
		}

		if job.Status != lastStatus {
			lastStatus = job.Status
			message := JobStreamMessage{JobID: job.ID, JobStatusResponse: dto.NewJobStatusResponse(job)}
			if err := conn.WriteJSON(message); err != nil {
				logger.Debug().Err(err).Msg("job stream client gone")
				return
			}
		}

		if job.IsTerminal() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, job.Status))
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			logger.Debug().Msg("job stream client disconnected")
			return
		}
	}
}
