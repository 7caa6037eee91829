package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/service"
	"github.com/noah-isme/dsa-autograder/internal/utils"
)

// JobHandler serves job polling.
type JobHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewJobHandler constructs the polling handler.
func NewJobHandler(service service.GradingService, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger.With().Str("component", "job_handler").Logger(),
	}
}

// Register wires GET /job/:job_id under the provided router.
func (h *JobHandler) Register(router fiber.Router) {
	router.Get("/job/:job_id", h.status)
}

func (h *JobHandler) status(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("job_id"))

	job, err := h.service.Job(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return utils.SendPlainError(c, fiber.StatusNotFound, "job not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Str("job_id", jobID).Msg("failed to load job")
		return utils.SendPlainError(c, fiber.StatusInternalServerError, "failed to load job")
	}

	return c.JSON(dto.NewJobStatusResponse(job))
}
