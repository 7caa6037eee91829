package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/render"
	"github.com/noah-isme/dsa-autograder/internal/service"
)

const resultsRefreshSeconds = 2

// PageHandler serves the server-rendered upload form and results pages.
type PageHandler struct {
	service service.GradingService
	title   string
	logger  zerolog.Logger
}

// NewPageHandler constructs the page handler. The app must be configured with render.NewEngine.
func NewPageHandler(service service.GradingService, title string, logger zerolog.Logger) *PageHandler {
	return &PageHandler{
		service: service,
		title:   title,
		logger:  logger.With().Str("component", "page_handler").Logger(),
	}
}

// Register wires the HTML routes.
func (h *PageHandler) Register(router fiber.Router) {
	router.Get("/", h.index)
	router.Get("/results", h.results)
}

func (h *PageHandler) index(c *fiber.Ctx) error {
	return c.Render("index", fiber.Map{"Title": h.title})
}

func (h *PageHandler) results(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Query("job_id"))
	if jobID == "" {
		return c.Redirect("/")
	}

	job, err := h.service.Job(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).Render("failed", fiber.Map{"JobID": jobID, "Error": "job not found"})
		}
		requestLogger(h.logger, c).Error().Err(err).Str("job_id", jobID).Msg("failed to load job for results page")
		return c.Status(fiber.StatusInternalServerError).Render("failed", fiber.Map{"JobID": jobID, "Error": "failed to load job"})
	}

	switch job.Status {
	case models.JobStatusCompleted:
		var result models.JobResult
		if job.Result != nil {
			result = *job.Result
		}
		state := render.State{StatusFilter: c.Query("status"), SearchKeyword: c.Query("q")}
		return c.Render("results", render.NewResultsPage(job.ID, result, state))
	case models.JobStatusFailed:
		return c.Render("failed", fiber.Map{"JobID": job.ID, "Error": job.Error})
	default:
		return c.Render("processing", fiber.Map{"JobID": job.ID, "RefreshSeconds": resultsRefreshSeconds})
	}
}
