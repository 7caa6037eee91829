package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/service"
	"github.com/noah-isme/dsa-autograder/internal/utils"
)

// ReportHandler exposes score listings and aggregate views.
type ReportHandler struct {
	service service.ReportService
	logger  zerolog.Logger
}

// NewReportHandler constructs the reporting handler.
func NewReportHandler(service service.ReportService, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  logger.With().Str("component", "report_handler").Logger(),
	}
}

// Register wires reporting routes.
func (h *ReportHandler) Register(router fiber.Router) {
	router.Get("/scores/student/:student_id", h.studentScores)
	router.Get("/scores/assignment/:assignment_code", h.assignmentScores)
	router.Get("/stats", h.stats)
	router.Get("/summaries/students", h.studentSummaries)
	router.Get("/summaries/assignments", h.assignmentSummaries)
}

func (h *ReportHandler) studentScores(c *fiber.Ctx) error {
	resp, err := h.service.StudentScores(c.UserContext(), c.Params("student_id"))
	if err != nil {
		return h.fail(c, err, "failed to load student scores")
	}
	return utils.SendSuccess(c, "student scores retrieved", resp)
}

func (h *ReportHandler) assignmentScores(c *fiber.Ctx) error {
	resp, err := h.service.AssignmentScores(c.UserContext(), c.Params("assignment_code"))
	if err != nil {
		return h.fail(c, err, "failed to load assignment scores")
	}
	return utils.SendSuccess(c, "assignment scores retrieved", resp)
}

func (h *ReportHandler) stats(c *fiber.Ctx) error {
	resp, err := h.service.Stats(c.UserContext(), c.Query("assignment_code"))
	if err != nil {
		return h.fail(c, err, "failed to compute stats")
	}
	return utils.SendSuccess(c, "stats computed", resp)
}

func (h *ReportHandler) studentSummaries(c *fiber.Ctx) error {
	summaries, err := h.service.StudentSummaries(c.UserContext())
	if err != nil {
		return h.fail(c, err, "failed to load student summaries")
	}
	return utils.SendSuccessWithMeta(c, "student summaries retrieved", summaries, fiber.Map{"total": len(summaries)})
}

func (h *ReportHandler) assignmentSummaries(c *fiber.Ctx) error {
	summaries, err := h.service.AssignmentSummaries(c.UserContext())
	if err != nil {
		return h.fail(c, err, "failed to load assignment summaries")
	}
	return utils.SendSuccessWithMeta(c, "assignment summaries retrieved", summaries, fiber.Map{"total": len(summaries)})
}

func (h *ReportHandler) fail(c *fiber.Ctx, err error, message string) error {
	switch {
	case errors.Is(err, service.ErrStudentIDRequired), errors.Is(err, service.ErrAssignmentCodeRequired):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg(message)
		return utils.SendError(c, fiber.StatusInternalServerError, message)
	}
}
