package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/service"
	"github.com/noah-isme/dsa-autograder/internal/utils"
)

// GradingHandler accepts multipart submissions.
type GradingHandler struct {
	service        service.GradingService
	maxUploadBytes int64
	logger         zerolog.Logger
}

// NewGradingHandler constructs the submission handler.
func NewGradingHandler(service service.GradingService, maxUploadBytes int64, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register wires POST /grade. Extra handlers such as a rate limiter run first.
func (h *GradingHandler) Register(router fiber.Router, middlewares ...fiber.Handler) {
	handlers := append(middlewares, h.grade)
	router.Post("/grade", handlers...)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendPlainError(c, fiber.StatusBadRequest, "multipart form with files is required")
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return utils.SendPlainError(c, fiber.StatusBadRequest, "at least one file is required")
	}

	files := make([]dto.UploadedFile, 0, len(headers))
	for _, header := range headers {
		if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
			return utils.SendPlainError(c, fiber.StatusRequestEntityTooLarge, fmt.Sprintf("%s: %s", header.Filename, service.ErrUploadTooLarge))
		}
		data, err := readUpload(header)
		if err != nil {
			requestLogger(h.logger, c).Warn().Err(err).Str("filename", header.Filename).Msg("failed to read upload")
			return utils.SendPlainError(c, fiber.StatusBadRequest, "could not read uploaded file")
		}
		files = append(files, dto.UploadedFile{Filename: header.Filename, Data: data})
	}

	req := dto.GradeRequest{
		Files:          files,
		StudentName:    c.FormValue("student_name"),
		Topic:          c.FormValue("topic"),
		AssignmentCode: c.FormValue("assignment_code"),
		CallbackURL:    c.FormValue("callback_url"),
	}

	accepted, err := h.service.Accept(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUploadTooLarge):
			return utils.SendPlainError(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrFileTypeNotAllowed),
			errors.Is(err, service.ErrNoValidFiles),
			errors.Is(err, service.ErrInvalidCallbackURL),
			errors.Is(err, service.ErrInvalidGradeRequest):
			return utils.SendPlainError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to accept grading job")
			return utils.SendPlainError(c, fiber.StatusInternalServerError, "failed to accept submission")
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(accepted)
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}
