package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// GradingHandler is the ingestion hook that sends a student's answers to the model panel.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler constructs the handler.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the grading route. Guards run before the handler,
// typically a rate limiter since every call fans out to paid model APIs.
func (h *GradingHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	handlers := append(append([]fiber.Handler{}, guards...), h.grade)
	router.Post("/:jobID/students/:studentID/grade", handlers...)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	var payload dto.GradeStudentRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	jobID := pathParam(c, "jobID")
	studentID := pathParam(c, "studentID")
	response, err := h.service.GradeStudent(c.UserContext(), scopeFromContext(c), jobID, studentID, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to grade student")
	}

	requestLogger(h.logger, c).Info().
		Str("job_id", jobID).
		Str("student_id", studentID).
		Str("status", string(response.Status)).
		Int("questions", len(response.Questions)).
		Msg("student graded")

	return utils.SendSuccess(c, "student graded", response)
}
