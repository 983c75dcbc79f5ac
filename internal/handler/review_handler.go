package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// ReviewHandler exposes the teacher review workflow.
type ReviewHandler struct {
	service service.ReviewService
	logger  zerolog.Logger
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service service.ReviewService, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: service,
		logger:  logger.With().Str("component", "review_handler").Logger(),
	}
}

// Register attaches review routes to the assessments group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Get("/:jobID/students/:studentID/review", h.reviewData)
	router.Post("/:jobID/students/:studentID/questions/:questionID/review", h.submit(grading.KindPendingReview))
	router.Patch("/:jobID/students/:studentID/questions/:questionID", h.submit(grading.KindOverride))
	router.Post("/:jobID/students/:studentID/report", h.regenerateReport)
}

func (h *ReviewHandler) reviewData(c *fiber.Ctx) error {
	data, err := h.service.GetReviewData(c.UserContext(), scopeFromContext(c), pathParam(c, "jobID"), pathParam(c, "studentID"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load review data")
	}

	return utils.SendSuccess(c, "review data retrieved", data)
}

func (h *ReviewHandler) submit(kind grading.SubmissionKind) fiber.Handler {
	message := "question reviewed"
	if kind == grading.KindOverride {
		message = "grade overridden"
	}

	return func(c *fiber.Ctx) error {
		var payload dto.TeacherGradeRequest
		if err := c.BodyParser(&payload); err != nil {
			return invalidPayload(c)
		}

		response, err := h.service.ApplyTeacherGrade(c.UserContext(), scopeFromContext(c), resultKeyFromPath(c), kind, payload)
		if err != nil {
			return respondError(c, h.logger, err, "failed to apply teacher grade")
		}

		return utils.SendSuccess(c, message, response)
	}
}

func (h *ReviewHandler) regenerateReport(c *fiber.Ctx) error {
	var payload dto.ReportRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return invalidPayload(c)
		}
	}

	response, err := h.service.RegenerateReport(c.UserContext(), scopeFromContext(c), pathParam(c, "jobID"), pathParam(c, "studentID"), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to request report")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "report regeneration requested", response)
}
