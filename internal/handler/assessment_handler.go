package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// AssessmentHandler manages assessment jobs and their student rosters.
type AssessmentHandler struct {
	service service.AssessmentService
	logger  zerolog.Logger
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler(service service.AssessmentService, logger zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		service: service,
		logger:  logger.With().Str("component", "assessment_handler").Logger(),
	}
}

// Register attaches job routes to the router group.
func (h *AssessmentHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("", h.list)
	router.Get("/:jobID", h.get)
	router.Delete("/:jobID", h.delete)
	router.Post("/:jobID/students", h.registerStudent)
}

func (h *AssessmentHandler) create(c *fiber.Ctx) error {
	var payload dto.CreateAssessmentRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	job, err := h.service.Create(c.UserContext(), scopeFromContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create assessment")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assessment created", job)
}

func (h *AssessmentHandler) list(c *fiber.Ctx) error {
	jobs, err := h.service.List(c.UserContext(), scopeFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to list assessments")
	}

	return utils.SendSuccess(c, "assessments retrieved", jobs)
}

func (h *AssessmentHandler) get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.UserContext(), scopeFromContext(c), pathParam(c, "jobID"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load assessment")
	}

	return utils.SendSuccess(c, "assessment retrieved", job)
}

func (h *AssessmentHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.UserContext(), scopeFromContext(c), pathParam(c, "jobID")); err != nil {
		return respondError(c, h.logger, err, "failed to delete assessment")
	}

	return utils.SendSuccess(c, "assessment deleted", nil)
}

func (h *AssessmentHandler) registerStudent(c *fiber.Ctx) error {
	var payload dto.RegisterStudentRequest
	if err := c.BodyParser(&payload); err != nil {
		return invalidPayload(c)
	}

	student, err := h.service.RegisterStudent(c.UserContext(), scopeFromContext(c), pathParam(c, "jobID"), payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to register student")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student registered", student)
}
