package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

// ResultsHandler serves categorized results and analytics.
type ResultsHandler struct {
	service service.ResultsService
	logger  zerolog.Logger
}

// NewResultsHandler constructs the handler.
func NewResultsHandler(service service.ResultsService, logger zerolog.Logger) *ResultsHandler {
	return &ResultsHandler{
		service: service,
		logger:  logger.With().Str("component", "results_handler").Logger(),
	}
}

// Register attaches results routes to the assessments group.
func (h *ResultsHandler) Register(router fiber.Router) {
	router.Get("/:jobID/results", h.overview)
	router.Get("/:jobID/students/:studentID/summary", h.studentSummary)
}

func (h *ResultsHandler) overview(c *fiber.Ctx) error {
	results, err := h.service.Overview(c.UserContext(), scopeFromContext(c), pathParam(c, "jobID"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load results")
	}

	return utils.SendSuccess(c, "results retrieved", results)
}

func (h *ResultsHandler) studentSummary(c *fiber.Ctx) error {
	summary, err := h.service.StudentSummary(c.UserContext(), scopeFromContext(c), pathParam(c, "jobID"), pathParam(c, "studentID"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load student summary")
	}

	return utils.SendSuccess(c, "student summary retrieved", summary)
}
