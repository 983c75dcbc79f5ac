package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/middleware"
	"github.com/noah-isme/gema-grading-api/internal/service"
	"github.com/noah-isme/gema-grading-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

// scopeFromContext builds the explicit service scope from the values the JWT
// middleware stored on the request.
func scopeFromContext(c *fiber.Ctx) service.Scope {
	return service.Scope{
		UserID: userIDFromContext(c),
		Role:   userRoleFromContext(c),
	}
}

func pathParam(c *fiber.Ctx, key string) string {
	return strings.TrimSpace(c.Params(key))
}

func resultKeyFromPath(c *fiber.Ctx) grading.ResultKey {
	return grading.ResultKey{
		JobID:      pathParam(c, "jobID"),
		StudentID:  pathParam(c, "studentID"),
		QuestionID: pathParam(c, "questionID"),
	}
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors) || errors.Is(err, grading.ErrValidation)
}

// respondError maps the service error taxonomy onto the error envelope.
// Anything unrecognised is logged and reported as an internal error.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error, fallback string) error {
	switch {
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, utils.ErrorKindValidation, err.Error(), nil)
	case errors.Is(err, grading.ErrInvalidStateTransition):
		return utils.Fail(c, fiber.StatusConflict, utils.ErrorKindInvalidState, err.Error(), nil)
	case errors.Is(err, service.ErrNotFound):
		return utils.Fail(c, fiber.StatusNotFound, utils.ErrorKindNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrLockTimeout):
		return utils.Fail(c, fiber.StatusConflict, utils.ErrorKindConflict, "result is being updated, retry shortly", nil)
	default:
		requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg(fallback)
		return utils.Fail(c, fiber.StatusInternalServerError, utils.ErrorKindInternal, fallback, nil)
	}
}

func invalidPayload(c *fiber.Ctx) error {
	return utils.Fail(c, fiber.StatusBadRequest, utils.ErrorKindBadRequest, "invalid payload", nil)
}
