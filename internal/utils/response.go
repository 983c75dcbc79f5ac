package utils

import "github.com/gofiber/fiber/v2"

// Error kinds carried in failed responses.
const (
	ErrorKindValidation      = "validation_error"
	ErrorKindInvalidState    = "invalid_state_transition"
	ErrorKindNotFound        = "not_found"
	ErrorKindConflict        = "conflict"
	ErrorKindUnauthorized    = "unauthorized"
	ErrorKindForbidden       = "forbidden"
	ErrorKindBadRequest      = "bad_request"
	ErrorKindTooManyRequests = "too_many_requests"
	ErrorKindInternal        = "internal_error"
)

// APIResponse describes the common structure for API responses.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// SendSuccess sends a successful JSON response with a message.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus sends a success payload using the provided HTTP status code.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	if status == 0 {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(APIResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError sends an error JSON response with the given status code. The
// error kind is derived from the status.
func SendError(c *fiber.Ctx, status int, message string) error {
	return Fail(c, status, KindForStatus(status), message, nil)
}

// Fail sends an error JSON response with an explicit error kind and optional details.
func Fail(c *fiber.Ctx, status int, kind, message string, details interface{}) error {
	if message == "" {
		message = "error"
	}
	if kind == "" {
		kind = KindForStatus(status)
	}

	return c.Status(status).JSON(APIResponse{
		Success:   false,
		Message:   message,
		ErrorKind: kind,
		Details:   details,
	})
}

// KindForStatus maps an HTTP status to the default error kind.
func KindForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return ErrorKindBadRequest
	case fiber.StatusUnauthorized:
		return ErrorKindUnauthorized
	case fiber.StatusForbidden:
		return ErrorKindForbidden
	case fiber.StatusNotFound:
		return ErrorKindNotFound
	case fiber.StatusConflict:
		return ErrorKindConflict
	case fiber.StatusTooManyRequests:
		return ErrorKindTooManyRequests
	default:
		return ErrorKindInternal
	}
}
