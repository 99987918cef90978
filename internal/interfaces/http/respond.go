package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
)

// statusFor maps the error taxonomy to HTTP status codes. Authentication
// failures (missing/invalid token) are raised as 401 by the middleware
// before any handler runs; authorization here is always a policy denial.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return fiber.StatusBadRequest
	case apperr.CodeAuthorization:
		return fiber.StatusForbidden
	case apperr.CodeNotFound:
		return fiber.StatusNotFound
	case apperr.CodeDuplicate, apperr.CodeConflict:
		return fiber.StatusConflict
	case apperr.CodeBusinessRule, apperr.CodeStageTransition, apperr.CodeIntegrity:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// ok renders a success envelope.
func ok(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.Envelope{
		Status:  true,
		Message: message,
		Data:    data,
	})
}

// fail renders a failure envelope from an application error. Unknown errors
// never leak internals to the client.
func fail(c *fiber.Ctx, err error) error {
	if e, isApp := apperr.As(err); isApp {
		return c.Status(statusFor(e.Code)).JSON(dto.Envelope{
			Status:  false,
			Message: "request failed",
			Error: &dto.ErrorBody{
				Field:  e.Field,
				Code:   string(e.Code),
				Detail: e.Detail,
			},
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.Envelope{
		Status:  false,
		Message: "request failed",
		Error: &dto.ErrorBody{
			Code:   "internal",
			Detail: "internal server error",
		},
	})
}

// failValidation renders a 400 for a body/query parsing problem.
func failValidation(c *fiber.Ctx, field, detail string) error {
	return fail(c, apperr.Validation(field, detail))
}

// unauthorized renders the 401 envelope used by the auth middleware.
func unauthorized(c *fiber.Ctx, detail string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.Envelope{
		Status:  false,
		Message: "request failed",
		Error: &dto.ErrorBody{
			Code:   string(apperr.CodeAuthorization),
			Detail: detail,
		},
	})
}
