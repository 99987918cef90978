package http

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/application/opportunity"
)

// QuotationHandler serves the quotation sub-machine endpoints (protected).
type QuotationHandler struct {
	svc      *opportunity.QuotationService
	validate *validator.Validate
}

// NewQuotationHandler builds the handler.
func NewQuotationHandler(svc *opportunity.QuotationService, validate *validator.Validate) *QuotationHandler {
	return &QuotationHandler{svc: svc, validate: validate}
}

// Create handles POST /api/opportunities/{id}/quotations.
func (h *QuotationHandler) Create(c *fiber.Ctx) error {
	oppID, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var in dto.QuotationCreateRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return failValidation(c, firstInvalidField(err), "invalid request body")
	}
	out, err := h.svc.Create(c.UserContext(), oppID, in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation created", out)
}

// ListByOpportunity handles GET /api/opportunities/{id}/quotations.
func (h *QuotationHandler) ListByOpportunity(c *fiber.Ctx) error {
	oppID, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	out, err := h.svc.ListByOpportunity(c.UserContext(), oppID, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotations", out)
}

// Get handles GET /api/quotations/{id}.
func (h *QuotationHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	out, err := h.svc.Get(c.UserContext(), id, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation", out)
}

// Update handles PUT /api/quotations/{id}.
func (h *QuotationHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var in dto.QuotationPatchRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return failValidation(c, firstInvalidField(err), "invalid request body")
	}
	out, err := h.svc.Update(c.UserContext(), id, in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation updated", out)
}

// Submit handles POST /api/quotations/{id}/submit.
func (h *QuotationHandler) Submit(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	out, err := h.svc.Submit(c.UserContext(), id, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation submitted", out)
}

// Approve handles POST /api/quotations/{id}/approve.
func (h *QuotationHandler) Approve(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	out, err := h.svc.Approve(c.UserContext(), id, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation approved", out)
}

// Reject handles POST /api/quotations/{id}/reject.
func (h *QuotationHandler) Reject(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var in dto.QuotationRejectRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return failValidation(c, "reason", "a rejection reason is required")
	}
	out, err := h.svc.Reject(c.UserContext(), id, in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation rejected", out)
}

// Revise handles POST /api/quotations/{id}/revise.
func (h *QuotationHandler) Revise(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var in dto.QuotationCreateRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	out, err := h.svc.Revise(c.UserContext(), id, in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation revised", out)
}

// Delete handles DELETE /api/quotations/{id}.
func (h *QuotationHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	if err := h.svc.Delete(c.UserContext(), id, Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "quotation deleted", nil)
}
