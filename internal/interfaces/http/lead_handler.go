package http

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/application/opportunity"
)

// LeadHandler serves the lead-side endpoints of the lifecycle (protected).
type LeadHandler struct {
	svc      *opportunity.Service
	validate *validator.Validate
}

// NewLeadHandler builds the handler.
func NewLeadHandler(svc *opportunity.Service, validate *validator.Validate) *LeadHandler {
	return &LeadHandler{svc: svc, validate: validate}
}

// Convert handles POST /api/leads/{lead_id}/convert-to-opportunity.
func (h *LeadHandler) Convert(c *fiber.Ctx) error {
	leadID, err := parseID(c.Params("lead_id"))
	if err != nil {
		return failValidation(c, "lead_id", "must be numeric")
	}
	var in dto.ConvertLeadRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return failValidation(c, firstInvalidField(err), "invalid request body")
	}
	out, err := h.svc.ConvertLead(c.UserContext(), leadID, in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "lead converted", out)
}

// CloseInactive handles POST /api/leads/close-inactive.
func (h *LeadHandler) CloseInactive(c *fiber.Ctx) error {
	var in dto.CloseInactiveLeadsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return failValidation(c, "", "invalid request body")
		}
	}
	out, err := h.svc.CloseInactiveLeads(c.UserContext(), in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "inactive leads closed", out)
}
