package http

import (
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/application/opportunity"
	"github.com/salesdesk/crm-api/pkg/ids"
)

// OpportunityHandler serves the opportunity lifecycle endpoints (protected).
type OpportunityHandler struct {
	svc       *opportunity.Service
	analytics *opportunity.AnalyticsService
	validate  *validator.Validate
}

// NewOpportunityHandler builds the handler.
func NewOpportunityHandler(svc *opportunity.Service, analytics *opportunity.AnalyticsService, validate *validator.Validate) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, analytics: analytics, validate: validate}
}

// Create handles POST /api/opportunities.
func (h *OpportunityHandler) Create(c *fiber.Ctx) error {
	var in dto.OpportunityCreateRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return failValidation(c, firstInvalidField(err), "invalid request body")
	}
	out, err := h.svc.Create(c.UserContext(), in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "opportunity created", out)
}

// Get handles GET /api/opportunities/{id}; the id may be numeric or POT-DDDD.
func (h *OpportunityHandler) Get(c *fiber.Ctx) error {
	param := c.Params("id")
	if ids.ValidPot(param) {
		out, err := h.svc.GetByPot(c.UserContext(), param, Actor(c))
		if err != nil {
			return fail(c, err)
		}
		return ok(c, fiber.StatusOK, "opportunity", out)
	}
	id, err := parseID(param)
	if err != nil {
		return failValidation(c, "id", "must be a numeric id or a POT id")
	}
	out, err := h.svc.Get(c.UserContext(), id, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "opportunity", out)
}

// List handles GET /api/opportunities.
func (h *OpportunityHandler) List(c *fiber.Ctx) error {
	var in dto.ListFilter
	if err := c.QueryParser(&in); err != nil {
		return failValidation(c, "", "invalid query parameters")
	}
	out, err := h.svc.List(c.UserContext(), in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "opportunities", out)
}

// Update handles PUT /api/opportunities/{id}.
func (h *OpportunityHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var in dto.OpportunityPatchRequest
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
	return ok(c, fiber.StatusOK, "opportunity updated", out)
}

// Delete handles DELETE /api/opportunities/{id}.
func (h *OpportunityHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	if err := h.svc.Delete(c.UserContext(), id, Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "opportunity deleted", nil)
}

// UpdateStage handles PATCH /api/opportunities/{id}/stage.
func (h *OpportunityHandler) UpdateStage(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var in dto.StagePatchRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return failValidation(c, firstInvalidField(err), "invalid request body")
	}
	out, err := h.svc.UpdateStage(c.UserContext(), id, in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "stage updated", out)
}

// Close handles PATCH /api/opportunities/{id}/close.
func (h *OpportunityHandler) Close(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var in dto.CloseRequest
	if err := c.BodyParser(&in); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	if err := h.validate.Struct(in); err != nil {
		return failValidation(c, firstInvalidField(err), "invalid request body")
	}
	out, err := h.svc.Close(c.UserContext(), id, in, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "opportunity closed", out)
}

// UpdateTaskGroup handles PATCH /api/opportunities/{id}/tasks/{group}.
func (h *OpportunityHandler) UpdateTaskGroup(c *fiber.Ctx) error {
	return h.updateTaskGroup(c, c.Params("group"))
}

// TaskGroupAlias serves the same operation at the published per-group paths
// (PATCH /api/opportunities/{id}/qualification and friends).
func (h *OpportunityHandler) TaskGroupAlias(group string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return h.updateTaskGroup(c, group)
	}
}

func (h *OpportunityHandler) updateTaskGroup(c *fiber.Ctx, group string) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	var patch map[string]any
	if err := c.BodyParser(&patch); err != nil {
		return failValidation(c, "", "invalid request body")
	}
	out, err := h.svc.UpdateTaskGroup(c.UserContext(), id, group, patch, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "tasks updated", out)
}

// AddAttachment handles POST /api/opportunities/{id}/attachments
// (multipart: group, field, file).
func (h *OpportunityHandler) AddAttachment(c *fiber.Ctx) error {
	id, err := parseID(c.Params("id"))
	if err != nil {
		return failValidation(c, "id", "must be numeric")
	}
	group := c.FormValue("group")
	field := c.FormValue("field")
	if group == "" || field == "" {
		return failValidation(c, "group", "group and field are required")
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return failValidation(c, "file", "a file upload is required")
	}
	f, err := fileHeader.Open()
	if err != nil {
		return failValidation(c, "file", "unreadable upload")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return failValidation(c, "file", "unreadable upload")
	}
	contentType := fileHeader.Header.Get("Content-Type")
	out, err := h.svc.AddAttachment(c.UserContext(), id, group, field, fileHeader.Filename, contentType, data, Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "attachment stored", out)
}

// PipelineSummary handles GET /api/opportunities/pipeline/summary.
func (h *OpportunityHandler) PipelineSummary(c *fiber.Ctx) error {
	out, err := h.analytics.PipelineSummary(c.UserContext(), Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "pipeline summary", out)
}

// PipelineMetrics handles GET /api/opportunities/pipeline/metrics.
func (h *OpportunityHandler) PipelineMetrics(c *fiber.Ctx) error {
	out, err := h.analytics.Metrics(c.UserContext(), Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, "pipeline metrics", out)
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// firstInvalidField pulls the first offending field out of a validator error.
func firstInvalidField(err error) string {
	if errs, isValidation := err.(validator.ValidationErrors); isValidation && len(errs) > 0 {
		return errs[0].Field()
	}
	return ""
}
