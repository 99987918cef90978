// Package http wires the Fiber routes of the CRM API. Every business route
// sits behind the bearer-token middleware; only the health probe is public.
package http

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
)

// RouterDeps are the dependencies the router wires into handlers.
type RouterDeps struct {
	Opportunities *opportunity.Service
	Quotations    *opportunity.QuotationService
	Analytics     *opportunity.AnalyticsService
	Sessions      opportunity.SessionStore
	Validate      *validator.Validate
}

// Router registers the API routes.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", AuthMiddleware(deps.Sessions))

	oppHandler := NewOpportunityHandler(deps.Opportunities, deps.Analytics, deps.Validate)
	quoHandler := NewQuotationHandler(deps.Quotations, deps.Validate)
	leadHandler := NewLeadHandler(deps.Opportunities, deps.Validate)

	opps := api.Group("/opportunities")
	// Analytics before /:id so "pipeline" is not captured as an id.
	opps.Get("/pipeline/summary", oppHandler.PipelineSummary)
	opps.Get("/pipeline/metrics", oppHandler.PipelineMetrics)

	opps.Post("/", oppHandler.Create)
	opps.Get("/", oppHandler.List)
	opps.Get("/:id", oppHandler.Get)
	opps.Put("/:id", oppHandler.Update)
	opps.Delete("/:id", oppHandler.Delete)
	opps.Patch("/:id/stage", oppHandler.UpdateStage)
	opps.Patch("/:id/close", oppHandler.Close)
	opps.Patch("/:id/tasks/:group", oppHandler.UpdateTaskGroup)
	// Published per-group paths for the same task writes.
	opps.Patch("/:id/qualification", oppHandler.TaskGroupAlias("qualification"))
	opps.Patch("/:id/demo", oppHandler.TaskGroupAlias("demo"))
	opps.Patch("/:id/proposal", oppHandler.TaskGroupAlias("proposal"))
	opps.Patch("/:id/negotiation", oppHandler.TaskGroupAlias("negotiation"))
	opps.Patch("/:id/won-tasks", oppHandler.TaskGroupAlias("won"))
	opps.Post("/:id/attachments", oppHandler.AddAttachment)
	opps.Post("/:id/quotations", quoHandler.Create)
	opps.Get("/:id/quotations", quoHandler.ListByOpportunity)
	// Document operations are also published under the opportunities prefix.
	opps.Post("/quotations/:id/submit", quoHandler.Submit)
	opps.Post("/quotations/:id/approve", quoHandler.Approve)
	opps.Post("/quotations/:id/reject", quoHandler.Reject)
	opps.Post("/quotations/:id/revise", quoHandler.Revise)

	quotations := api.Group("/quotations")
	quotations.Get("/:id", quoHandler.Get)
	quotations.Put("/:id", quoHandler.Update)
	quotations.Delete("/:id", quoHandler.Delete)
	quotations.Post("/:id/submit", quoHandler.Submit)
	quotations.Post("/:id/approve", quoHandler.Approve)
	quotations.Post("/:id/reject", quoHandler.Reject)
	quotations.Post("/:id/revise", quoHandler.Revise)

	leads := api.Group("/leads")
	leads.Post("/close-inactive", leadHandler.CloseInactive)
	leads.Post("/:lead_id/convert-to-opportunity", leadHandler.Convert)
}
