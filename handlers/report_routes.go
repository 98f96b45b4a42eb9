// handlers/report_routes.go
package handlers

import (
	"strconv"

	"eco-mission-system/middleware"
	"eco-mission-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReportRoutes(app *fiber.App, reportService *services.ReportService) {
	// 🔓 Public routes — no user context, but still behind Gateway auth
	app.Get("/reports", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		limit, _ := strconv.Atoi(c.Query("limit", "50"))

		reports, total, err := reportService.List(services.ReportFilter{
			Category: c.Query("category"),
			Status:   c.Query("status"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"reports": reports,
			"total":   total,
			"page":    page,
		})
	})

	app.Get("/reports/:id", func(c *fiber.Ctx) error {
		report, err := reportService.Get(c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(report)
	})

	// 🔐 Secured routes — require user context
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/reports", func(c *fiber.Ctx) error {
		var in services.SubmitReportInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		report, err := reportService.Submit(c.Context(), currentUserID(c), in)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(report)
	})

	secured.Get("/reports/mine", func(c *fiber.Ctx) error {
		reports, err := reportService.Mine(currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"reports": reports})
	})

	secured.Post("/reports/:id/vote", func(c *fiber.Ctx) error {
		var body struct {
			Vote string `json:"vote"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		report, err := reportService.CastVote(c.Context(), c.Params("id"), currentUserID(c), body.Vote)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(report)
	})

	// 🛡️ Admin review
	admin := secured.Group("/admin", middleware.RequireRole("admin"))

	admin.Patch("/reports/:id/status", func(c *fiber.Ctx) error {
		var body struct {
			Status string `json:"status"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		report, err := reportService.AdminSetStatus(c.Context(), c.Params("id"), currentUserID(c), body.Status, body.Reason)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(report)
	})
}
