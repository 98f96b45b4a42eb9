// handlers/task_routes.go
package handlers

import (
	"strconv"

	"eco-mission-system/middleware"
	"eco-mission-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTaskRoutes(app *fiber.App, taskService *services.TaskService) {
	// 🔓 Public routes
	app.Get("/tasks", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		limit, _ := strconv.Atoi(c.Query("limit", "50"))

		tasks, total, err := taskService.List(services.TaskFilter{
			Status:   c.Query("status"),
			Category: c.Query("category"),
			ClanID:   c.Query("clan_id"),
			Region:   c.Query("region"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"tasks": tasks,
			"total": total,
			"page":  page,
		})
	})

	app.Get("/tasks/nearby", func(c *fiber.Ctx) error {
		lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
		lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
		if err1 != nil || err2 != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lng are required"})
		}
		radius, _ := strconv.ParseFloat(c.Query("radius_km", "10"), 64)
		limit, _ := strconv.Atoi(c.Query("limit", "50"))

		tasks, err := taskService.Nearby(lat, lng, radius, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"tasks": tasks})
	})

	app.Get("/tasks/:id", func(c *fiber.Ctx) error {
		task, err := taskService.Get(c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(task)
	})

	// 🔐 Secured routes
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/tasks/mine", func(c *fiber.Ctx) error {
		tasks, err := taskService.Mine(currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"tasks": tasks})
	})

	secured.Post("/tasks/:id/accept", func(c *fiber.Ctx) error {
		task, err := taskService.Accept(c.Context(), c.Params("id"), currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(task)
	})

	secured.Post("/pins/:id/join", func(c *fiber.Ctx) error {
		task, err := taskService.JoinFromPin(c.Context(), c.Params("id"), currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(task)
	})

	secured.Post("/clans/:id/tasks", func(c *fiber.Ctx) error {
		var in services.CreateTaskInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		task, err := taskService.CreateForClan(c.Context(), c.Params("id"), currentUserID(c), in)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(task)
	})

	secured.Post("/tasks/:id/approve", func(c *fiber.Ctx) error {
		task, err := taskService.Approve(c.Context(), c.Params("id"), currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(task)
	})

	secured.Post("/tasks/:id/drop", func(c *fiber.Ctx) error {
		task, err := taskService.Drop(c.Context(), c.Params("id"), currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(task)
	})

	secured.Post("/tasks/:id/proof", func(c *fiber.Ctx) error {
		var body struct {
			ImageURL string `json:"image_url"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		task, err := taskService.SubmitProof(c.Context(), c.Params("id"), currentUserID(c), body.ImageURL)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(task)
	})

	// 🛡️ Admin bulk verify
	admin := secured.Group("/admin", middleware.RequireRole("admin"))

	admin.Post("/tasks/:id/verify", func(c *fiber.Ctx) error {
		task, err := taskService.VerifyMission(c.Context(), c.Params("id"), currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(task)
	})
}
