// handlers/admin_routes.go
package handlers

import (
	"eco-mission-system/middleware"
	"eco-mission-system/models"
	"eco-mission-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func SetupAdminRoutes(app *fiber.App, db *gorm.DB, rewardService *services.RewardService) {
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	admin.Get("/stats", func(c *fiber.Ctx) error {
		var users, clans, reports, tasks, pendingReports int64
		if err := db.Model(&models.User{}).Count(&users).Error; err != nil {
			return fail(c, err)
		}
		if err := db.Model(&models.Clan{}).Count(&clans).Error; err != nil {
			return fail(c, err)
		}
		if err := db.Model(&models.Report{}).Count(&reports).Error; err != nil {
			return fail(c, err)
		}
		if err := db.Model(&models.Task{}).Count(&tasks).Error; err != nil {
			return fail(c, err)
		}
		if err := db.Model(&models.Report{}).Where("status = ?", models.ReportPending).
			Count(&pendingReports).Error; err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"users":           users,
			"clans":           clans,
			"reports":         reports,
			"tasks":           tasks,
			"pending_reports": pendingReports,
		})
	})

	admin.Post("/users/:id/points", func(c *fiber.Ctx) error {
		var body struct {
			Value        int64  `json:"value"`
			Reason       string `json:"reason"`
			AdjustmentID string `json:"adjustment_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if body.Reason == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
		}
		if body.AdjustmentID == "" {
			body.AdjustmentID = uuid.NewString()
		}
		result, err := rewardService.AdminAdjust(c.Params("id"), body.Value, body.Reason, body.AdjustmentID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"duplicate":    result.Duplicate,
			"total_points": result.User.TotalPoints,
			"transaction":  result.Transaction,
		})
	})

	admin.Post("/users/:id/ban", func(c *fiber.Ctx) error {
		res := db.Model(&models.User{}).Where("id = ?", c.Params("id")).Update("is_banned", true)
		if res.Error != nil {
			return fail(c, res.Error)
		}
		if res.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		return c.JSON(fiber.Map{"message": "user banned"})
	})

	admin.Post("/users/:id/unban", func(c *fiber.Ctx) error {
		res := db.Model(&models.User{}).Where("id = ?", c.Params("id")).
			Updates(map[string]any{"is_banned": false, "fraud_flags": 0})
		if res.Error != nil {
			return fail(c, res.Error)
		}
		if res.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		return c.JSON(fiber.Map{"message": "user unbanned"})
	})

	admin.Patch("/users/:id/role", func(c *fiber.Ctx) error {
		var body struct {
			Role string `json:"role"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		switch body.Role {
		case models.RoleUser, models.RoleAdmin, models.RoleNGO, models.RoleVerifier:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown role"})
		}
		res := db.Model(&models.User{}).Where("id = ?", c.Params("id")).Update("role", body.Role)
		if res.Error != nil {
			return fail(c, res.Error)
		}
		if res.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		return c.JSON(fiber.Map{"message": "role updated"})
	})
}
