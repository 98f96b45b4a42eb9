// handlers/map_routes.go
package handlers

import (
	"eco-mission-system/middleware"
	"eco-mission-system/models"
	"eco-mission-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pin CRUD is thin enough to live on the DB directly; the mission behind a
// pin is owned by the task pipeline (see /s/pins/:id/join).
func SetupMapRoutes(app *fiber.App, db *gorm.DB, notifier services.Notifier) {
	app.Get("/pins", func(c *fiber.Ctx) error {
		var pins []models.MapPin
		q := db.Order("created_at DESC").Limit(500)
		if category := c.Query("category"); category != "" {
			q = q.Where("category = ?", category)
		}
		if err := q.Find(&pins).Error; err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"pins": pins})
	})

	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/pins", func(c *fiber.Ctx) error {
		var body struct {
			Title       string  `json:"title"`
			Description string  `json:"description"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Category    string  `json:"category"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if body.Title == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
		}

		var user models.User
		if err := db.First(&user, "id = ?", currentUserID(c)).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}

		pin := models.MapPin{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			Username:    user.Name,
			Title:       body.Title,
			Description: body.Description,
			Latitude:    body.Latitude,
			Longitude:   body.Longitude,
			Category:    body.Category,
		}
		if pin.Category == "" {
			pin.Category = models.CategoryOther
		}
		if err := db.Create(&pin).Error; err != nil {
			return fail(c, err)
		}

		notifier.Publish(c.Context(), services.TopicGlobalMapPins, map[string]any{
			"event":     "pin_dropped",
			"pin_id":    pin.ID,
			"title":     pin.Title,
			"latitude":  pin.Latitude,
			"longitude": pin.Longitude,
		})
		return c.Status(fiber.StatusCreated).JSON(pin)
	})

	secured.Delete("/pins/:id", func(c *fiber.Ctx) error {
		res := db.Delete(&models.MapPin{}, "id = ? AND user_id = ?", c.Params("id"), currentUserID(c))
		if res.Error != nil {
			return fail(c, res.Error)
		}
		if res.RowsAffected == 0 {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "pin not found"})
		}
		return c.JSON(fiber.Map{"message": "pin removed"})
	})
}
