// handlers/respond.go
package handlers

import (
	"eco-mission-system/services"

	"github.com/gofiber/fiber/v2"
)

// fail maps a service error to an HTTP response. Unclassified errors
// (storage failures and the like) come back as 503s.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch services.KindOf(err) {
	case services.KindNotFound:
		status = fiber.StatusNotFound
	case services.KindConflict:
		status = fiber.StatusConflict
	case services.KindForbidden:
		status = fiber.StatusForbidden
	case services.KindInvalidState:
		status = fiber.StatusUnprocessableEntity
	case services.KindValidation:
		status = fiber.StatusBadRequest
	case services.KindUnavailable:
		status = fiber.StatusServiceUnavailable
	}

	body := fiber.Map{"error": err.Error()}
	if code := services.CodeOf(err); code != "" {
		body["code"] = code
	}
	return c.Status(status).JSON(body)
}

func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
