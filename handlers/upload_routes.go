// handlers/upload_routes.go
package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"eco-mission-system/middleware"
	"eco-mission-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var allowedImageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true,
}

// SetupUploadRoutes serves evidence-image upload for reports and completion
// proofs. R2 when configured, local disk otherwise.
func SetupUploadRoutes(app *fiber.App) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/uploads", func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("image")
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "image file is required"})
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !allowedImageExts[ext] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported image type"})
		}

		kind := c.FormValue("kind", "reports")
		if kind != "reports" && kind != "proofs" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "kind must be 'reports' or 'proofs'"})
		}

		key := fmt.Sprintf("%s/%s%s", kind, uuid.NewString(), ext)

		if utils.R2Enabled() {
			url, err := utils.UploadFileToR2(fileHeader, key)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "upload failed",
					"cause": err.Error(),
				})
			}
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url})
		}

		destPath := utils.GetUploadPath(key)
		if err := utils.SaveFile(fileHeader, destPath); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "upload failed",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": "/" + destPath})
	})
}
