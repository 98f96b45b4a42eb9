// handlers/points_routes.go
package handlers

import (
	"strconv"

	"eco-mission-system/middleware"
	"eco-mission-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPointsRoutes(app *fiber.App, rewardService *services.RewardService) {
	// 🔓 Public leaderboard
	app.Get("/leaderboard", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		users, err := rewardService.UserLeaderboard(limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"users": users})
	})

	// 🔐 Secured routes
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Get("/points/me", func(c *fiber.Ctx) error {
		user, err := rewardService.Profile(currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"user_id":       user.ID,
			"total_points":  user.TotalPoints,
			"level":         user.Level,
			"level_name":    services.LevelName(user.Level),
			"streak":        user.Streak,
			"badges":        user.Badges,
			"contributions": user.Contributions,
			"clan_id":       user.ClanID,
			"clan_name":     user.ClanName,
		})
	})

	secured.Get("/points/history", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		limit, _ := strconv.Atoi(c.Query("limit", "20"))

		txs, total, err := rewardService.History(currentUserID(c), page, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"transactions": txs,
			"total":        total,
			"page":         page,
		})
	})

	// Called by the gateway on each authenticated session start. Day claims
	// are idempotent, so repeated calls on the same day are safe.
	secured.Post("/points/login", func(c *fiber.Ctx) error {
		user, err := rewardService.RecordLogin(currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"total_points": user.TotalPoints,
			"level":        user.Level,
			"streak":       user.Streak,
		})
	})

	secured.Post("/points/signup-bonus", func(c *fiber.Ctx) error {
		result, err := rewardService.GrantSignupBonus(currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"duplicate":    result.Duplicate,
			"total_points": result.User.TotalPoints,
		})
	})
}
