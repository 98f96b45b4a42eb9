// handlers/clan_routes.go
package handlers

import (
	"strconv"

	"eco-mission-system/middleware"
	"eco-mission-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupClanRoutes(app *fiber.App, clanService *services.ClanService, rewardService *services.RewardService) {
	// 🔓 Public routes
	app.Get("/clans", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		limit, _ := strconv.Atoi(c.Query("limit", "50"))

		clans, total, err := clanService.List(services.ClanFilter{
			Region: c.Query("region"),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"clans": clans,
			"total": total,
			"page":  page,
		})
	})

	app.Get("/clans/leaderboard", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		clans, err := clanService.Leaderboard(limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"clans": clans})
	})

	app.Get("/clans/nearby", func(c *fiber.Ctx) error {
		lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
		lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
		if err1 != nil || err2 != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "lat and lng are required"})
		}
		radius, _ := strconv.ParseFloat(c.Query("radius_km", "25"), 64)
		limit, _ := strconv.Atoi(c.Query("limit", "20"))

		clans, err := clanService.Nearby(lat, lng, radius, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"clans": clans})
	})

	app.Get("/clans/:id", func(c *fiber.Ctx) error {
		clan, err := clanService.Get(c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(clan)
	})

	app.Get("/clans/:id/transactions", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		limit, _ := strconv.Atoi(c.Query("limit", "20"))

		txs, total, err := rewardService.ClanHistory(c.Params("id"), page, limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{
			"transactions": txs,
			"total":        total,
			"page":         page,
		})
	})

	// 🔐 Secured routes
	secured := app.Group("/s", middleware.UserContextMiddleware())

	secured.Post("/clans", func(c *fiber.Ctx) error {
		var in services.CreateClanInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		clan, err := clanService.Create(c.Context(), currentUserID(c), in)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(clan)
	})

	secured.Get("/clans/mine", func(c *fiber.Ctx) error {
		clan, err := clanService.MyClan(currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(clan)
	})

	secured.Post("/clans/:id/join", func(c *fiber.Ctx) error {
		clan, requested, err := clanService.Join(c.Context(), c.Params("id"), currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		if requested {
			return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
				"message": "join request submitted",
			})
		}
		return c.JSON(clan)
	})

	secured.Post("/clans/leave", func(c *fiber.Ctx) error {
		if err := clanService.Leave(c.Context(), currentUserID(c)); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "left clan"})
	})

	secured.Post("/clans/:id/requests/:userId/approve", func(c *fiber.Ctx) error {
		clan, err := clanService.ApproveRequest(c.Context(), c.Params("id"), currentUserID(c), c.Params("userId"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(clan)
	})

	secured.Post("/clans/:id/requests/:userId/reject", func(c *fiber.Ctx) error {
		if err := clanService.RejectRequest(c.Context(), c.Params("id"), currentUserID(c), c.Params("userId")); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "request rejected"})
	})

	secured.Post("/clans/:id/invites", func(c *fiber.Ctx) error {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		invite, err := clanService.Invite(c.Context(), c.Params("id"), currentUserID(c), body.UserID)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(invite)
	})

	secured.Post("/invites/:id/respond", func(c *fiber.Ctx) error {
		var body struct {
			Accept bool `json:"accept"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		clan, err := clanService.RespondInvite(c.Context(), c.Params("id"), currentUserID(c), body.Accept)
		if err != nil {
			return fail(c, err)
		}
		if clan == nil {
			return c.JSON(fiber.Map{"message": "invite declined"})
		}
		return c.JSON(clan)
	})

	secured.Delete("/clans/:id/members/:userId", func(c *fiber.Ctx) error {
		if err := clanService.Kick(c.Context(), c.Params("id"), currentUserID(c), c.Params("userId")); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "member removed"})
	})

	secured.Patch("/clans/:id/members/:userId/role", func(c *fiber.Ctx) error {
		var body struct {
			Role string `json:"role"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := clanService.SetMemberRole(c.Context(), c.Params("id"), currentUserID(c), c.Params("userId"), body.Role); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "role updated"})
	})

	// Group drives
	secured.Post("/clans/:id/activities", func(c *fiber.Ctx) error {
		var in services.ProposeActivityInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		activity, err := clanService.ProposeActivity(c.Context(), c.Params("id"), currentUserID(c), in)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(activity)
	})

	secured.Get("/activities/:id", func(c *fiber.Ctx) error {
		activity, err := clanService.GetActivity(c.Params("id"))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(activity)
	})

	secured.Post("/activities/:id/join", func(c *fiber.Ctx) error {
		if err := clanService.JoinActivity(c.Context(), c.Params("id"), currentUserID(c)); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "joined activity"})
	})

	secured.Post("/activities/:id/leave", func(c *fiber.Ctx) error {
		if err := clanService.LeaveActivity(c.Context(), c.Params("id"), currentUserID(c)); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "left activity"})
	})

	secured.Post("/activities/:id/complete", func(c *fiber.Ctx) error {
		activity, err := clanService.CompleteActivity(c.Context(), c.Params("id"), currentUserID(c))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(activity)
	})

	secured.Post("/activities/:id/cancel", func(c *fiber.Ctx) error {
		if err := clanService.CancelActivity(c.Context(), c.Params("id"), currentUserID(c)); err != nil {
			return fail(c, err)
		}
		return c.JSON(fiber.Map{"message": "activity cancelled"})
	})
}
