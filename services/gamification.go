// services/gamification.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"eco-mission-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Point values for every rewardable action (tunable via config later).
const (
	PointsReportSubmitted  = 30
	PointsTaskCompleted    = 50
	PointsDailyStreak      = 10
	PointsVerificationDone = 5
	PointsGroupDriveBonus  = 25
	PointsSignupBonus      = 50
	PointsStreak7Days      = 70
	PointsStreak30Days     = 300
	PointsFraudPenalty     = 100

	// Activity completion: clan-wide bonus plus a fixed personal bonus.
	PointsActivityParticipant    = 75
	PointsActivityClanBase       = 150
	PointsActivityPerParticipant = 10
)

// Level bands: the highest band whose minimum is <= balance wins.
var LevelThresholds = []int64{0, 100, 300, 600, 1000, 1500, 2500, 4000, 6000, 10000}

var levelNames = []string{
	"Seedling", "Sprout", "Sapling", "Tree", "Guardian",
	"Protector", "Champion", "Eco Hero", "Earth Guardian", "Planet Savior",
}

// LevelForPoints derives the level from the balance. Level is never stored
// authoritatively — the cached column is recomputed on every award.
func LevelForPoints(points int64) int {
	for i := len(LevelThresholds) - 1; i >= 0; i-- {
		if points >= LevelThresholds[i] {
			return i + 1
		}
	}
	return 1
}

func LevelName(level int) string {
	if level < 1 || level > len(levelNames) {
		return levelNames[0]
	}
	return levelNames[level-1]
}

// badgeRule is a pure threshold over account state; Name uniqueness makes
// awarding idempotent.
type badgeRule struct {
	Name        string
	Icon        string
	Description string
	Earned      func(u *models.User) bool
}

var badgeRules = []badgeRule{
	{"7-Day Streak", "🔥", "Active for 7 consecutive days", func(u *models.User) bool { return u.Streak >= 7 }},
	{"30-Day Streak", "⚡", "Active for 30 consecutive days", func(u *models.User) bool { return u.Streak >= 30 }},
	{"Centurion", "💯", "Active for 100 consecutive days", func(u *models.User) bool { return u.Streak >= 100 }},
	{"Task Master", "🎯", "Completed 10 tasks", func(u *models.User) bool { return u.Contributions.TasksCompleted >= 10 }},
	{"Eco Warrior", "🛡️", "Completed 50 tasks", func(u *models.User) bool { return u.Contributions.TasksCompleted >= 50 }},
	{"Watchdog", "👁️", "Submitted 5 reports", func(u *models.User) bool { return u.Contributions.ReportsSubmitted >= 5 }},
	{"Points Master", "⭐", "Earned 1000 points", func(u *models.User) bool { return u.TotalPoints >= 1000 }},
}

// RewardService is the reward engine: the only writer of balances, levels,
// streaks and badges, and the only appender to the point ledger.
type RewardService struct {
	DB *gorm.DB
}

func NewRewardService(db *gorm.DB) *RewardService {
	return &RewardService{DB: db}
}

// AwardResult is returned by AwardPoints. Duplicate is set when the award was
// already settled and this call changed nothing.
type AwardResult struct {
	User        *models.User             `json:"user"`
	Transaction *models.PointTransaction `json:"transaction"`
	Duplicate   bool                     `json:"duplicate"`
}

// AwardPoints applies a point delta to a user and appends a ledger entry in
// one transaction. The account row is written before the ledger row that
// describes it. When a reference is given, (userID, referenceType,
// referenceID, reasonCode) acts as an idempotency key: re-delivery of the
// same triggering event returns the settled state without paying again.
func (s *RewardService) AwardPoints(userID string, value int64, reason string, code models.ReasonCode, referenceID, referenceType string) (*AwardResult, error) {
	var result AwardResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user", userID)
			}
			return err
		}

		if referenceID != "" {
			var existing models.PointTransaction
			err := tx.Where(
				"user_id = ? AND reference_id = ? AND reference_type = ? AND reason_code = ?",
				userID, referenceID, referenceType, code,
			).First(&existing).Error
			if err == nil {
				result = AwardResult{User: &user, Transaction: &existing, Duplicate: true}
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		balanceBefore := user.TotalPoints
		user.TotalPoints += value
		user.Level = LevelForPoints(user.TotalPoints)
		touchStreak(&user, time.Now())

		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		entry := models.PointTransaction{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			ClanID:        user.ClanID,
			Kind:          kindFor(code, value),
			Value:         value,
			Reason:        reason,
			ReasonCode:    code,
			ReferenceID:   referenceID,
			ReferenceType: referenceType,
			BalanceBefore: balanceBefore,
			BalanceAfter:  user.TotalPoints,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		// Clan aggregates only ever grow from rewards.
		if user.ClanID != nil && value > 0 {
			if err := tx.Model(&models.Clan{}).Where("id = ?", *user.ClanID).
				Update("points", gorm.Expr("points + ?", value)).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.ClanMember{}).
				Where("clan_id = ? AND user_id = ?", *user.ClanID, user.ID).
				Update("contributed_points", gorm.Expr("contributed_points + ?", value)).Error; err != nil {
				return err
			}
		}

		if err := s.checkBadges(tx, &user); err != nil {
			return err
		}

		result = AwardResult{User: &user, Transaction: &entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.Duplicate {
		log.Printf("🎮 Points awarded: %s %+d → balance=%d lvl=%d (%s)",
			userID, value, result.User.TotalPoints, result.User.Level, code)
	}
	return &result, nil
}

// Penalize deducts points for fraud, clamping the balance at zero, and bumps
// the fraud flag counter. Five flags auto-ban the account.
func (s *RewardService) Penalize(userID string, value int64, reason string) (*models.User, error) {
	var user models.User
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user", userID)
			}
			return err
		}

		balanceBefore := user.TotalPoints
		user.TotalPoints -= value
		if user.TotalPoints < 0 {
			user.TotalPoints = 0
		}
		user.Level = LevelForPoints(user.TotalPoints)
		user.FraudFlags++
		if user.FraudFlags >= 5 {
			user.IsBanned = true
		}
		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		entry := models.PointTransaction{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			Kind:          models.TransactionDeduct,
			Value:         -(balanceBefore - user.TotalPoints),
			Reason:        reason,
			ReasonCode:    models.ReasonFraudPenalty,
			BalanceBefore: balanceBefore,
			BalanceAfter:  user.TotalPoints,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		log.Printf("🚫 User %s banned after %d fraud flags", userID, user.FraudFlags)
	}
	return &user, nil
}

// AdminAdjust applies a manual correction in either direction. Negative
// balances clamp at zero; unlike Penalize it never touches fraud flags.
func (s *RewardService) AdminAdjust(userID string, value int64, reason, adjustmentID string) (*AwardResult, error) {
	if value >= 0 {
		return s.AwardPoints(userID, value, reason, models.ReasonAdminAdjustment, adjustmentID, models.ReferenceAdmin)
	}

	var result AwardResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("user", userID)
			}
			return err
		}

		if adjustmentID != "" {
			var existing models.PointTransaction
			err := tx.Where(
				"user_id = ? AND reference_id = ? AND reference_type = ? AND reason_code = ?",
				userID, adjustmentID, models.ReferenceAdmin, models.ReasonAdminAdjustment,
			).First(&existing).Error
			if err == nil {
				result = AwardResult{User: &user, Transaction: &existing, Duplicate: true}
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		balanceBefore := user.TotalPoints
		user.TotalPoints += value
		if user.TotalPoints < 0 {
			user.TotalPoints = 0
		}
		user.Level = LevelForPoints(user.TotalPoints)
		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		entry := models.PointTransaction{
			ID:            uuid.NewString(),
			UserID:        user.ID,
			ClanID:        user.ClanID,
			Kind:          models.TransactionDeduct,
			Value:         user.TotalPoints - balanceBefore,
			Reason:        reason,
			ReasonCode:    models.ReasonAdminAdjustment,
			ReferenceID:   adjustmentID,
			ReferenceType: models.ReferenceAdmin,
			BalanceBefore: balanceBefore,
			BalanceAfter:  user.TotalPoints,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		result = AwardResult{User: &user, Transaction: &entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordLogin maintains the daily login streak and pays the streak bonus.
// The day-claim update keys on last_login so concurrent logins on the same
// day pay at most once.
func (s *RewardService) RecordLogin(userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user", userID)
		}
		return nil, err
	}

	now := time.Now()
	today := startOfDay(now)

	res := s.DB.Model(&models.User{}).
		Where("id = ? AND (last_login IS NULL OR last_login < ?)", userID, today).
		Update("last_login", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Already logged in today; nothing to pay.
		return &user, nil
	}

	streak := 1
	if user.LastLogin != nil && startOfDay(*user.LastLogin).Equal(today.AddDate(0, 0, -1)) {
		streak = user.Streak + 1
	}
	// Stamp the action date too so the award below does not re-derive the
	// streak from a stale value.
	if err := s.DB.Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]any{"streak": streak, "last_action_date": now}).Error; err != nil {
		return nil, err
	}

	if streak > 1 {
		if streak%7 == 0 {
			if _, err := s.AwardPoints(userID, PointsStreak7Days,
				fmt.Sprintf("%d-day streak bonus!", streak), models.ReasonStreakMilestone, "", ""); err != nil {
				return nil, err
			}
		} else {
			if _, err := s.AwardPoints(userID, PointsDailyStreak,
				"Daily login streak", models.ReasonDailyStreak, "", ""); err != nil {
				return nil, err
			}
		}
	}

	if err := s.DB.Preload("Badges").First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GrantSignupBonus pays the one-time welcome bonus. The user id doubles as
// the reference, so re-delivery is a no-op.
func (s *RewardService) GrantSignupBonus(userID string) (*AwardResult, error) {
	return s.AwardPoints(userID, PointsSignupBonus, "Welcome to the platform!",
		models.ReasonSignupBonus, userID, models.ReferenceAdmin)
}

// checkBadges evaluates every badge rule against current account state and
// appends the newly earned ones. Name uniqueness is the idempotency guard.
func (s *RewardService) checkBadges(tx *gorm.DB, user *models.User) error {
	for _, rule := range badgeRules {
		if !rule.Earned(user) {
			continue
		}
		var count int64
		if err := tx.Model(&models.Badge{}).
			Where("user_id = ? AND name = ?", user.ID, rule.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		badge := models.Badge{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			Name:        rule.Name,
			Icon:        rule.Icon,
			Description: rule.Description,
		}
		if err := tx.Create(&badge).Error; err != nil {
			return err
		}
		log.Printf("🎖️ Badge awarded: %q → %s", rule.Name, user.ID)
	}
	return nil
}

// touchStreak updates the consecutive-day action streak at day granularity.
func touchStreak(user *models.User, now time.Time) {
	today := startOfDay(now)
	var last *time.Time
	if user.LastActionDate != nil {
		d := startOfDay(*user.LastActionDate)
		last = &d
	}
	if last == nil || last.Before(today) {
		yesterday := today.AddDate(0, 0, -1)
		if last != nil && last.Equal(yesterday) {
			user.Streak++
		} else {
			user.Streak = 1
		}
		user.LastActionDate = &now
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func kindFor(code models.ReasonCode, value int64) models.TransactionKind {
	if value < 0 {
		return models.TransactionDeduct
	}
	switch code {
	case models.ReasonVerificationBonus, models.ReasonGroupDriveBonus, models.ReasonSignupBonus,
		models.ReasonStreakMilestone, models.ReasonClanBonus, models.ReasonBadgeEarned:
		return models.TransactionBonus
	}
	return models.TransactionEarn
}
