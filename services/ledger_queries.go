// services/ledger_queries.go
package services

import (
	"errors"

	"eco-mission-system/models"

	"gorm.io/gorm"
)

// History returns a user's ledger entries, newest first.
func (s *RewardService) History(userID string, page, limit int) ([]models.PointTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := s.DB.Model(&models.PointTransaction{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []models.PointTransaction
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&txs).Error
	return txs, total, err
}

// ClanHistory returns the ledger entries credited while members belonged to
// the clan, newest first. The clan snapshot on each entry makes this a flat
// filter even after members move on.
func (s *RewardService) ClanHistory(clanID string, page, limit int) ([]models.PointTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	q := s.DB.Model(&models.PointTransaction{}).Where("clan_id = ?", clanID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []models.PointTransaction
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&txs).Error
	return txs, total, err
}

// Profile returns the user with badges loaded, for the stats endpoints.
func (s *RewardService) Profile(userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.Preload("Badges").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user", userID)
		}
		return nil, err
	}
	return &user, nil
}

// UserLeaderboard returns the top users by lifetime points.
func (s *RewardService) UserLeaderboard(limit int) ([]models.User, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	var users []models.User
	err := s.DB.Order("total_points DESC").Limit(limit).Find(&users).Error
	return users, err
}
