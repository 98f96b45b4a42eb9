// services/gamification_test.go
package services

import (
	"context"
	"testing"
	"time"

	"eco-mission-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelForPoints(t *testing.T) {
	cases := []struct {
		points int64
		level  int
		name   string
	}{
		{0, 1, "Seedling"},
		{99, 1, "Seedling"},
		{100, 2, "Sprout"},
		{299, 2, "Sprout"},
		{300, 3, "Sapling"},
		{1000, 5, "Guardian"},
		{9999, 9, "Earth Guardian"},
		{10000, 10, "Planet Savior"},
		{50000, 10, "Planet Savior"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelForPoints(tc.points), "points=%d", tc.points)
		assert.Equal(t, tc.name, LevelName(tc.level))
	}
}

func TestAwardPointsLedgerChain(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")

	_, err := svc.AwardPoints(user.ID, PointsReportSubmitted, "report", models.ReasonReportSubmitted, uuid.NewString(), models.ReferenceReport)
	require.NoError(t, err)
	_, err = svc.AwardPoints(user.ID, PointsTaskCompleted, "task", models.ReasonTaskCompleted, uuid.NewString(), models.ReferenceTask)
	require.NoError(t, err)
	_, err = svc.Penalize(user.ID, 20, "fraud")
	require.NoError(t, err)

	var txs []models.PointTransaction
	require.NoError(t, db.Where("user_id = ?", user.ID).Order("created_at ASC").Find(&txs).Error)
	require.Len(t, txs, 3)

	assert.Equal(t, int64(0), txs[0].BalanceBefore)
	for i, tx := range txs {
		assert.Equal(t, tx.BalanceBefore+tx.Value, tx.BalanceAfter, "entry %d", i)
		if i > 0 {
			assert.Equal(t, txs[i-1].BalanceAfter, tx.BalanceBefore, "entry %d chains", i)
		}
	}

	var fresh models.User
	require.NoError(t, db.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, txs[2].BalanceAfter, fresh.TotalPoints)
	assert.Equal(t, int64(60), fresh.TotalPoints)
	assert.Equal(t, LevelForPoints(fresh.TotalPoints), fresh.Level)
}

func TestAwardPointsIdempotentByReference(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")
	refID := uuid.NewString()

	first, err := svc.AwardPoints(user.ID, 30, "report", models.ReasonReportSubmitted, refID, models.ReferenceReport)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.AwardPoints(user.ID, 30, "report", models.ReasonReportSubmitted, refID, models.ReferenceReport)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)

	var fresh models.User
	require.NoError(t, db.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, int64(30), fresh.TotalPoints)
	assert.Equal(t, int64(1), ledgerCount(t, db, user.ID, models.ReasonReportSubmitted))
}

func TestPenalizeClampsAndBans(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")

	_, err := svc.AwardPoints(user.ID, 40, "seed", models.ReasonAdminAdjustment, uuid.NewString(), models.ReferenceAdmin)
	require.NoError(t, err)

	fresh, err := svc.Penalize(user.ID, PointsFraudPenalty, "fraud")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fresh.TotalPoints, "balance clamps at zero")
	assert.Equal(t, 1, fresh.FraudFlags)
	assert.False(t, fresh.IsBanned)

	// The deduct entry records the actual delta, not the requested one.
	var tx models.PointTransaction
	require.NoError(t, db.Where("user_id = ? AND reason_code = ?", user.ID, models.ReasonFraudPenalty).
		First(&tx).Error)
	assert.Equal(t, int64(-40), tx.Value)

	for i := 0; i < 4; i++ {
		fresh, err = svc.Penalize(user.ID, 10, "fraud")
		require.NoError(t, err)
	}
	assert.Equal(t, 5, fresh.FraudFlags)
	assert.True(t, fresh.IsBanned, "five flags auto-ban")
}

func TestBadgesAwardedOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("contrib_tasks_completed", 10).Error)

	_, err := svc.AwardPoints(user.ID, 50, "task", models.ReasonTaskCompleted, uuid.NewString(), models.ReferenceTask)
	require.NoError(t, err)

	var badges []models.Badge
	require.NoError(t, db.Where("user_id = ? AND name = ?", user.ID, "Task Master").Find(&badges).Error)
	require.Len(t, badges, 1)

	_, err = svc.AwardPoints(user.ID, 50, "task", models.ReasonTaskCompleted, uuid.NewString(), models.ReferenceTask)
	require.NoError(t, err)

	require.NoError(t, db.Where("user_id = ? AND name = ?", user.ID, "Task Master").Find(&badges).Error)
	assert.Len(t, badges, 1, "badge is never duplicated")
}

func TestPointsMasterBadge(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")

	_, err := svc.AwardPoints(user.ID, 1200, "grant", models.ReasonAdminAdjustment, uuid.NewString(), models.ReferenceAdmin)
	require.NoError(t, err)

	var badges []models.Badge
	require.NoError(t, db.Where("user_id = ? AND name = ?", user.ID, "Points Master").Find(&badges).Error)
	assert.Len(t, badges, 1)
}

func TestRecordLoginStreak(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")

	// First ever login: streak starts, no bonus yet.
	fresh, err := svc.RecordLogin(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Streak)
	assert.Equal(t, int64(0), ledgerCount(t, db, user.ID, models.ReasonDailyStreak))

	// Same day again: no-op.
	fresh, err = svc.RecordLogin(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Streak)

	// Came back the next day (simulated by pushing last_login back).
	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("last_login", yesterday).Error)

	fresh, err = svc.RecordLogin(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Streak)
	assert.Equal(t, int64(1), ledgerCount(t, db, user.ID, models.ReasonDailyStreak))
}

func TestRecordLoginMilestone(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")

	yesterday := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).
		Updates(map[string]any{"last_login": yesterday, "streak": 6}).Error)

	fresh, err := svc.RecordLogin(user.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, fresh.Streak)

	var tx models.PointTransaction
	require.NoError(t, db.Where("user_id = ? AND reason_code = ?", user.ID, models.ReasonStreakMilestone).
		First(&tx).Error)
	assert.Equal(t, int64(PointsStreak7Days), tx.Value)
	assert.Equal(t, int64(0), ledgerCount(t, db, user.ID, models.ReasonDailyStreak))
}

func TestClanAggregatesGrowWithAwards(t *testing.T) {
	db := newTestDB(t)
	rewards := NewRewardService(db)
	clans := NewClanService(db, rewards, NoopNotifier{})
	leader := newUser(t, db, "leader")

	clan, err := clans.Create(context.Background(), leader.ID, CreateClanInput{Name: "Green Guard", Region: "north"})
	require.NoError(t, err)

	_, err = rewards.AwardPoints(leader.ID, 30, "report", models.ReasonReportSubmitted, uuid.NewString(), models.ReferenceReport)
	require.NoError(t, err)

	var fresh models.Clan
	require.NoError(t, db.First(&fresh, "id = ?", clan.ID).Error)
	assert.Equal(t, int64(30), fresh.Points)

	var member models.ClanMember
	require.NoError(t, db.First(&member, "clan_id = ? AND user_id = ?", clan.ID, leader.ID).Error)
	assert.Equal(t, int64(30), member.ContributedPoints)

	// Penalties never claw back the clan aggregate.
	_, err = rewards.Penalize(leader.ID, 20, "fraud")
	require.NoError(t, err)
	require.NoError(t, db.First(&fresh, "id = ?", clan.ID).Error)
	assert.Equal(t, int64(30), fresh.Points)
}

func TestAdminAdjustIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewRewardService(db)
	user := newUser(t, db, "amina")
	adjID := uuid.NewString()

	_, err := svc.AdminAdjust(user.ID, -50, "correction", adjID)
	require.NoError(t, err)

	result, err := svc.AdminAdjust(user.ID, -50, "correction", adjID)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)

	var fresh models.User
	require.NoError(t, db.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, int64(0), fresh.TotalPoints)
	assert.Equal(t, 0, fresh.FraudFlags, "adjustments never flag fraud")
}
