// services/service_test.go
package services

import (
	"testing"

	"eco-mission-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the full schema. A
// single connection keeps the in-memory database alive and serializes
// writes, which is what the Postgres row locks give us in production.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Badge{},
		&models.PointTransaction{},
		&models.Report{},
		&models.ReportVerification{},
		&models.Task{},
		&models.TaskAssignment{},
		&models.CompletionProof{},
		&models.Clan{},
		&models.ClanMember{},
		&models.ClanJoinRequest{},
		&models.ClanInvite{},
		&models.ClanActivity{},
		&models.ActivityParticipant{},
		&models.MapPin{},
	))
	return db
}

func newUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := models.User{
		ID:   uuid.NewString(),
		Name: name,
		Role: models.RoleUser,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

// captureQueue records enqueued validation jobs for assertions.
type captureQueue struct {
	jobs []ValidationJob
}

func (q *captureQueue) Enqueue(job ValidationJob) {
	q.jobs = append(q.jobs, job)
}

func ledgerCount(t *testing.T, db *gorm.DB, userID string, code models.ReasonCode) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.PointTransaction{}).
		Where("user_id = ? AND reason_code = ?", userID, code).
		Count(&n).Error)
	return n
}
