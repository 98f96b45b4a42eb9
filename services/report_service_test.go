// services/report_service_test.go
package services

import (
	"context"
	"testing"

	"eco-mission-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReportService(t *testing.T) (*ReportService, *captureQueue) {
	t.Helper()
	db := newTestDB(t)
	rewards := NewRewardService(db)
	queue := &captureQueue{}
	svc := NewReportService(db, rewards, NoopNotifier{})
	svc.Queue = queue
	return svc, queue
}

func submitReport(t *testing.T, svc *ReportService, userID string) *models.Report {
	t.Helper()
	report, err := svc.Submit(context.Background(), userID, SubmitReportInput{
		Category: models.CategoryGarbage,
		ImageURL: "https://cdn.example.com/reports/a.jpg",
		Latitude: 6.52,
		Longitude: 3.37,
		Region:   "north",
	})
	require.NoError(t, err)
	return report
}

func TestSubmitReport(t *testing.T) {
	svc, queue := newReportService(t)
	user := newUser(t, svc.DB, "amina")

	report := submitReport(t, svc, user.ID)
	assert.Equal(t, models.ReportPending, report.Status)
	assert.Nil(t, report.TaskID, "no clan, no linked task")

	var fresh models.User
	require.NoError(t, svc.DB.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, int64(1), fresh.Contributions.ReportsSubmitted)
	assert.Equal(t, int64(0), fresh.TotalPoints, "submission alone pays nothing")

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobReport, queue.jobs[0].Kind)
	assert.Equal(t, report.ID, queue.jobs[0].EntityID)
}

func TestSubmitReportSpawnsClanTask(t *testing.T) {
	svc, _ := newReportService(t)
	rewards := svc.Rewards
	clans := NewClanService(svc.DB, rewards, NoopNotifier{})
	user := newUser(t, svc.DB, "amina")
	_, err := clans.Create(context.Background(), user.ID, CreateClanInput{Name: "Green Guard", Region: "north"})
	require.NoError(t, err)

	report := submitReport(t, svc, user.ID)
	require.NotNil(t, report.TaskID)

	var task models.Task
	require.NoError(t, svc.DB.First(&task, "id = ?", *report.TaskID).Error)
	assert.Equal(t, models.TaskOpen, task.Status)
	assert.Equal(t, 1, task.MaxParticipants)
	assert.True(t, task.IsClanTask)
	assert.Empty(t, task.AssignedUsers)
}

func TestApplyVerdictPaysOnce(t *testing.T) {
	svc, _ := newReportService(t)
	user := newUser(t, svc.DB, "amina")
	report := submitReport(t, svc, user.ID)

	verdict := Verdict{Valid: true, Confidence: 0.95}
	settled, err := svc.ApplyVerdict(context.Background(), report.ID, verdict)
	require.NoError(t, err)
	assert.Equal(t, models.ReportVerified, settled.Status)
	assert.Equal(t, int64(PointsReportSubmitted), settled.PointsAwarded)

	// Verdict re-delivery is a silent no-op.
	again, err := svc.ApplyVerdict(context.Background(), report.ID, verdict)
	require.NoError(t, err)
	assert.Equal(t, models.ReportVerified, again.Status)

	var fresh models.User
	require.NoError(t, svc.DB.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, int64(PointsReportSubmitted), fresh.TotalPoints)
	assert.Equal(t, int64(1), ledgerCount(t, svc.DB, user.ID, models.ReasonReportSubmitted))
}

func TestApplyVerdictFraud(t *testing.T) {
	svc, _ := newReportService(t)
	user := newUser(t, svc.DB, "amina")
	report := submitReport(t, svc, user.ID)

	settled, err := svc.ApplyVerdict(context.Background(), report.ID, Verdict{Fraud: true, Reason: "stock photo"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportFraud, settled.Status)

	var fresh models.User
	require.NoError(t, svc.DB.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, 1, fresh.FraudFlags)
	assert.Equal(t, int64(0), fresh.TotalPoints)
}

func TestApplyVerdictInconclusiveKeepsPending(t *testing.T) {
	svc, _ := newReportService(t)
	user := newUser(t, svc.DB, "amina")
	report := submitReport(t, svc, user.ID)

	settled, err := svc.ApplyVerdict(context.Background(), report.ID, Verdict{Valid: false, Confidence: 0.4})
	require.NoError(t, err)
	assert.Equal(t, models.ReportPending, settled.Status)
	assert.Equal(t, int64(0), settled.PointsAwarded)
}

func TestCastVoteRules(t *testing.T) {
	svc, _ := newReportService(t)
	submitter := newUser(t, svc.DB, "amina")
	voter := newUser(t, svc.DB, "bola")
	report := submitReport(t, svc, submitter.ID)

	_, err := svc.CastVote(context.Background(), report.ID, submitter.ID, models.VoteValid)
	assert.Equal(t, KindForbidden, KindOf(err), "no self-verification")

	_, err = svc.CastVote(context.Background(), report.ID, voter.ID, models.VoteValid)
	require.NoError(t, err)

	_, err = svc.CastVote(context.Background(), report.ID, voter.ID, models.VoteValid)
	assert.Equal(t, CodeAlreadyVoted, CodeOf(err))

	// Each voter earns the fixed bonus exactly once.
	var fresh models.User
	require.NoError(t, svc.DB.First(&fresh, "id = ?", voter.ID).Error)
	assert.Equal(t, int64(PointsVerificationDone), fresh.TotalPoints)
	assert.Equal(t, int64(1), fresh.Contributions.VerificationsCompleted)
}

func TestVoteQuorumResolvesMajority(t *testing.T) {
	svc, _ := newReportService(t)
	submitter := newUser(t, svc.DB, "amina")
	report := submitReport(t, svc, submitter.ID)

	voters := []*models.User{
		newUser(t, svc.DB, "bola"),
		newUser(t, svc.DB, "chidi"),
		newUser(t, svc.DB, "dayo"),
	}
	votes := []string{models.VoteValid, models.VoteInvalid, models.VoteValid}

	var settled *models.Report
	var err error
	for i, voter := range voters {
		settled, err = svc.CastVote(context.Background(), report.ID, voter.ID, votes[i])
		require.NoError(t, err)
	}
	assert.Equal(t, models.ReportVerified, settled.Status, "2:1 majority verifies")
	assert.Equal(t, 3, settled.VerificationCount)

	// A late vote lands after resolution and changes nothing.
	late := newUser(t, svc.DB, "efe")
	_, err = svc.CastVote(context.Background(), report.ID, late.ID, models.VoteInvalid)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestVoteQuorumRejects(t *testing.T) {
	svc, _ := newReportService(t)
	submitter := newUser(t, svc.DB, "amina")
	report := submitReport(t, svc, submitter.ID)

	votes := []string{models.VoteInvalid, models.VoteInvalid, models.VoteValid}
	var settled *models.Report
	for i, name := range []string{"bola", "chidi", "dayo"} {
		voter := newUser(t, svc.DB, name)
		var err error
		settled, err = svc.CastVote(context.Background(), report.ID, voter.ID, votes[i])
		require.NoError(t, err)
	}
	assert.Equal(t, models.ReportRejected, settled.Status)

	var fresh models.User
	require.NoError(t, svc.DB.First(&fresh, "id = ?", submitter.ID).Error)
	assert.Equal(t, int64(0), fresh.TotalPoints, "rejected reports pay nothing")
}

func TestAdminSetStatusPaysOnce(t *testing.T) {
	svc, _ := newReportService(t)
	admin := newUser(t, svc.DB, "admin")
	user := newUser(t, svc.DB, "amina")
	report := submitReport(t, svc, user.ID)

	settled, err := svc.AdminSetStatus(context.Background(), report.ID, admin.ID, models.ReportVerified, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReportVerified, settled.Status)
	require.NotNil(t, settled.ResolvedBy)
	assert.Equal(t, admin.ID, *settled.ResolvedBy)

	// Verifying again, or a late validator verdict, pays nothing more.
	_, err = svc.AdminSetStatus(context.Background(), report.ID, admin.ID, models.ReportVerified, "")
	require.NoError(t, err)
	_, err = svc.ApplyVerdict(context.Background(), report.ID, Verdict{Valid: true})
	require.NoError(t, err)

	assert.Equal(t, int64(1), ledgerCount(t, svc.DB, user.ID, models.ReasonReportSubmitted))
}
