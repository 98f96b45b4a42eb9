// services/task_service_test.go
package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"eco-mission-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskService(t *testing.T) (*TaskService, *captureQueue) {
	t.Helper()
	db := newTestDB(t)
	rewards := NewRewardService(db)
	queue := &captureQueue{}
	svc := NewTaskService(db, rewards, NoopNotifier{})
	svc.Queue = queue
	return svc, queue
}

func seedTask(t *testing.T, svc *TaskService, maxParticipants int) *models.Task {
	t.Helper()
	task := models.Task{
		ID:              uuid.NewString(),
		Category:        models.CategoryGarbage,
		Title:           "Cleanup drive",
		Status:          models.TaskOpen,
		MaxParticipants: maxParticipants,
		PointsReward:    PointsTaskCompleted,
	}
	require.NoError(t, svc.DB.Create(&task).Error)
	return &task
}

func TestNearbyTasks(t *testing.T) {
	svc, _ := newTaskService(t)

	near := seedTask(t, svc, 2)
	require.NoError(t, svc.DB.Model(&models.Task{}).Where("id = ?", near.ID).
		Updates(map[string]any{"latitude": 6.52, "longitude": 3.37}).Error)

	far := seedTask(t, svc, 2)
	require.NoError(t, svc.DB.Model(&models.Task{}).Where("id = ?", far.ID).
		Updates(map[string]any{"latitude": 9.05, "longitude": 7.49}).Error)

	closed := seedTask(t, svc, 2)
	require.NoError(t, svc.DB.Model(&models.Task{}).Where("id = ?", closed.ID).
		Updates(map[string]any{"latitude": 6.52, "longitude": 3.37, "status": models.TaskCompleted}).Error)

	got, err := svc.Nearby(6.5, 3.35, 10, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID, got[0].ID)
}

func TestAcceptTask(t *testing.T) {
	svc, _ := newTaskService(t)
	task := seedTask(t, svc, 2)
	user := newUser(t, svc.DB, "amina")

	got, err := svc.Accept(context.Background(), task.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, got.Status)
	require.Len(t, got.AssignedUsers, 1)
	assert.Equal(t, models.AssignmentAssigned, got.AssignedUsers[0].SubStatus)

	_, err = svc.Accept(context.Background(), task.ID, user.ID)
	assert.Equal(t, CodeAlreadyJoined, CodeOf(err))
}

func TestAcceptTaskCapacity(t *testing.T) {
	svc, _ := newTaskService(t)
	task := seedTask(t, svc, 2)

	for _, name := range []string{"amina", "bola"} {
		user := newUser(t, svc.DB, name)
		_, err := svc.Accept(context.Background(), task.ID, user.ID)
		require.NoError(t, err)
	}

	third := newUser(t, svc.DB, "chidi")
	_, err := svc.Accept(context.Background(), task.ID, third.ID)
	assert.Equal(t, CodeTaskFull, CodeOf(err))

	// A drop frees the slot.
	var first models.User
	require.NoError(t, svc.DB.First(&first, "name = ?", "amina").Error)
	_, err = svc.Drop(context.Background(), task.ID, first.ID)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), task.ID, third.ID)
	require.NoError(t, err)
}

func TestAcceptLastSlotRace(t *testing.T) {
	svc, _ := newTaskService(t)
	task := seedTask(t, svc, 1)

	users := make([]*models.User, 8)
	for i := range users {
		users[i] = newUser(t, svc.DB, uuid.NewString())
	}

	var wg sync.WaitGroup
	winners := make(chan string, len(users))
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if _, err := svc.Accept(context.Background(), task.ID, userID); err == nil {
				winners <- userID
			}
		}(u.ID)
	}
	wg.Wait()
	close(winners)

	count := 0
	for range winners {
		count++
	}
	assert.Equal(t, 1, count, "exactly one claimant wins the last slot")
}

func TestCreateForClanSnapshotsRoster(t *testing.T) {
	svc, _ := newTaskService(t)
	clans := NewClanService(svc.DB, svc.Rewards, NoopNotifier{})
	leader := newUser(t, svc.DB, "leader")
	clan, err := clans.Create(context.Background(), leader.ID, CreateClanInput{Name: "Green Guard", Region: "north"})
	require.NoError(t, err)

	member := newUser(t, svc.DB, "member")
	_, _, err = clans.Join(context.Background(), clan.ID, member.ID)
	require.NoError(t, err)

	task, err := svc.CreateForClan(context.Background(), clan.ID, leader.ID, CreateTaskInput{
		Title:    "Plant 100 trees",
		Category: models.CategoryTree,
	})
	require.NoError(t, err)
	require.Len(t, task.AssignedUsers, 2)
	for _, a := range task.AssignedUsers {
		assert.Equal(t, models.AssignmentPendingApproval, a.SubStatus)
	}

	// Members joining after creation are not on the roster snapshot.
	late := newUser(t, svc.DB, "late")
	_, _, err = clans.Join(context.Background(), clan.ID, late.ID)
	require.NoError(t, err)
	fresh, err := svc.Get(task.ID)
	require.NoError(t, err)
	assert.Len(t, fresh.AssignedUsers, 2)

	// Plain members cannot create clan tasks.
	_, err = svc.CreateForClan(context.Background(), clan.ID, member.ID, CreateTaskInput{
		Title:    "Another",
		Category: models.CategoryTree,
	})
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestApproveAndDrop(t *testing.T) {
	svc, _ := newTaskService(t)
	task := seedTask(t, svc, 5)
	user := newUser(t, svc.DB, "amina")
	require.NoError(t, svc.DB.Create(&models.TaskAssignment{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		UserID:    user.ID,
		SubStatus: models.AssignmentPendingApproval,
	}).Error)

	got, err := svc.Approve(context.Background(), task.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, got.Status)

	_, err = svc.Approve(context.Background(), task.ID, user.ID)
	assert.Equal(t, CodeAlreadyHandled, CodeOf(err))

	stranger := newUser(t, svc.DB, "bola")
	_, err = svc.Approve(context.Background(), task.ID, stranger.ID)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.Drop(context.Background(), task.ID, user.ID)
	require.NoError(t, err)
	_, err = svc.Drop(context.Background(), task.ID, user.ID)
	assert.Equal(t, CodeAlreadyHandled, CodeOf(err))
}

func TestSubmitProofCompletesTask(t *testing.T) {
	svc, queue := newTaskService(t)
	task := seedTask(t, svc, 2)
	alice := newUser(t, svc.DB, "amina")
	bola := newUser(t, svc.DB, "bola")
	_, err := svc.Accept(context.Background(), task.ID, alice.ID)
	require.NoError(t, err)
	_, err = svc.Accept(context.Background(), task.ID, bola.ID)
	require.NoError(t, err)

	stranger := newUser(t, svc.DB, "chidi")
	_, err = svc.SubmitProof(context.Background(), task.ID, stranger.ID, "https://cdn.example.com/proofs/x.jpg")
	assert.Equal(t, KindForbidden, KindOf(err))

	got, err := svc.SubmitProof(context.Background(), task.ID, alice.ID, "https://cdn.example.com/proofs/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.TaskInProgress, got.Status, "one assignee still active")

	_, err = svc.SubmitProof(context.Background(), task.ID, alice.ID, "https://cdn.example.com/proofs/a2.jpg")
	assert.Equal(t, CodeAlreadyHandled, CodeOf(err))

	got, err = svc.SubmitProof(context.Background(), task.ID, bola.ID, "https://cdn.example.com/proofs/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status, "last active assignee completes the task")
	assert.NotNil(t, got.CompletedAt)

	require.Len(t, queue.jobs, 2)
	assert.Equal(t, JobTaskProof, queue.jobs[0].Kind)
}

func TestApplyProofVerdictPaysOnce(t *testing.T) {
	svc, queue := newTaskService(t)
	task := seedTask(t, svc, 1)
	user := newUser(t, svc.DB, "amina")
	_, err := svc.Accept(context.Background(), task.ID, user.ID)
	require.NoError(t, err)
	_, err = svc.SubmitProof(context.Background(), task.ID, user.ID, "https://cdn.example.com/proofs/a.jpg")
	require.NoError(t, err)

	proofID := queue.jobs[0].EntityID
	verdict := Verdict{Valid: true, Confidence: 0.9}
	require.NoError(t, svc.ApplyProofVerdict(context.Background(), proofID, verdict))
	require.NoError(t, svc.ApplyProofVerdict(context.Background(), proofID, verdict))

	var fresh models.User
	require.NoError(t, svc.DB.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, int64(PointsTaskCompleted), fresh.TotalPoints)
	assert.Equal(t, int64(1), fresh.Contributions.TasksCompleted)
	assert.Equal(t, int64(1), ledgerCount(t, svc.DB, user.ID, models.ReasonTaskCompleted))
}

func TestVerifyMissionPaysExactlyOnce(t *testing.T) {
	svc, _ := newTaskService(t)
	admin := newUser(t, svc.DB, "admin")
	task := seedTask(t, svc, 3)

	users := []*models.User{
		newUser(t, svc.DB, "amina"),
		newUser(t, svc.DB, "bola"),
	}
	// Everyone on the roster before any proof lands, or the first proof
	// completes the task and closes it to later joiners.
	for _, u := range users {
		_, err := svc.Accept(context.Background(), task.ID, u.ID)
		require.NoError(t, err)
	}
	for _, u := range users {
		_, err := svc.SubmitProof(context.Background(), task.ID, u.ID, "https://cdn.example.com/proofs/"+u.ID+".jpg")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyMission(context.Background(), task.ID, admin.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, CodeAlreadyHandled, CodeOf(err))
		}
	}
	assert.Equal(t, 1, succeeded, "reward_paid flips exactly once")

	for _, u := range users {
		assert.Equal(t, int64(1), ledgerCount(t, svc.DB, u.ID, models.ReasonTaskCompleted), "user %s", u.Name)
	}
}

func TestVerifyMissionPaysAssignedWithoutProof(t *testing.T) {
	svc, _ := newTaskService(t)
	admin := newUser(t, svc.DB, "admin")
	task := seedTask(t, svc, 3)

	// The pin flow has no proof step: the joiner sits at assigned until the
	// admin settles the mission.
	joiner := newUser(t, svc.DB, "amina")
	_, err := svc.Accept(context.Background(), task.ID, joiner.ID)
	require.NoError(t, err)

	got, err := svc.VerifyMission(context.Background(), task.ID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.True(t, got.RewardPaid)
	assert.Equal(t, int64(1), ledgerCount(t, svc.DB, joiner.ID, models.ReasonTaskCompleted))

	var fresh models.TaskAssignment
	require.NoError(t, svc.DB.First(&fresh, "task_id = ? AND user_id = ?", task.ID, joiner.ID).Error)
	assert.Equal(t, models.AssignmentCompleted, fresh.SubStatus)

	_, err = svc.VerifyMission(context.Background(), task.ID, admin.ID)
	assert.Equal(t, CodeAlreadyHandled, CodeOf(err))
	assert.Equal(t, int64(1), ledgerCount(t, svc.DB, joiner.ID, models.ReasonTaskCompleted))
}

func TestVerifyMissionDedupsProofPayout(t *testing.T) {
	svc, queue := newTaskService(t)
	admin := newUser(t, svc.DB, "admin")
	clan := models.Clan{
		ID: uuid.NewString(), Name: "Green Guard", Slug: "green-guard",
		Region: "north", MaxMembers: 50, CreatedBy: admin.ID,
	}
	require.NoError(t, svc.DB.Create(&clan).Error)
	task := seedTask(t, svc, 1)
	require.NoError(t, svc.DB.Model(&models.Task{}).Where("id = ?", task.ID).
		Update("clan_id", clan.ID).Error)

	user := newUser(t, svc.DB, "amina")
	_, err := svc.Accept(context.Background(), task.ID, user.ID)
	require.NoError(t, err)
	_, err = svc.SubmitProof(context.Background(), task.ID, user.ID, "https://cdn.example.com/proofs/a.jpg")
	require.NoError(t, err)
	require.NoError(t, svc.ApplyProofVerdict(context.Background(), queue.jobs[0].EntityID,
		Verdict{Valid: true, Confidence: 0.9}))

	_, err = svc.VerifyMission(context.Background(), task.ID, admin.ID)
	require.NoError(t, err)

	// The proof already paid this user: the bulk verify dedups the balance and
	// must not double-count the task toward badges.
	var fresh models.User
	require.NoError(t, svc.DB.First(&fresh, "id = ?", user.ID).Error)
	assert.Equal(t, int64(PointsTaskCompleted), fresh.TotalPoints)
	assert.Equal(t, int64(1), fresh.Contributions.TasksCompleted)
	assert.Equal(t, int64(1), ledgerCount(t, svc.DB, user.ID, models.ReasonTaskCompleted))

	// One task, one clan counter tick, however many proofs and verdicts.
	var freshClan models.Clan
	require.NoError(t, svc.DB.First(&freshClan, "id = ?", clan.ID).Error)
	assert.Equal(t, int64(1), freshClan.CompletedTasks)
}

func TestExpireStale(t *testing.T) {
	svc, _ := newTaskService(t)
	past := time.Now().Add(-1 * time.Hour)
	future := time.Now().Add(24 * time.Hour)

	stale := seedTask(t, svc, 5)
	require.NoError(t, svc.DB.Model(&models.Task{}).Where("id = ?", stale.ID).
		Update("expires_at", past).Error)
	live := seedTask(t, svc, 5)
	require.NoError(t, svc.DB.Model(&models.Task{}).Where("id = ?", live.ID).
		Update("expires_at", future).Error)

	n, err := svc.ExpireStale(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := svc.Get(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCancelled, got.Status)
	got, err = svc.Get(live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskOpen, got.Status)
}

func TestJoinFromPin(t *testing.T) {
	svc, _ := newTaskService(t)
	owner := newUser(t, svc.DB, "owner")
	pin := models.MapPin{
		ID:       uuid.NewString(),
		UserID:   owner.ID,
		Username: owner.Name,
		Title:    "Garbage heap at the junction",
		Category: models.CategoryGarbage,
	}
	require.NoError(t, svc.DB.Create(&pin).Error)

	amina := newUser(t, svc.DB, "amina")
	task, err := svc.JoinFromPin(context.Background(), pin.ID, amina.ID)
	require.NoError(t, err)
	require.NotNil(t, task.MapPinID)
	assert.Equal(t, pin.ID, *task.MapPinID)
	assert.Len(t, task.AssignedUsers, 1)

	// A second joiner lands on the same task.
	bola := newUser(t, svc.DB, "bola")
	same, err := svc.JoinFromPin(context.Background(), pin.ID, bola.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, same.ID)
	assert.Len(t, same.AssignedUsers, 2)

	_, err = svc.JoinFromPin(context.Background(), pin.ID, amina.ID)
	assert.Equal(t, CodeAlreadyJoined, CodeOf(err))
}
