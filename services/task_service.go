// services/task_service.go
package services

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"eco-mission-system/models"
	"eco-mission-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskService runs the mission lifecycle: open tasks, slot-bounded
// acceptance, per-assignee proofs and payouts, and the bulk admin verify.
type TaskService struct {
	DB       *gorm.DB
	Rewards  *RewardService
	Notifier Notifier
	Queue    ValidationQueue

	locks *utils.KeyMutex
}

func NewTaskService(db *gorm.DB, rewards *RewardService, notifier Notifier) *TaskService {
	return &TaskService{DB: db, Rewards: rewards, Notifier: notifier, locks: utils.NewKeyMutex()}
}

func taskLockKey(taskID string) string { return "task:" + taskID }

// Accept claims a slot on a task. Slot capacity is enforced under the
// per-task lock so the last slot cannot be double-claimed.
func (s *TaskService) Accept(ctx context.Context, taskID, userID string) (*models.Task, error) {
	s.locks.Lock(taskLockKey(taskID))
	defer s.locks.Unlock(taskLockKey(taskID))

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.First(&task, "id = ?", taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("task", taskID)
			}
			return err
		}
		if task.Status != models.TaskOpen && task.Status != models.TaskInProgress {
			return invalidState("task", taskID, "task is "+task.Status)
		}

		var existing int64
		if err := tx.Model(&models.TaskAssignment{}).
			Where("task_id = ? AND user_id = ?", taskID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return conflict(CodeAlreadyJoined, "already joined this task")
		}

		var active int64
		if err := tx.Model(&models.TaskAssignment{}).
			Where("task_id = ? AND sub_status <> ?", taskID, models.AssignmentDropped).
			Count(&active).Error; err != nil {
			return err
		}
		if int(active) >= task.MaxParticipants {
			return conflict(CodeTaskFull, "task has no open slots")
		}

		if err := tx.Create(&models.TaskAssignment{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			UserID:    userID,
			SubStatus: models.AssignmentAssigned,
		}).Error; err != nil {
			return err
		}

		if task.Status == models.TaskOpen {
			return tx.Model(&models.Task{}).Where("id = ?", taskID).
				Update("status", models.TaskInProgress).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(taskID)
}

// JoinFromPin joins the mission behind a map pin, creating the broadcast
// task on first join. The task is keyed by the pin so later joiners land on
// the same one.
func (s *TaskService) JoinFromPin(ctx context.Context, pinID, userID string) (*models.Task, error) {
	s.locks.Lock("pin:" + pinID)
	taskID := ""
	err := func() error {
		defer s.locks.Unlock("pin:" + pinID)

		var task models.Task
		err := s.DB.First(&task, "map_pin_id = ?", pinID).Error
		if err == nil {
			taskID = task.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var pin models.MapPin
		if err := s.DB.First(&pin, "id = ?", pinID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("map pin", pinID)
			}
			return err
		}

		task = models.Task{
			ID:              uuid.NewString(),
			Category:        pin.Category,
			Title:           pin.Title,
			Description:     pin.Description,
			MapPinID:        &pin.ID,
			Latitude:        pin.Latitude,
			Longitude:       pin.Longitude,
			Status:          models.TaskOpen,
			MaxParticipants: 10,
			PointsReward:    PointsTaskCompleted,
			CreatedBy:       pin.UserID,
		}
		if err := s.DB.Create(&task).Error; err != nil {
			return err
		}
		taskID = task.ID

		s.Notifier.Publish(ctx, TopicGlobalMissions, map[string]any{
			"event":   "mission_opened",
			"task_id": task.ID,
			"pin_id":  pin.ID,
			"title":   task.Title,
		})
		return nil
	}()
	if err != nil {
		return nil, err
	}
	return s.Accept(ctx, taskID, userID)
}

// CreateTaskInput carries a leader-created clan task.
type CreateTaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Address     string     `json:"address"`
	Region      string     `json:"region"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// CreateForClan creates a clan-wide task and snapshots the current roster as
// pending_approval assignments. Members who joined the clan later are not on
// the task.
func (s *TaskService) CreateForClan(ctx context.Context, clanID, creatorID string, in CreateTaskInput) (*models.Task, error) {
	if in.Title == "" || in.Category == "" {
		return nil, validation("title and category are required")
	}

	var creator models.ClanMember
	if err := s.DB.First(&creator, "clan_id = ? AND user_id = ?", clanID, creatorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, forbidden("not a member of this clan")
		}
		return nil, err
	}
	if creator.Role != models.RoleLeader && creator.Role != models.RoleCoLeader {
		return nil, forbidden("only leaders and co-leaders can create clan tasks")
	}

	var members []models.ClanMember
	if err := s.DB.Where("clan_id = ?", clanID).Find(&members).Error; err != nil {
		return nil, err
	}

	task := models.Task{
		ID:              uuid.NewString(),
		Category:        in.Category,
		Title:           in.Title,
		Description:     in.Description,
		ClanID:          &clanID,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Address:         in.Address,
		Region:          in.Region,
		Status:          models.TaskOpen,
		Priority:        firstNonEmpty(in.Priority, models.PriorityMedium),
		MaxParticipants: len(members),
		IsClanTask:      true,
		PointsReward:    PointsTaskCompleted,
		ExpiresAt:       in.ExpiresAt,
		CreatedBy:       creatorID,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		for _, m := range members {
			if err := tx.Create(&models.TaskAssignment{
				ID:        uuid.NewString(),
				TaskID:    task.ID,
				UserID:    m.UserID,
				SubStatus: models.AssignmentPendingApproval,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Publish(ctx, ClanTopic(clanID), map[string]any{
		"event":   "clan_task_created",
		"task_id": task.ID,
		"title":   task.Title,
	})
	return s.Get(task.ID)
}

// Approve accepts a pending_approval slot on a clan task. The transition is
// a conditional update: only the pending_approval -> assigned edge exists.
func (s *TaskService) Approve(ctx context.Context, taskID, userID string) (*models.Task, error) {
	res := s.DB.Model(&models.TaskAssignment{}).
		Where("task_id = ? AND user_id = ? AND sub_status = ?", taskID, userID, models.AssignmentPendingApproval).
		Update("sub_status", models.AssignmentAssigned)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var existing int64
		if err := s.DB.Model(&models.TaskAssignment{}).
			Where("task_id = ? AND user_id = ?", taskID, userID).
			Count(&existing).Error; err != nil {
			return nil, err
		}
		if existing == 0 {
			return nil, notFound("task assignment", taskID)
		}
		return nil, conflict(CodeAlreadyHandled, "assignment is no longer pending approval")
	}

	if err := s.DB.Model(&models.Task{}).
		Where("id = ? AND status = ?", taskID, models.TaskOpen).
		Update("status", models.TaskInProgress).Error; err != nil {
		return nil, err
	}
	return s.Get(taskID)
}

// Drop releases a slot. Dropped assignees stop counting toward capacity and
// toward the all-completed check.
func (s *TaskService) Drop(ctx context.Context, taskID, userID string) (*models.Task, error) {
	res := s.DB.Model(&models.TaskAssignment{}).
		Where("task_id = ? AND user_id = ? AND sub_status IN ?", taskID, userID,
			[]string{models.AssignmentPendingApproval, models.AssignmentAssigned}).
		Update("sub_status", models.AssignmentDropped)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict(CodeAlreadyHandled, "no active assignment to drop")
	}
	return s.Get(taskID)
}

// SubmitProof records one completion proof per assignee and queues it for
// validation. When the last active assignee completes, the task completes.
func (s *TaskService) SubmitProof(ctx context.Context, taskID, userID, imageURL string) (*models.Task, error) {
	if imageURL == "" {
		return nil, validation("proof image URL is required")
	}

	proof := models.CompletionProof{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		UserID:   userID,
		ImageURL: imageURL,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.First(&task, "id = ?", taskID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("task", taskID)
			}
			return err
		}
		if task.Status == models.TaskCancelled {
			return invalidState("task", taskID, "task is cancelled")
		}

		var assignment models.TaskAssignment
		if err := tx.First(&assignment, "task_id = ? AND user_id = ?", taskID, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return forbidden("not assigned to this task")
			}
			return err
		}
		// A repeat submit is a duplicate before it is anything else.
		var existing int64
		if err := tx.Model(&models.CompletionProof{}).
			Where("task_id = ? AND user_id = ?", taskID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return conflict(CodeAlreadyHandled, "proof already submitted")
		}
		if assignment.SubStatus != models.AssignmentAssigned {
			return invalidState("task assignment", assignment.ID, "assignment is "+assignment.SubStatus)
		}

		if err := tx.Create(&proof).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.TaskAssignment{}).Where("id = ?", assignment.ID).
			Update("sub_status", models.AssignmentCompleted).Error; err != nil {
			return err
		}

		var remaining int64
		if err := tx.Model(&models.TaskAssignment{}).
			Where("task_id = ? AND sub_status IN ?", taskID,
				[]string{models.AssignmentPendingApproval, models.AssignmentAssigned}).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			now := time.Now()
			res := tx.Model(&models.Task{}).
				Where("id = ? AND status <> ?", taskID, models.TaskCompleted).
				Updates(map[string]any{"status": models.TaskCompleted, "completed_at": now})
			if res.Error != nil {
				return res.Error
			}
			// Clan counters tick once, on the completion edge.
			if res.RowsAffected > 0 && task.ClanID != nil {
				return s.bumpTaskClanCounters(tx, *task.ClanID, task.Category)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Queue != nil {
		s.Queue.Enqueue(ValidationJob{
			Kind:     JobTaskProof,
			EntityID: proof.ID,
			UserID:   userID,
			MediaRef: imageURL,
		})
	}
	return s.Get(taskID)
}

// ApplyProofVerdict settles one assignee's proof. The proof's verified flag
// is the per-user payment guard, flipped by a conditional update so verdict
// re-delivery cannot pay twice.
func (s *TaskService) ApplyProofVerdict(ctx context.Context, proofID string, verdict Verdict) error {
	var proof models.CompletionProof
	if err := s.DB.First(&proof, "id = ?", proofID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("completion proof", proofID)
		}
		return err
	}

	if verdict.Fraud {
		if _, err := s.Rewards.Penalize(proof.UserID, PointsFraudPenalty, "Task proof flagged as fraud"); err != nil {
			return err
		}
		return nil
	}
	if !verdict.Valid {
		return s.DB.Model(&models.CompletionProof{}).Where("id = ?", proofID).
			Update("score", verdict.Confidence).Error
	}

	res := s.DB.Model(&models.CompletionProof{}).
		Where("id = ? AND verified = ?", proofID, false).
		Updates(map[string]any{"verified": true, "score": verdict.Confidence})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	var task models.Task
	if err := s.DB.First(&task, "id = ?", proof.TaskID).Error; err != nil {
		return err
	}

	if _, err := s.Rewards.AwardPoints(proof.UserID, task.PointsReward,
		"Task completed: "+task.Title, models.ReasonTaskCompleted,
		task.ID, models.ReferenceTask); err != nil {
		return err
	}
	if err := s.DB.Model(&models.User{}).Where("id = ?", proof.UserID).
		Update("contrib_tasks_completed", gorm.Expr("contrib_tasks_completed + 1")).Error; err != nil {
		return err
	}

	log.Printf("✅ Proof %s verified (+%d pts to %s)", proofID, task.PointsReward, proof.UserID)
	return nil
}

// VerifyMission is the admin bulk settle: it flips the task-level rewardPaid
// guard exactly once, then pays every non-dropped assignee. Assignees already
// paid through a verified proof are deduped by the ledger. Per-user payout
// failures are logged and skipped so one bad account cannot strand the rest.
func (s *TaskService) VerifyMission(ctx context.Context, taskID, adminID string) (*models.Task, error) {
	var task models.Task
	if err := s.DB.First(&task, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("task", taskID)
		}
		return nil, err
	}
	if task.Status == models.TaskCancelled {
		return nil, invalidState("task", taskID, "task is cancelled")
	}

	res := s.DB.Model(&models.Task{}).
		Where("id = ? AND reward_paid = ?", taskID, false).
		Update("reward_paid", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, conflict(CodeAlreadyHandled, "mission reward already paid")
	}

	// Everyone still on the roster gets paid, proof or no proof: the pin flow
	// has no proof step before the admin verify.
	var assignees []models.TaskAssignment
	if err := s.DB.Where("task_id = ? AND sub_status IN ?", taskID,
		[]string{models.AssignmentAssigned, models.AssignmentCompleted}).
		Find(&assignees).Error; err != nil {
		return nil, err
	}

	paid := 0
	for _, a := range assignees {
		res, err := s.Rewards.AwardPoints(a.UserID, task.PointsReward,
			"Mission verified: "+task.Title, models.ReasonTaskCompleted,
			task.ID, models.ReferenceTask)
		if err != nil {
			log.Printf("⚠️ Mission %s: payout to %s failed: %v", taskID, a.UserID, err)
			continue
		}
		if res.Duplicate {
			continue
		}
		if err := s.DB.Model(&models.User{}).Where("id = ?", a.UserID).
			Update("contrib_tasks_completed", gorm.Expr("contrib_tasks_completed + 1")).Error; err != nil {
			log.Printf("⚠️ Mission %s: contribution bump for %s failed: %v", taskID, a.UserID, err)
		}
		paid++
	}

	if err := s.DB.Model(&models.TaskAssignment{}).
		Where("task_id = ? AND sub_status = ?", taskID, models.AssignmentAssigned).
		Update("sub_status", models.AssignmentCompleted).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	res = s.DB.Model(&models.Task{}).
		Where("id = ? AND status <> ?", taskID, models.TaskCompleted).
		Updates(map[string]any{"status": models.TaskCompleted, "completed_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 && task.ClanID != nil {
		if err := s.bumpTaskClanCounters(s.DB, *task.ClanID, task.Category); err != nil {
			return nil, err
		}
	}
	if task.MapPinID != nil {
		if err := s.DB.Delete(&models.MapPin{}, "id = ?", *task.MapPinID).Error; err != nil {
			log.Printf("⚠️ Mission %s: pin cleanup failed: %v", taskID, err)
		}
	}

	s.Notifier.Publish(ctx, TopicGlobalMissions, map[string]any{
		"event":   "mission_verified",
		"task_id": taskID,
		"paid":    paid,
	})
	log.Printf("🎉 Mission %s verified by %s, %d participants paid", taskID, adminID, paid)
	return s.Get(taskID)
}

// ExpireStale cancels open and in-progress tasks whose deadline has passed.
func (s *TaskService) ExpireStale(now time.Time) (int64, error) {
	res := s.DB.Model(&models.Task{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]string{models.TaskOpen, models.TaskInProgress}, now).
		Update("status", models.TaskCancelled)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 Expired %d stale tasks", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (s *TaskService) Get(taskID string) (*models.Task, error) {
	var task models.Task
	err := s.DB.Preload("AssignedUsers").Preload("CompletionProofs").
		First(&task, "id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("task", taskID)
		}
		return nil, err
	}
	return &task, nil
}

// TaskFilter narrows List.
type TaskFilter struct {
	Status   string
	Category string
	ClanID   string
	Region   string
	Page     int
	Limit    int
}

func (s *TaskService) List(f TaskFilter) ([]models.Task, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}

	q := s.DB.Model(&models.Task{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.ClanID != "" {
		q = q.Where("clan_id = ?", f.ClanID)
	}
	if f.Region != "" {
		q = q.Where("region = ?", f.Region)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var tasks []models.Task
	err := q.Preload("AssignedUsers").Order("created_at DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&tasks).Error
	return tasks, total, err
}

// Nearby returns joinable tasks inside a bounding box around the point. The
// box approximates radiusKm; good enough for a map view.
func (s *TaskService) Nearby(lat, lng, radiusKm float64, limit int) ([]models.Task, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	latDelta := radiusKm / 110.574
	lngDelta := radiusKm / (111.320 * math.Cos(lat*math.Pi/180))

	var tasks []models.Task
	err := s.DB.Preload("AssignedUsers").
		Where("status IN ?", []string{models.TaskOpen, models.TaskInProgress}).
		Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta).
		Where("longitude BETWEEN ? AND ?", lng-lngDelta, lng+lngDelta).
		Order("created_at DESC").Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

// Mine returns tasks the user holds any assignment on, newest first.
func (s *TaskService) Mine(userID string) ([]models.Task, error) {
	var ids []string
	if err := s.DB.Model(&models.TaskAssignment{}).
		Where("user_id = ?", userID).Pluck("task_id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Task{}, nil
	}
	var tasks []models.Task
	err := s.DB.Preload("AssignedUsers").Where("id IN ?", ids).
		Order("created_at DESC").Find(&tasks).Error
	return tasks, err
}

// bumpTaskClanCounters credits the clan's completed-task and impact counters.
// Callers invoke it on the task's completion edge, so each task counts once.
func (s *TaskService) bumpTaskClanCounters(tx *gorm.DB, clanID, category string) error {
	if err := tx.Model(&models.Clan{}).Where("id = ?", clanID).
		Update("completed_tasks", gorm.Expr("completed_tasks + 1")).Error; err != nil {
		return err
	}
	if field := models.ImpactField(category); field != "" {
		col := "impact_" + field
		if err := tx.Model(&models.Clan{}).Where("id = ?", clanID).
			Update(col, gorm.Expr(col+" + 1")).Error; err != nil {
			return err
		}
	}
	return nil
}
