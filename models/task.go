package models

import "time"

// Task statuses. The task-level status is derived from the assignment
// sub-statuses: open (nobody active yet), in_progress (>=1 assigned),
// completed (every non-dropped assignee completed).
const (
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskCancelled  = "cancelled"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Per-assignee sub-statuses.
const (
	AssignmentPendingApproval = "pending_approval"
	AssignmentAssigned        = "assigned"
	AssignmentCompleted       = "completed"
	AssignmentDropped         = "dropped"
)

type Task struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	Category    string `json:"category" gorm:"type:varchar(16);index;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description,omitempty"`

	ReportID *string `json:"report_id,omitempty" gorm:"type:uuid;index"`
	ClanID   *string `json:"clan_id,omitempty" gorm:"type:uuid;index"`
	MapPinID *string `json:"map_pin_id,omitempty" gorm:"type:uuid;index"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Region    string  `json:"region,omitempty"`

	Status   string `json:"status" gorm:"type:varchar(16);index;default:'open'"`
	Priority string `json:"priority" gorm:"type:varchar(8);default:'medium'"`

	AssignedUsers   []TaskAssignment `json:"assigned_users" gorm:"foreignKey:TaskID"`
	MaxParticipants int              `json:"max_participants" gorm:"default:10"`

	IsClanTask   bool  `json:"is_clan_task" gorm:"default:false"`
	PointsReward int64 `json:"points_reward" gorm:"default:50"`

	CompletionProofs []CompletionProof `json:"completion_proofs" gorm:"foreignKey:TaskID"`

	// RewardPaid guards the bulk verify payout: it flips false -> true exactly
	// once, before the payout loop starts.
	RewardPaid bool `json:"reward_paid" gorm:"default:false"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index"`
	CreatedBy   string     `json:"created_by,omitempty" gorm:"type:uuid"`

	Timestamps
}

// TaskAssignment is one user's slot on a task. (task_id, user_id) is unique.
type TaskAssignment struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID     string    `json:"task_id" gorm:"type:uuid;index:idx_task_user,unique;not null"`
	UserID     string    `json:"user_id" gorm:"type:uuid;index:idx_task_user,unique;not null"`
	SubStatus  string    `json:"sub_status" gorm:"type:varchar(16);default:'assigned'"`
	AcceptedAt time.Time `json:"accepted_at" gorm:"autoCreateTime"`
}

// CompletionProof is one user's submitted proof, at most one per assignee.
// Each assignee's payout is tracked by their own proof's Verified flag,
// independent of the task-level RewardPaid guard.
type CompletionProof struct {
	ID          string    `json:"id" gorm:"primaryKey;type:uuid"`
	TaskID      string    `json:"task_id" gorm:"type:uuid;index:idx_proof_task_user,unique;not null"`
	UserID      string    `json:"user_id" gorm:"type:uuid;index:idx_proof_task_user,unique;not null"`
	ImageURL    string    `json:"image_url"`
	Verified    bool      `json:"verified" gorm:"default:false"`
	Score       float64   `json:"score,omitempty"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"autoCreateTime"`
}
